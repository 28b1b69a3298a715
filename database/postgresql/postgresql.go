// Package postgresql opens PostgreSQL pools through the pgx stdlib driver.
package postgresql

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/gaborage/go-tenantdb/database/types"
)

// openDB is swapped in tests.
var openDB = func(cfg *pgx.ConnConfig) *sql.DB {
	return stdlib.OpenDB(*cfg)
}

// quoteDSN quotes a DSN value according to libpq rules:
// - Returns double single quotes for empty strings (empty value)
// - Escapes backslashes and single quotes
// - Wraps in single quotes when value contains non-alphanumeric/._- characters
func quoteDSN(value string) string {
	if value == "" {
		return "''"
	}

	needsQuoting := false
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '.' && r != '_' && r != '-' {
			needsQuoting = true
			break
		}
	}

	if !needsQuoting {
		return value
	}

	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")

	return "'" + escaped + "'"
}

// DSN builds a libpq keyword/value connection string for ep.
// Options are appended in key order so the result is deterministic.
func DSN(ep types.Endpoint) string {
	if ep.DSN != "" {
		return ep.DSN
	}

	port := ep.Port
	if port == 0 {
		port = 5432
	}

	parts := []string{
		fmt.Sprintf("host=%s", quoteDSN(ep.Host)),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("user=%s", quoteDSN(ep.Username)),
		fmt.Sprintf("password=%s", quoteDSN(ep.Password)),
		fmt.Sprintf("dbname=%s", quoteDSN(ep.Database)),
	}

	keys := make([]string, 0, len(ep.Options))
	for k := range ep.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, quoteDSN(ep.Options[k])))
	}

	return strings.Join(parts, " ")
}

// Open prepares a pool for ep. No connection is made until the pool is used.
func Open(ep types.Endpoint, settings types.PoolSettings) (*sql.DB, error) {
	pgxConfig, err := pgx.ParseConfig(DSN(ep))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}
	if settings.ConnectTimeout > 0 {
		pgxConfig.ConnectTimeout = settings.ConnectTimeout
	}
	return openDB(pgxConfig), nil
}
