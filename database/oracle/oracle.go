// Package oracle opens Oracle pools through the pure Go go-ora driver.
package oracle

import (
	"database/sql"
	"fmt"
	"strconv"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/gaborage/go-tenantdb/database/types"
)

// openDB is swapped in tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("oracle", dsn)
}

// DSN builds a go-ora URL for ep. The database name is used as service name
// unless a "SID" option is present.
func DSN(ep types.Endpoint, settings types.PoolSettings) string {
	if ep.DSN != "" {
		return ep.DSN
	}

	port := ep.Port
	if port == 0 {
		port = 1521
	}

	opts := make(map[string]string, len(ep.Options)+1)
	for k, v := range ep.Options {
		opts[k] = v
	}
	if settings.ConnectTimeout > 0 {
		if _, ok := opts["CONNECTION TIMEOUT"]; !ok {
			opts["CONNECTION TIMEOUT"] = strconv.Itoa(int(settings.ConnectTimeout.Seconds()))
		}
	}

	service := ep.Database
	if _, ok := opts["SID"]; ok {
		service = ""
	}

	return go_ora.BuildUrl(ep.Host, port, service, ep.Username, ep.Password, opts)
}

// Open prepares a pool for ep. No connection is made until the pool is used.
func Open(ep types.Endpoint, settings types.PoolSettings) (*sql.DB, error) {
	db, err := openDB(DSN(ep, settings))
	if err != nil {
		return nil, fmt.Errorf("failed to open Oracle connection: %w", err)
	}
	return db, nil
}
