package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/gaborage/go-tenantdb/database/mysql"
	"github.com/gaborage/go-tenantdb/database/oracle"
	"github.com/gaborage/go-tenantdb/database/postgresql"
	"github.com/gaborage/go-tenantdb/database/types"
	"github.com/gaborage/go-tenantdb/logger"
)

// Opener prepares a pool for an endpoint without connecting.
type Opener func(ep Endpoint, settings PoolSettings) (*sql.DB, error)

var (
	openersMu sync.RWMutex
	openers   = map[types.Vendor]Opener{
		types.PostgreSQL: postgresql.Open,
		types.MySQL:      mysql.Open,
		types.Oracle:     oracle.Open,
	}
)

// RegisterOpener installs or replaces the opener for vendor.
func RegisterOpener(vendor types.Vendor, opener Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[vendor] = opener
}

// SupportedVendors lists the vendors with a registered opener.
func SupportedVendors() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	vendors := make([]string, 0, len(openers))
	for v := range openers {
		vendors = append(vendors, v)
	}
	slices.Sort(vendors)
	return vendors
}

// ValidateEndpoint checks that ep names a supported vendor and carries an address.
func ValidateEndpoint(ep Endpoint) error {
	openersMu.RLock()
	_, ok := openers[ep.Vendor]
	openersMu.RUnlock()
	if !ok {
		return fmt.Errorf("unsupported database type: %q", ep.Vendor)
	}
	if ep.DSN == "" && ep.Host == "" {
		return fmt.Errorf("endpoint %s: host or dsn is required", ep)
	}
	return nil
}

// Open builds a Connection for ep and verifies it with a ping bounded by the
// connect timeout. The pool is closed again when the ping fails, so callers
// never receive a half-built pool.
func Open(ctx context.Context, ep Endpoint, settings PoolSettings, log logger.Logger) (*Connection, error) {
	if err := ValidateEndpoint(ep); err != nil {
		return nil, err
	}
	settings = settings.WithDefaults()

	openersMu.RLock()
	opener := openers[ep.Vendor]
	openersMu.RUnlock()

	db, err := opener(ep, settings)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ep, err)
	}

	conn := NewConnectionFromDB(db, ep.Vendor, settings, log)

	pingCtx, cancel := context.WithTimeout(ctx, settings.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", ep, err)
	}

	log.Info().
		Str("vendor", ep.Vendor).
		Str("endpoint", ep.String()).
		Int("max_conns", settings.MaxOpenConns).
		Msg("Opened database pool")
	return conn, nil
}

// Connector opens a verified datasource for an endpoint. The pool cache and
// the schema provisioner take one so tests can substitute fakes.
type Connector func(ctx context.Context, ep Endpoint, settings PoolSettings, log logger.Logger) (Interface, error)

// Connect is the default Connector backed by Open.
func Connect(ctx context.Context, ep Endpoint, settings PoolSettings, log logger.Logger) (Interface, error) {
	conn, err := Open(ctx, ep, settings, log)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
