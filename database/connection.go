package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gaborage/go-tenantdb/database/types"
	"github.com/gaborage/go-tenantdb/logger"
)

// Connection implements Interface on top of a *sql.DB pool. It is vendor
// agnostic; the vendor packages only decide how the pool is opened.
type Connection struct {
	db       *sql.DB
	vendor   types.Vendor
	settings PoolSettings
	logger   logger.Logger
}

var _ Interface = (*Connection)(nil)

// NewConnectionFromDB wraps an already opened pool and applies settings to it.
func NewConnectionFromDB(db *sql.DB, vendor types.Vendor, settings PoolSettings, log logger.Logger) *Connection {
	settings = settings.WithDefaults()

	db.SetMaxOpenConns(settings.MaxOpenConns)
	db.SetMaxIdleConns(settings.MaxIdleConns)
	db.SetConnMaxIdleTime(settings.ConnMaxIdleTime)
	db.SetConnMaxLifetime(settings.ConnMaxLifetime)

	return &Connection{
		db:       db,
		vendor:   vendor,
		settings: settings,
		logger:   log,
	}
}

// PreparedStatement wraps sql.Stmt to implement types.Statement
type PreparedStatement struct {
	stmt *sql.Stmt
}

// Query executes a prepared query with arguments
func (s *PreparedStatement) Query(ctx context.Context, args ...any) (*sql.Rows, error) {
	return s.stmt.QueryContext(ctx, args...)
}

// QueryRow executes a prepared query that returns a single row
func (s *PreparedStatement) QueryRow(ctx context.Context, args ...any) types.Row {
	return types.NewRowFromSQL(s.stmt.QueryRowContext(ctx, args...))
}

// Exec executes a prepared statement with arguments
func (s *PreparedStatement) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	return s.stmt.ExecContext(ctx, args...)
}

// Close closes the prepared statement
func (s *PreparedStatement) Close() error {
	return s.stmt.Close()
}

// Transaction wraps sql.Tx to implement types.Tx
type Transaction struct {
	tx *sql.Tx
}

// Query executes a query within the transaction
func (t *Transaction) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns a single row within the transaction
func (t *Transaction) QueryRow(ctx context.Context, query string, args ...any) types.Row {
	return types.NewRowFromSQL(t.tx.QueryRowContext(ctx, query, args...))
}

// Exec executes a query without returning rows within the transaction
func (t *Transaction) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// Prepare creates a prepared statement within the transaction
func (t *Transaction) Prepare(ctx context.Context, query string) (Statement, error) {
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{stmt: stmt}, nil
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

// Query executes a query that returns rows
func (c *Connection) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns at most one row
func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) types.Row {
	return types.NewRowFromSQL(c.db.QueryRowContext(ctx, query, args...))
}

// Exec executes a query without returning any rows
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// Prepare creates a prepared statement for later queries or executions
func (c *Connection) Prepare(ctx context.Context, query string) (Statement, error) {
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{stmt: stmt}, nil
}

// Begin starts a transaction
func (c *Connection) Begin(ctx context.Context) (Tx, error) {
	return c.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx}, nil
}

// ErrPoolBusy reports a pool whose connections are all checked out. The pool
// is alive; callers wait for a connection to be returned.
var ErrPoolBusy = errors.New("connection pool busy")

// Health is the liveness probe: it checks out one connection, pings it and
// hands it back, all within the validation timeout. A nil result means a
// caller can obtain a working connection right away. When no connection
// could be checked out because every one is in use, the error wraps
// ErrPoolBusy instead of reporting the pool dead.
func (c *Connection) Health(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.settings.ValidationTimeout)
	defer cancel()

	conn, err := c.db.Conn(probeCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && c.saturated() {
			return fmt.Errorf("acquire connection: %w", ErrPoolBusy)
		}
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if err := conn.PingContext(probeCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (c *Connection) saturated() bool {
	stats := c.db.Stats()
	return stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections
}

// Stats returns database connection statistics
func (c *Connection) Stats() (map[string]any, error) {
	stats := c.db.Stats()
	return map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
		"max_idle_time_closed": stats.MaxIdleTimeClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}, nil
}

// Close closes the pool. Connections already checked out stay usable until
// they are returned; database/sql closes them at that point.
func (c *Connection) Close() error {
	c.logger.Debug().Str("vendor", c.vendor).Msg("Closing database pool")
	return c.db.Close()
}

// DatabaseType returns the database vendor
func (c *Connection) DatabaseType() string {
	return c.vendor
}

// DB exposes the underlying pool for libraries that need a *sql.DB.
func (c *Connection) DB() *sql.DB {
	return c.db
}
