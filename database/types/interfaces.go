// Package types contains the core database interface definitions shared by the
// vendor packages, the routing layer and tests. Keeping them apart from the
// database package avoids import cycles with the vendor openers.
//
//nolint:revive // Package name "types" is intentionally generic to avoid circular imports
package types

import (
	"context"
	"database/sql"
	"errors"
)

// Vendor identifies a database engine.
type Vendor = string

const (
	PostgreSQL Vendor = "postgresql"
	MySQL      Vendor = "mysql"
	Oracle     Vendor = "oracle"
)

// Row represents a single result set row with basic scanning behaviour.
type Row interface {
	Scan(dest ...any) error
	Err() error
}

type sqlRowAdapter struct {
	row *sql.Row
}

// NewRowFromSQL wraps the provided *sql.Row in a Row.
// If row is nil, NewRowFromSQL returns nil.
func NewRowFromSQL(row *sql.Row) Row {
	if row == nil {
		return nil
	}
	return &sqlRowAdapter{row: row}
}

func (r *sqlRowAdapter) Scan(dest ...any) error {
	if r == nil || r.row == nil {
		return errors.New("sqlRowAdapter: underlying sql.Row is nil")
	}
	return r.row.Scan(dest...)
}

func (r *sqlRowAdapter) Err() error {
	if r == nil || r.row == nil {
		return errors.New("sqlRowAdapter: underlying sql.Row is nil")
	}
	return r.row.Err()
}

// errRow is a Row that only reports an error. Used when a query cannot be
// dispatched at all, e.g. because no datasource could be resolved.
type errRow struct {
	err error
}

// NewErrorRow returns a Row whose Scan and Err both return err.
func NewErrorRow(err error) Row {
	return &errRow{err: err}
}

func (r *errRow) Scan(_ ...any) error { return r.err }
func (r *errRow) Err() error          { return r.err }

// Statement defines the interface for prepared statements.
type Statement interface {
	Query(ctx context.Context, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, args ...any) Row
	Exec(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

// Tx defines the interface for database transactions.
type Tx interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Prepare(ctx context.Context, query string) (Statement, error)
	Commit() error
	Rollback() error
}

// Interface is the uniform acquire-connection surface every persistence caller
// depends on. It is implemented identically by tenant pools, the control-plane
// datasource and the routing datasource that chooses between them.
type Interface interface {
	// Query execution
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// Prepared statements
	Prepare(ctx context.Context, query string) (Statement, error)

	// Transaction support
	Begin(ctx context.Context) (Tx, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)

	// Health and diagnostics
	Health(ctx context.Context) error
	Stats() (map[string]any, error)

	// Connection management
	Close() error

	DatabaseType() string
}
