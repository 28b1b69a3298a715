package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gaborage/go-tenantdb/database/types"
)

// ErrNoDataSource is returned by the Unavailable datasource for every data
// access.
var ErrNoDataSource = errors.New("no datasource available")

// Unavailable is the dummy fallback used when no control-plane database is
// configured. It never touches the network; every data access fails with
// ErrNoDataSource while health and lifecycle calls succeed.
type Unavailable struct{}

var _ Interface = Unavailable{}

// NewUnavailable returns the dummy fallback datasource.
func NewUnavailable() Unavailable {
	return Unavailable{}
}

func (Unavailable) Query(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, ErrNoDataSource
}

func (Unavailable) QueryRow(context.Context, string, ...any) types.Row {
	return types.NewErrorRow(ErrNoDataSource)
}

func (Unavailable) Exec(context.Context, string, ...any) (sql.Result, error) {
	return nil, ErrNoDataSource
}

func (Unavailable) Prepare(context.Context, string) (Statement, error) {
	return nil, ErrNoDataSource
}

func (Unavailable) Begin(context.Context) (Tx, error) {
	return nil, ErrNoDataSource
}

func (Unavailable) BeginTx(context.Context, *sql.TxOptions) (Tx, error) {
	return nil, ErrNoDataSource
}

func (Unavailable) Health(context.Context) error { return nil }

func (Unavailable) Stats() (map[string]any, error) {
	return map[string]any{"datasource": "unavailable"}, nil
}

func (Unavailable) Close() error { return nil }

func (Unavailable) DatabaseType() string { return "none" }
