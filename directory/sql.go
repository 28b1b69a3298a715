package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/logger"
)

// DefaultTable is the control-plane table holding tenant descriptors.
const DefaultTable = "tenants"

var descriptorColumns = []string{
	"id", "db_vendor", "db_host", "db_port", "db_name", "db_user", "db_password", "db_dsn", "status",
}

// SQLDirectory reads descriptors from the control-plane database.
type SQLDirectory struct {
	db     database.Interface
	table  string
	sb     squirrel.StatementBuilderType
	logger logger.Logger
}

var _ Directory = (*SQLDirectory)(nil)

// NewSQLDirectory creates a directory over the control-plane table. An empty
// table name selects DefaultTable.
func NewSQLDirectory(db database.Interface, table string, log logger.Logger) *SQLDirectory {
	if table == "" {
		table = DefaultTable
	}
	return &SQLDirectory{
		db:     db,
		table:  table,
		sb:     database.StatementBuilder(db.DatabaseType()),
		logger: log,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row scanner) (Descriptor, error) {
	var d Descriptor
	var vendor, host, name, user, pass, dsn, status sql.NullString
	var port sql.NullInt64
	if err := row.Scan(&d.ID, &vendor, &host, &port, &name, &user, &pass, &dsn, &status); err != nil {
		return Descriptor{}, err
	}
	d.Vendor = vendor.String
	d.Host = host.String
	d.Port = int(port.Int64)
	d.Database = name.String
	d.Username = user.String
	d.Password = pass.String
	d.DSN = dsn.String
	d.Status = status.String
	return d, nil
}

// Lookup implements Directory.
func (s *SQLDirectory) Lookup(ctx context.Context, tenantID string) (Descriptor, error) {
	query, args, err := s.sb.Select(descriptorColumns...).
		From(s.table).
		Where(squirrel.Eq{"id": tenantID}).
		ToSql()
	if err != nil {
		return Descriptor{}, fmt.Errorf("build tenant lookup: %w", err)
	}

	d, err := scanDescriptor(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Descriptor{}, fmt.Errorf("tenant %q: %w", tenantID, ErrTenantNotFound)
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("lookup tenant %q: %w", tenantID, err)
	}
	return checkActive(d)
}

// List implements Directory. Inactive tenants are included.
func (s *SQLDirectory) List(ctx context.Context) ([]Descriptor, error) {
	query, args, err := s.sb.Select(descriptorColumns...).
		From(s.table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenant list: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}

	s.logger.Debug().Int("tenants", len(out)).Str("table", s.table).Msg("Listed tenant directory")
	return out, nil
}
