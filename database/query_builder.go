package database

import (
	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-tenantdb/database/types"
)

// StatementBuilder returns a squirrel builder using the placeholder style of
// vendor: $n for PostgreSQL, :n for Oracle and ? otherwise.
func StatementBuilder(vendor types.Vendor) squirrel.StatementBuilderType {
	switch vendor {
	case types.PostgreSQL:
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	case types.Oracle:
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Colon)
	default:
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	}
}
