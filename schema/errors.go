package schema

import "errors"

var (
	// ErrEmptyScript indicates a schema script without executable statements.
	ErrEmptyScript = errors.New("schema script has no statements")
	// ErrSchemaSync wraps every failure to synchronise one tenant.
	ErrSchemaSync = errors.New("schema sync failed")
)
