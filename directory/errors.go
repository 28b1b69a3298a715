package directory

import "errors"

var (
	// ErrTenantNotFound indicates the directory has no descriptor for the tenant.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantInactive indicates the tenant exists but is suspended or disabled.
	ErrTenantInactive = errors.New("tenant inactive")
)
