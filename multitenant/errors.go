package multitenant

import "errors"

var (
	// ErrNoTenant indicates that no tenant is bound to the request.
	ErrNoTenant = errors.New("no tenant in context")
	// ErrUnknownTenant indicates the directory has no routable descriptor for the tenant.
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrTenantUnavailable indicates the tenant database could not be reached or validated.
	ErrTenantUnavailable = errors.New("tenant database unavailable")
	// ErrTenantResolutionFailed indicates the resolver could not determine the tenant ID.
	ErrTenantResolutionFailed = errors.New("tenant resolution failed")
)
