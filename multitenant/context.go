package multitenant

import (
	"context"
	"strings"
)

// ctxKey ensures tenant context keys do not collide with external packages.
type ctxKey struct{}

var tenantKey ctxKey

// WithTenant binds tenantID to the returned context. The identifier is
// trimmed; a blank identifier leaves ctx unchanged.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey, tenantID)
}

// WithoutTenant returns a context in which no tenant is bound, even if ctx
// inherited one.
func WithoutTenant(ctx context.Context) context.Context {
	if _, ok := TenantFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, tenantKey, "")
}

// TenantFromContext extracts the tenant identifier from the context. It never
// panics, also not on a nil context.
func TenantFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, ok := ctx.Value(tenantKey).(string)
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}
