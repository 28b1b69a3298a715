package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/multitenant"
)

// TenantIDKey is the echo context key under which TenantMiddleware records
// the bound tenant for request logging. It outlives the request binding.
const TenantIDKey = "tenant_id"

// TenantMiddleware binds the tenant resolved from the request to the request
// context. Resolution failures bind nothing; the next handler always runs.
// The binding is removed on every exit path, panics included, so the request
// seen by outer middlewares is unchanged. Install it before authentication.
func TenantMiddleware(resolver multitenant.TenantResolver, log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			original := c.Request()
			defer c.SetRequest(original)

			if bound, ok := bindTenant(resolver, original, log); ok {
				c.SetRequest(bound)
				if tenantID, found := multitenant.TenantFromContext(bound.Context()); found {
					c.Set(TenantIDKey, tenantID)
				}
			}
			return next(c)
		}
	}
}

// TenantHandler is TenantMiddleware for plain net/http handlers.
func TenantHandler(resolver multitenant.TenantResolver, log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bound, ok := bindTenant(resolver, r, log); ok {
			r = bound
		}
		next.ServeHTTP(w, r)
	})
}

func bindTenant(resolver multitenant.TenantResolver, r *http.Request, log logger.Logger) (*http.Request, bool) {
	if resolver == nil || r == nil {
		return nil, false
	}

	ctx := r.Context()
	tenantID, err := resolver.ResolveTenant(ctx, r)
	if err != nil || tenantID == "" {
		// A tenant inherited from an outer context must not leak into this request.
		if _, inherited := multitenant.TenantFromContext(ctx); inherited {
			return r.WithContext(multitenant.WithoutTenant(ctx)), true
		}
		return nil, false
	}

	log.Debug().Str("tenant_id", tenantID).Str("path", r.URL.Path).Msg("Bound tenant to request")
	return r.WithContext(multitenant.WithTenant(ctx, tenantID)), true
}
