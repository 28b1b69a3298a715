package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/multitenant"
)

// MiddlewareConfig carries what SetupMiddlewares needs beyond the logger.
type MiddlewareConfig struct {
	ServiceName string
	Resolver    multitenant.TenantResolver
	Logger      LoggerConfig
}

// SetupMiddlewares registers the middleware chain. The tenant binding is
// installed last so that any authentication middleware registered by the
// caller afterwards already sees it.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg MiddlewareConfig) {
	// Request ID
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	// Tracing
	e.Use(otelecho.Middleware(cfg.ServiceName))

	// Logger
	e.Use(Logger(log, cfg.Logger))

	// Recovery
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Err(err).
				Str("request_id", requestID(c)).
				Str("stack", string(stack)).
				Msg("Panic recovered")
			return err
		},
	}))

	// Timing
	e.Use(Timing())

	// Tenant binding
	if cfg.Resolver != nil {
		e.Use(TenantMiddleware(cfg.Resolver, log))
	}
}
