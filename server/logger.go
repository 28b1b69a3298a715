package server

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-tenantdb/logger"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// SkipPaths are not logged, typically the probe endpoints.
	SkipPaths []string

	// SlowRequestThreshold marks slower requests with result_code WARN.
	// Zero disables slow request detection.
	SlowRequestThreshold time.Duration
}

const (
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"

	codeInfo  = "INFO"
	codeWarn  = "WARN"
	codeError = "ERROR"
)

// Logger returns a middleware emitting one action log per request, including
// the tenant bound to the request, if any.
func Logger(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if _, ok := skip[path]; ok {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			status := c.Response().Status
			level, resultCode := determineSeverity(status, latency, cfg.SlowRequestThreshold, err)

			event := createLogEvent(log, level)
			if err != nil {
				event = event.Err(err)
			}
			if tenantID, ok := c.Get(TenantIDKey).(string); ok && tenantID != "" {
				event = event.Str("tenant", tenantID)
			}
			event.
				Str("log.type", "action").
				Str("request_id", requestID(c)).
				Str("http.request.method", c.Request().Method).
				Int("http.response.status_code", status).
				Dur("http.server.request.duration", latency).
				Str("url.path", path).
				Str("http.route", c.Path()).
				Str("client.address", c.RealIP()).
				Str("result_code", resultCode).
				Msgf("%s %s completed in %s with status %d", c.Request().Method, path, latency, status)

			// The error was already rendered above.
			return nil
		}
	}
}

// determineSeverity derives the log level and result_code from status, latency and error.
func determineSeverity(status int, latency, threshold time.Duration, err error) (logLevel, resultCode string) {
	if status >= 500 || (err != nil && status < 400) {
		return levelError, codeError
	}
	if status >= 400 {
		return levelWarn, codeWarn
	}
	if threshold > 0 && latency > threshold {
		return levelInfo, codeWarn
	}
	return levelInfo, codeInfo
}

func createLogEvent(log logger.Logger, level string) logger.LogEvent {
	switch level {
	case levelError:
		return log.Error()
	case levelWarn:
		return log.Warn()
	default:
		return log.Info()
	}
}
