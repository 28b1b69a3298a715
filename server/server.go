// Package server exposes the tenant router over HTTP using the Echo framework.
// It binds the request tenant, serves the probe endpoints and reports the
// tenant pool cache.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-tenantdb/config"
	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/multitenant"
)

// ReadinessFunc reports whether the process can serve traffic.
type ReadinessFunc func(ctx context.Context) error

// PoolReporter describes the cached tenant pools. multitenant.PoolCache implements it.
type PoolReporter interface {
	Stats() []multitenant.PoolInfo
}

// Dependencies are the collaborators the HTTP surface talks to. Nil fields
// disable the related behaviour.
type Dependencies struct {
	Resolver multitenant.TenantResolver
	Ready    ReadinessFunc
	Pools    PoolReporter
}

// Server represents an HTTP server instance with Echo framework.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	deps   Dependencies
	logger logger.Logger
}

// normalizeRoutePath ensures a route path starts with "/" and handles empty paths
func normalizeRoutePath(route, defaultRoute string) string {
	if route == "" {
		route = defaultRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

// New creates a server with middlewares and the operational endpoints registered.
func New(cfg *config.Config, log logger.Logger, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log, cfg.App.Env == config.EnvDevelopment)

	healthPath := normalizeRoutePath(cfg.Server.Path.Health, "/health")
	readyPath := normalizeRoutePath(cfg.Server.Path.Ready, "/ready")
	poolsPath := normalizeRoutePath(cfg.Server.Path.Pools, "/_tenants/pools")

	SetupMiddlewares(e, log, MiddlewareConfig{
		ServiceName: cfg.App.Name,
		Resolver:    deps.Resolver,
		Logger: LoggerConfig{
			SkipPaths:            []string{healthPath, readyPath},
			SlowRequestThreshold: time.Second,
		},
	})

	s := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		logger: log,
	}

	e.GET(healthPath, s.healthCheck)
	e.GET(readyPath, s.readyCheck)
	e.GET(poolsPath, s.poolStats)

	log.Debug().
		Str("health_path", healthPath).
		Str("ready_path", readyPath).
		Str("pools_path", poolsPath).
		Msg("Server paths configured")

	return s
}

// Echo returns the underlying Echo instance for route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// Start starts the HTTP server and blocks until it is shut down.
// http.ErrServerClosed is returned after a graceful shutdown.
func (s *Server) Start() error {
	addr := s.Address()

	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", addr).
		Msg("Starting server...")

	// Echo's Shutdown stops e.Server, so the timeouts go on that instance.
	srv := s.echo.Server
	srv.Addr = addr
	srv.ReadTimeout = s.cfg.Server.Timeout.Read
	srv.WriteTimeout = s.cfg.Server.Timeout.Write
	srv.IdleTimeout = s.cfg.Server.Timeout.Idle
	return s.echo.StartServer(srv)
}

// Shutdown gracefully shuts down the HTTP server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) readyCheck(c echo.Context) error {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(c.Request().Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			return NewServiceUnavailableError(fmt.Sprintf("not ready: %v", err))
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// PoolsResponse is the body of the pool stats endpoint.
type PoolsResponse struct {
	Count int                    `json:"count"`
	Pools []multitenant.PoolInfo `json:"pools"`
}

func (s *Server) poolStats(c echo.Context) error {
	resp := PoolsResponse{Pools: []multitenant.PoolInfo{}}
	if s.deps.Pools != nil {
		resp.Pools = s.deps.Pools.Stats()
	}
	resp.Count = len(resp.Pools)
	return c.JSON(http.StatusOK, resp)
}
