// Package app assembles the tenant router from configuration and manages its
// lifecycle: startup schema sync, HTTP serving, event consumption and
// graceful shutdown.
package app

import (
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/gaborage/go-tenantdb/config"
	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/directory"
	"github.com/gaborage/go-tenantdb/events"
	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/multitenant"
	"github.com/gaborage/go-tenantdb/observability"
	"github.com/gaborage/go-tenantdb/schema"
	"github.com/gaborage/go-tenantdb/server"
)

// App is one running tenant router.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	telemetry   observability.Provider
	metrics     *observability.Metrics
	control     database.Interface
	directory   directory.Directory
	redis       redis.UniversalClient
	pools       *multitenant.PoolCache
	router      *multitenant.RoutingDataSource
	provisioner *schema.Provisioner
	consumer    *events.Consumer
	server      *server.Server

	// closers run in reverse registration order on shutdown.
	closers []namedCloser

	background *backgroundTasks
}

type namedCloser struct {
	name   string
	closer io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Router returns the routing datasource business code should use.
func (a *App) Router() *multitenant.RoutingDataSource {
	return a.router
}

// Pools returns the tenant pool cache.
func (a *App) Pools() *multitenant.PoolCache {
	return a.pools
}

// Directory returns the outermost tenant directory layer.
func (a *App) Directory() directory.Directory {
	return a.directory
}

// Provisioner returns the schema provisioner, or nil when provisioning is disabled.
func (a *App) Provisioner() *schema.Provisioner {
	return a.provisioner
}

// Server returns the HTTP server so callers can register their routes.
func (a *App) Server() *server.Server {
	return a.server
}
