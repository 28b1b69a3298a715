package app

import (
	"context"
	"errors"
	"fmt"

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

// New builds every component from cfg. Nothing is started: the HTTP server,
// the cleanup loop and the event consumer begin with Start or Run. Components
// already built are closed again when a later step fails.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (app *App, err error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: log, background: newBackgroundTasks()}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	if err := a.initTelemetry(); err != nil {
		return nil, err
	}
	if err := a.initControl(&o); err != nil {
		return nil, err
	}
	a.initDirectory(&o)

	connector := o.Connector
	if connector == nil {
		connector = database.Connect
	}

	mt := &cfg.Multitenant
	a.pools = multitenant.NewPoolCache(a.directory, log, multitenant.PoolOptions{
		Settings:   tenantPoolSettings(&mt.Pool),
		MaxTenants: mt.Pool.MaxTenants,
		IdleTTL:    mt.Pool.IdleTTL,
		Connector:  connector,
		Metrics:    a.metrics,
	})

	if err := a.initProvisioner(connector); err != nil {
		return nil, err
	}

	a.router = multitenant.NewRoutingDataSource(a.pools, a.control, log, multitenant.RoutingOptions{
		Mode:      multitenant.FallbackMode(mt.Fallback.Mode),
		WarnRate:  mt.Fallback.WarnRate,
		WarnBurst: mt.Fallback.WarnBurst,
		Metrics:   a.metrics,
	})
	// Closing the router closes the pool cache and the control database.
	a.addCloser("router", a.router)

	reg, err := a.metrics.RegisterActivePools(a.pools.Size)
	if err != nil {
		return nil, fmt.Errorf("register active pools gauge: %w", err)
	}
	a.addCloser("active pools gauge", closerFunc(reg.Unregister))

	a.initConsumer()

	probes := []HealthProbe{controlHealthProbe(a.control)}
	if a.redis != nil {
		probes = append(probes, redisHealthProbe(a.redis))
	}
	a.server = server.New(cfg, log, server.Dependencies{
		Resolver: multitenant.NewDefaultResolver(mt.Resolver),
		Ready:    readiness(probes, log),
		Pools:    a.pools,
	})

	log.Info().
		Str("fallback_mode", mt.Fallback.Mode).
		Str("directory", mt.Directory.Source).
		Int("max_tenants", mt.Pool.MaxTenants).
		Bool("schema_sync", a.provisioner != nil).
		Bool("events", a.consumer != nil).
		Msg("Tenant router initialized")
	return a, nil
}

func (a *App) initTelemetry() error {
	provider, err := observability.NewProvider(a.cfg.Observability, observability.Settings{
		ServiceVersion: a.cfg.App.Version,
		Environment:    a.cfg.App.Env,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	a.telemetry = provider
	a.addCloser("telemetry", closerFunc(func() error {
		return observability.Shutdown(provider, a.cfg.Server.Timeout.Shutdown)
	}))

	metrics, err := observability.NewMetrics(provider.MeterProvider())
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	a.metrics = metrics
	return nil
}

// initControl opens the control-plane database. Without one the router still
// serves tenants, but the fallback target rejects every operation.
func (a *App) initControl(o *Options) error {
	switch {
	case o.Control != nil:
		a.control = o.Control
	case config.IsControlConfigured(&a.cfg.Control):
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Control.Pool.ConnectTimeout+a.cfg.Control.Pool.ValidationTimeout)
		defer cancel()
		conn, err := database.Open(ctx, controlEndpoint(&a.cfg.Control), poolSettings(&a.cfg.Control.Pool), a.logger)
		if err != nil {
			return fmt.Errorf("control database: %w", err)
		}
		a.control = conn
	default:
		a.logger.Warn().Msg("No control database configured; untenanted operations will fail")
		a.control = database.NewUnavailable()
	}
	return nil
}

// initDirectory stacks the directory layers: source, optional shared Redis
// cache, then the in-process cache the pool cache reads from.
func (a *App) initDirectory(o *Options) {
	dcfg := &a.cfg.Multitenant.Directory

	var dir directory.Directory
	if dcfg.Source == config.DirectorySQL {
		dir = directory.NewSQLDirectory(a.control, dcfg.Table, a.logger)
	} else {
		dir = directory.FromConfig(a.cfg.Multitenant.Tenants)
	}

	rcfg := &a.cfg.Cache.Redis
	switch {
	case o.Redis != nil:
		a.redis = o.Redis
	case rcfg.Enabled:
		client := redis.NewClient(&redis.Options{
			Addr:     rcfg.Addr,
			Password: rcfg.Password,
			DB:       rcfg.DB,
		})
		a.redis = client
		a.addCloser("redis", client)
	}
	if a.redis != nil {
		dir = directory.NewRedisDirectory(dir, a.redis, rcfg.TTL, rcfg.KeyPrefix, a.logger)
	}

	a.directory = directory.NewCachedDirectory(dir,
		directory.WithTTL(dcfg.CacheTTL),
		directory.WithMaxSize(dcfg.MaxEntries),
		directory.WithStaleGracePeriod(dcfg.StaleGrace),
	)
}

func (a *App) initProvisioner(connector database.Connector) error {
	scfg := &a.cfg.Multitenant.Schema
	if !scfg.Enabled {
		return nil
	}
	script, err := schema.ResolveScript(scfg.ScriptPath)
	if err != nil {
		return fmt.Errorf("schema script: %w", err)
	}
	vendorScripts, err := schema.ResolveVendorScripts(scfg.VendorScripts)
	if err != nil {
		return fmt.Errorf("vendor schema script: %w", err)
	}
	a.provisioner = schema.NewProvisioner(a.directory, script, connector, a.logger, schema.Options{
		Timeout:       scfg.Timeout,
		Concurrency:   scfg.Concurrency,
		Settings:      tenantPoolSettings(&a.cfg.Multitenant.Pool),
		VendorScripts: vendorScripts,
		Metrics:       a.metrics,
		Tracer:        a.telemetry.TracerProvider().Tracer(observability.ScopeName),
	})
	a.pools.SetSchemaHook(a.provisioner.Trigger)
	a.logger.Info().
		Str("script", script.Name()).
		Int("statements", script.Len()).
		Msg("Schema provisioning enabled")
	return nil
}

func (a *App) initConsumer() {
	if !a.cfg.Messaging.Enabled {
		return
	}
	var trigger events.SchemaTrigger
	if a.provisioner != nil {
		trigger = a.provisioner
	}
	handler := events.NewHandler(a.directory, a.pools, trigger, a.logger)
	a.consumer = events.NewConsumer(a.cfg.Messaging, handler, a.logger)
}

func (a *App) addCloser(name string, closer interface{ Close() error }) {
	a.closers = append(a.closers, namedCloser{name: name, closer: closer})
}

// closeAll releases everything New built, newest first.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.shutdownResource(a.closers[i], &errs)
	}
	a.closers = nil
	// The router owns the pool cache and the control database; close them
	// directly only when no router was built.
	if a.router == nil {
		if a.provisioner != nil {
			a.provisioner.Close()
		}
		if a.pools != nil {
			if err := a.pools.Close(); err != nil {
				errs = append(errs, fmt.Errorf("pools: %w", err))
			}
		}
		if a.control != nil {
			if err := a.control.Close(); err != nil {
				errs = append(errs, fmt.Errorf("control: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

func controlEndpoint(cfg *config.DatabaseConfig) database.Endpoint {
	return database.Endpoint{
		Vendor:   cfg.Type,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		DSN:      cfg.ConnectionString,
	}
}

func poolSettings(cfg *config.PoolConfig) database.PoolSettings {
	return database.PoolSettings{
		MaxOpenConns:      cfg.MaxConns,
		MaxIdleConns:      cfg.IdleConns,
		ConnMaxIdleTime:   cfg.IdleTime,
		ConnMaxLifetime:   cfg.Lifetime,
		ConnectTimeout:    cfg.ConnectTimeout,
		ValidationTimeout: cfg.ValidationTimeout,
	}
}

func tenantPoolSettings(cfg *config.TenantPoolConfig) database.PoolSettings {
	return poolSettings(&cfg.PoolConfig)
}
