package multitenant

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/database/types"
	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/observability"
)

// Target tells where an operation was routed.
type Target string

const (
	TargetTenant   Target = "tenant"
	TargetFallback Target = "fallback"
)

// Reason explains a routing decision.
type Reason string

const (
	ReasonRouted        Reason = "routed"
	ReasonNoTenant      Reason = "no_tenant"
	ReasonUnknownTenant Reason = "unknown_tenant"
	ReasonUnavailable   Reason = "unavailable"
)

// FallbackMode decides what happens when a bound tenant cannot be routed.
type FallbackMode string

const (
	// FallbackModeFallback serves the fallback datasource.
	FallbackModeFallback FallbackMode = "fallback"
	// FallbackModeStrict fails the operation with the routing error.
	FallbackModeStrict FallbackMode = "strict"
)

// Route is the observable outcome of one routing decision.
type Route struct {
	Tenant string
	Target Target
	Reason Reason
	// Err is the cause for Reason unknown_tenant and unavailable.
	Err error
}

// Degraded reports whether a bound tenant was served by the fallback or refused.
func (r Route) Degraded() bool {
	return r.Reason == ReasonUnknownTenant || r.Reason == ReasonUnavailable
}

// PoolResolver hands out tenant pools. PoolCache implements it.
type PoolResolver interface {
	Resolve(ctx context.Context, tenantID string) (database.Interface, error)
	Close() error
}

// RoutingOptions configures a RoutingDataSource.
type RoutingOptions struct {
	Mode FallbackMode
	// WarnRate and WarnBurst throttle degradation warnings per tenant.
	WarnRate  float64
	WarnBurst int
	Metrics   *observability.Metrics
}

const maxWarnLimiters = 1024

// RoutingDataSource is the datasource every persistence call goes through.
// Each operation reads the tenant from its context and runs against that
// tenant's pool, or against the fallback when no tenant is bound or the
// tenant cannot be served.
type RoutingDataSource struct {
	pools    PoolResolver
	fallback database.Interface
	mode     FallbackMode
	metrics  *observability.Metrics
	logger   logger.Logger

	warnLimit rate.Limit
	warnBurst int
	warnMu    sync.Mutex
	warners   map[string]*rate.Limiter
}

var _ database.Interface = (*RoutingDataSource)(nil)

// NewRoutingDataSource creates a router. A nil fallback selects database.NewUnavailable.
func NewRoutingDataSource(pools PoolResolver, fallback database.Interface, log logger.Logger, opts RoutingOptions) *RoutingDataSource {
	if fallback == nil {
		fallback = database.NewUnavailable()
	}
	if opts.Mode == "" {
		opts.Mode = FallbackModeFallback
	}
	if opts.WarnRate <= 0 {
		opts.WarnRate = 1
	}
	if opts.WarnBurst <= 0 {
		opts.WarnBurst = 1
	}
	return &RoutingDataSource{
		pools:     pools,
		fallback:  fallback,
		mode:      opts.Mode,
		metrics:   opts.Metrics,
		logger:    log,
		warnLimit: rate.Limit(opts.WarnRate),
		warnBurst: opts.WarnBurst,
		warners:   make(map[string]*rate.Limiter),
	}
}

// Resolve picks the datasource for ctx. The decision is made afresh on every
// call. In strict mode an unknown or unavailable tenant yields an error and no
// datasource; otherwise the fallback is returned and the error is only
// reported in the Route.
func (r *RoutingDataSource) Resolve(ctx context.Context) (database.Interface, Route, error) {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		route := Route{Target: TargetFallback, Reason: ReasonNoTenant}
		r.record(ctx, route)
		return r.fallback, route, nil
	}

	conn, err := r.pools.Resolve(ctx, tenantID)
	if err == nil {
		route := Route{Tenant: tenantID, Target: TargetTenant, Reason: ReasonRouted}
		r.record(ctx, route)
		return conn, route, nil
	}

	route := Route{Tenant: tenantID, Target: TargetFallback, Reason: ReasonUnavailable, Err: err}
	if errors.Is(err, ErrUnknownTenant) {
		route.Reason = ReasonUnknownTenant
	}
	r.record(ctx, route)

	if r.mode == FallbackModeStrict {
		return nil, route, err
	}
	return r.fallback, route, nil
}

func (r *RoutingDataSource) record(ctx context.Context, route Route) {
	r.metrics.RecordRoute(ctx, string(route.Target), string(route.Reason))

	switch route.Reason {
	case ReasonNoTenant:
		r.logger.Debug().Msg("No tenant bound, using fallback datasource")
	case ReasonUnknownTenant:
		r.logger.Info().Err(route.Err).Str("tenant_id", route.Tenant).Str("mode", string(r.mode)).Msg("Unknown tenant, not routed")
	case ReasonUnavailable:
		if r.allowWarn(route.Tenant) {
			r.logger.Warn().Err(route.Err).Str("tenant_id", route.Tenant).Str("mode", string(r.mode)).Msg("Tenant database unavailable, not routed")
		}
	}
}

// allowWarn throttles degradation warnings per tenant.
func (r *RoutingDataSource) allowWarn(tenantID string) bool {
	r.warnMu.Lock()
	defer r.warnMu.Unlock()

	limiter, ok := r.warners[tenantID]
	if !ok {
		if len(r.warners) >= maxWarnLimiters {
			r.warners = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(r.warnLimit, r.warnBurst)
		r.warners[tenantID] = limiter
	}
	return limiter.Allow()
}

// Query executes a query that returns rows
func (r *RoutingDataSource) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, _, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, query, args...)
}

// QueryRow executes a query that returns at most one row
func (r *RoutingDataSource) QueryRow(ctx context.Context, query string, args ...any) types.Row {
	db, _, err := r.Resolve(ctx)
	if err != nil {
		return types.NewErrorRow(err)
	}
	return db.QueryRow(ctx, query, args...)
}

// Exec executes a query without returning any rows
func (r *RoutingDataSource) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, _, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return db.Exec(ctx, query, args...)
}

// Prepare creates a prepared statement on the datasource routed for ctx.
func (r *RoutingDataSource) Prepare(ctx context.Context, query string) (database.Statement, error) {
	db, _, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return db.Prepare(ctx, query)
}

// Begin starts a transaction. The transaction stays on the datasource routed
// when it began.
func (r *RoutingDataSource) Begin(ctx context.Context) (database.Tx, error) {
	return r.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options
func (r *RoutingDataSource) BeginTx(ctx context.Context, opts *sql.TxOptions) (database.Tx, error) {
	db, _, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return db.BeginTx(ctx, opts)
}

// Health checks the datasource routed for ctx.
func (r *RoutingDataSource) Health(ctx context.Context) error {
	db, _, err := r.Resolve(ctx)
	if err != nil {
		return err
	}
	return db.Health(ctx)
}

// Stats reports the fallback statistics together with the number of cached
// tenant pools.
func (r *RoutingDataSource) Stats() (map[string]any, error) {
	stats, err := r.fallback.Stats()
	out := map[string]any{"fallback": stats, "mode": string(r.mode)}
	if sizer, ok := r.pools.(interface{ Size() int }); ok {
		out["tenant_pools"] = sizer.Size()
	}
	return out, err
}

// Close closes every tenant pool and the fallback.
func (r *RoutingDataSource) Close() error {
	return errors.Join(r.pools.Close(), r.fallback.Close())
}

// DatabaseType returns the fallback vendor; tenant pools may differ.
func (r *RoutingDataSource) DatabaseType() string {
	return r.fallback.DatabaseType()
}

// Fallback returns the fallback datasource.
func (r *RoutingDataSource) Fallback() database.Interface {
	return r.fallback
}

// Mode returns the configured fallback mode.
func (r *RoutingDataSource) Mode() FallbackMode {
	return r.mode
}
