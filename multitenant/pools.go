package multitenant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/directory"
	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/observability"
)

// Pool cache defaults.
const (
	DefaultMaxTenants = 100
	DefaultIdleTTL    = 15 * time.Minute
)

// maxBuildAttempts bounds rebuilds caused by evictions racing a build.
const maxBuildAttempts = 3

var errBuildSuperseded = errors.New("pool evicted while building")

// Eviction reasons, also used as metric attributes.
const (
	EvictProbeFailed = "probe_failed"
	EvictIdle        = "idle"
	EvictCapacity    = "capacity"
	EvictReplaced    = "replaced"
	EvictManual      = "manual"
)

// SchemaHook is called after a tenant pool was built and cached. It must not
// block; the schema provisioner's Trigger fits.
type SchemaHook func(directory.Descriptor)

// PoolOptions configures a PoolCache.
type PoolOptions struct {
	Settings   database.PoolSettings
	MaxTenants int
	IdleTTL    time.Duration
	Connector  database.Connector
	SchemaHook SchemaHook
	Metrics    *observability.Metrics
}

// PoolCache holds at most one live, health-checked pool per tenant. Pools are
// built lazily on first use and rebuilt when their liveness probe fails.
type PoolCache struct {
	dir      directory.Directory
	connect  database.Connector
	settings database.PoolSettings
	maxConns int
	idleTTL  time.Duration
	hook     SchemaHook
	metrics  *observability.Metrics
	logger   logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*poolEntry
	gens    map[string]uint64 // bumped by Evict; a build stores only if unchanged
	closed  bool
	sfg     singleflight.Group

	closers     sync.WaitGroup
	cleanupMu   sync.Mutex
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type poolEntry struct {
	conn       database.Interface
	descriptor directory.Descriptor
	createdAt  time.Time
	lastUsed   atomic.Int64 // unix nanoseconds
}

func (e *poolEntry) touch(now time.Time) {
	e.lastUsed.Store(now.UnixNano())
}

func (e *poolEntry) lastUsedAt() time.Time {
	return time.Unix(0, e.lastUsed.Load())
}

// PoolInfo describes one cached pool.
type PoolInfo struct {
	Tenant    string         `json:"tenant"`
	Vendor    string         `json:"vendor"`
	Endpoint  string         `json:"endpoint"`
	CreatedAt time.Time      `json:"created_at"`
	LastUsed  time.Time      `json:"last_used"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// NewPoolCache creates an empty cache over dir.
func NewPoolCache(dir directory.Directory, log logger.Logger, opts PoolOptions) *PoolCache {
	if opts.MaxTenants <= 0 {
		opts.MaxTenants = DefaultMaxTenants
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Connector == nil {
		opts.Connector = database.Connect
	}
	return &PoolCache{
		dir:      dir,
		connect:  opts.Connector,
		settings: opts.Settings.WithDefaults(),
		maxConns: opts.MaxTenants,
		idleTTL:  opts.IdleTTL,
		hook:     opts.SchemaHook,
		metrics:  opts.Metrics,
		logger:   log,
		now:      time.Now,
		entries:  make(map[string]*poolEntry),
		gens:     make(map[string]uint64),
	}
}

// SetSchemaHook installs the hook run after each successful build.
func (c *PoolCache) SetSchemaHook(hook SchemaHook) {
	c.mu.Lock()
	c.hook = hook
	c.mu.Unlock()
}

// Resolve returns the live pool for tenantID. A cached pool is probed first
// and evicted when the probe fails; on a miss the pool is built, probed and
// cached. Concurrent misses for one tenant share a single build. Errors wrap
// ErrNoTenant, ErrUnknownTenant or ErrTenantUnavailable.
func (c *PoolCache) Resolve(ctx context.Context, tenantID string) (database.Interface, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrNoTenant
	}

	if entry := c.get(tenantID); entry != nil {
		err := entry.conn.Health(ctx)
		// A saturated pool is alive; callers queue on it like any other.
		if err == nil || errors.Is(err, database.ErrPoolBusy) {
			entry.touch(c.now())
			return entry.conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tenant %q: %w: %w", tenantID, ErrTenantUnavailable, ctx.Err())
		}
		c.metrics.RecordProbeFailure(ctx)
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("Tenant pool failed liveness probe, evicting")
		c.evictEntry(tenantID, entry, EvictProbeFailed)
	}

	// The build outlives a single caller: waiting callers share its result,
	// and every step is bounded by the pool timeouts.
	buildCtx := context.WithoutCancel(ctx)
	result, err, _ := c.sfg.Do(tenantID, func() (any, error) {
		return c.build(buildCtx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return result.(database.Interface), nil
}

func (c *PoolCache) get(tenantID string) *poolEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[tenantID]
}

func (c *PoolCache) build(ctx context.Context, tenantID string) (database.Interface, error) {
	for attempt := 1; ; attempt++ {
		conn, err := c.buildOnce(ctx, tenantID)
		if !errors.Is(err, errBuildSuperseded) {
			return conn, err
		}
		if attempt == maxBuildAttempts {
			return nil, fmt.Errorf("tenant %q: %w: %w", tenantID, ErrTenantUnavailable, err)
		}
		c.logger.Debug().Str("tenant_id", tenantID).Int("attempt", attempt).Msg("Tenant pool evicted during build, rebuilding")
	}
}

func (c *PoolCache) buildOnce(ctx context.Context, tenantID string) (database.Interface, error) {
	c.mu.RLock()
	closed, cached, gen := c.closed, c.entries[tenantID], c.gens[tenantID]
	c.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("tenant %q: %w: pool cache closed", tenantID, ErrTenantUnavailable)
	}
	// A build that finished just before this flight started already cached a pool.
	if cached != nil {
		return cached.conn, nil
	}

	desc, err := c.dir.Lookup(ctx, tenantID)
	if err != nil {
		if errors.Is(err, directory.ErrTenantNotFound) || errors.Is(err, directory.ErrTenantInactive) {
			return nil, fmt.Errorf("tenant %q: %w: %w", tenantID, ErrUnknownTenant, err)
		}
		return nil, fmt.Errorf("tenant %q: %w: directory lookup: %w", tenantID, ErrTenantUnavailable, err)
	}

	start := c.now()
	conn, err := c.connect(ctx, desc.Endpoint(), c.settings, c.logger)
	if err != nil {
		c.metrics.RecordPoolBuild(ctx, desc.Vendor, "failure", c.now().Sub(start))
		return nil, fmt.Errorf("tenant %q: %w: %w", tenantID, ErrTenantUnavailable, err)
	}

	if err := conn.Health(ctx); err != nil {
		_ = conn.Close()
		c.metrics.RecordPoolBuild(ctx, desc.Vendor, "failure", c.now().Sub(start))
		return nil, fmt.Errorf("tenant %q: %w: probe: %w", tenantID, ErrTenantUnavailable, err)
	}

	built := &poolEntry{conn: conn, descriptor: desc, createdAt: c.now()}
	built.touch(built.createdAt)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("tenant %q: %w: pool cache closed", tenantID, ErrTenantUnavailable)
	}
	// The descriptor may predate an eviction issued during the build.
	if c.gens[tenantID] != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, errBuildSuperseded
	}
	if prior, ok := c.entries[tenantID]; ok {
		c.closeAsync(tenantID, prior.conn, EvictReplaced)
	}
	c.entries[tenantID] = built
	if len(c.entries) > c.maxConns {
		c.evictLRULocked(tenantID)
	}
	hook := c.hook
	c.mu.Unlock()

	c.metrics.RecordPoolBuild(ctx, desc.Vendor, "success", c.now().Sub(start))
	c.logger.Info().
		Str("tenant_id", tenantID).
		Str("vendor", desc.Vendor).
		Str("endpoint", desc.Endpoint().String()).
		Dur("elapsed", c.now().Sub(start)).
		Msg("Initialized database pool for tenant")

	if hook != nil {
		hook(desc)
	}
	return conn, nil
}

// evictLRULocked removes the least recently used entry other than keep.
func (c *PoolCache) evictLRULocked(keep string) {
	var oldestTenant string
	var oldestTime time.Time

	for tenantID, entry := range c.entries {
		if tenantID == keep {
			continue
		}
		if last := entry.lastUsedAt(); oldestTenant == "" || last.Before(oldestTime) {
			oldestTenant = tenantID
			oldestTime = last
		}
	}

	if oldestTenant != "" {
		entry := c.entries[oldestTenant]
		delete(c.entries, oldestTenant)
		c.closeAsync(oldestTenant, entry.conn, EvictCapacity)
	}
}

// evictEntry removes tenantID only while it still maps to entry, so a pool
// rebuilt concurrently is never thrown away.
func (c *PoolCache) evictEntry(tenantID string, entry *poolEntry, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[tenantID]; ok && current == entry {
		delete(c.entries, tenantID)
		c.closeAsync(tenantID, entry.conn, reason)
	}
}

// closeAsync closes conn in the background. Connections already checked out
// of the pool keep working until they are returned.
func (c *PoolCache) closeAsync(tenantID string, conn database.Interface, reason string) {
	c.metrics.RecordEviction(context.Background(), reason)
	c.closers.Add(1)
	go func() {
		defer c.closers.Done()
		if err := conn.Close(); err != nil {
			c.logger.Error().Err(err).Str("tenant_id", tenantID).Str("reason", reason).Msg("Failed to close evicted tenant pool")
			return
		}
		c.logger.Debug().Str("tenant_id", tenantID).Str("reason", reason).Msg("Evicted tenant pool")
	}()
}

// Evict drops the cached pool of tenantID, if any, and discards the result of
// a build still in flight. The next Resolve rebuilds it. The result reports
// whether a cached pool was dropped.
func (c *PoolCache) Evict(tenantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[tenantID]++
	entry, ok := c.entries[tenantID]
	if !ok {
		return false
	}
	delete(c.entries, tenantID)
	c.closeAsync(tenantID, entry.conn, EvictManual)
	return true
}

// CleanupIdle evicts pools unused for longer than the idle TTL and returns
// how many were evicted.
func (c *PoolCache) CleanupIdle() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for tenantID, entry := range c.entries {
		if now.Sub(entry.lastUsedAt()) > c.idleTTL {
			delete(c.entries, tenantID)
			c.closeAsync(tenantID, entry.conn, EvictIdle)
			evicted++
		}
	}
	return evicted
}

// StartCleanup runs CleanupIdle every interval until StopCleanup or Close.
func (c *PoolCache) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if c.stopCleanup != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCleanup, c.cleanupDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.CleanupIdle(); n > 0 {
					c.logger.Debug().Int("evicted", n).Msg("Cleaned up idle tenant pools")
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup loop started by StartCleanup.
func (c *PoolCache) StopCleanup() {
	c.cleanupMu.Lock()
	stop, done := c.stopCleanup, c.cleanupDone
	c.stopCleanup, c.cleanupDone = nil, nil
	c.cleanupMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Size returns the number of cached pools.
func (c *PoolCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Tenants returns the ids of cached pools in sorted order.
func (c *PoolCache) Tenants() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Stats describes every cached pool, sorted by tenant.
func (c *PoolCache) Stats() []PoolInfo {
	c.mu.RLock()
	infos := make([]PoolInfo, 0, len(c.entries))
	for id, entry := range c.entries {
		stats, _ := entry.conn.Stats()
		infos = append(infos, PoolInfo{
			Tenant:    id,
			Vendor:    entry.descriptor.Vendor,
			Endpoint:  entry.descriptor.Endpoint().String(),
			CreatedAt: entry.createdAt,
			LastUsed:  entry.lastUsedAt(),
			Stats:     stats,
		})
	}
	c.mu.RUnlock()

	slices.SortFunc(infos, func(a, b PoolInfo) int { return strings.Compare(a.Tenant, b.Tenant) })
	return infos
}

// Close closes every cached pool and rejects further builds.
func (c *PoolCache) Close() error {
	c.StopCleanup()

	c.mu.Lock()
	c.closed = true
	entries := c.entries
	c.entries = make(map[string]*poolEntry)
	c.mu.Unlock()

	var errs []error
	for tenantID, entry := range entries {
		if err := entry.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close pool for tenant %s: %w", tenantID, err))
		}
	}
	c.closers.Wait()

	return errors.Join(errs...)
}
