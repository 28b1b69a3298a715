package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheOption configures a CachedDirectory.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	ttl              time.Duration
	maxSize          int
	staleGracePeriod time.Duration // how long stale data may be served on directory errors
}

// cacheEntry holds either a descriptor or a definitive negative answer.
type cacheEntry struct {
	descriptor   Descriptor
	err          error
	fetchedAt    time.Time
	lastAccessAt time.Time
}

// CachedDirectory caches lookups of another Directory. Concurrent misses for
// the same tenant share one upstream call. Definitive answers
// (ErrTenantNotFound, ErrTenantInactive) are cached like descriptors; other
// upstream errors are not, and a recently fetched descriptor is served
// instead when one exists.
type CachedDirectory struct {
	next Directory
	cfg  cacheConfig
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	gens    map[string]uint64 // bumped by Invalidate
	sf      singleflight.Group
}

// maxFetchAttempts bounds re-reads caused by invalidations racing a lookup.
const maxFetchAttempts = 3

var (
	_ Directory   = (*CachedDirectory)(nil)
	_ Invalidator = (*CachedDirectory)(nil)
)

// NewCachedDirectory wraps next with an in-process cache.
func NewCachedDirectory(next Directory, opts ...CacheOption) *CachedDirectory {
	cfg := cacheConfig{
		ttl:              5 * time.Minute,
		maxSize:          1000,
		staleGracePeriod: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CachedDirectory{
		next:    next,
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
		gens:    make(map[string]uint64),
	}
}

// Lookup implements Directory.
func (c *CachedDirectory) Lookup(ctx context.Context, tenantID string) (Descriptor, error) {
	c.mu.RLock()
	entry, exists := c.entries[tenantID]
	var fresh bool
	var cached cacheEntry
	if exists {
		cached = *entry
		fresh = c.now().Sub(entry.fetchedAt) <= c.cfg.ttl
	}
	c.mu.RUnlock()

	if fresh {
		c.touch(tenantID)
		return cached.descriptor, cached.err
	}

	result, err, _ := c.sf.Do(tenantID, func() (any, error) {
		return c.fetch(ctx, tenantID)
	})
	if err != nil {
		if exists && cached.err == nil && c.now().Sub(cached.fetchedAt) <= c.cfg.staleGracePeriod {
			return cached.descriptor, nil
		}
		return Descriptor{}, err
	}

	e := result.(*cacheEntry)
	return e.descriptor, e.err
}

// fetch reads tenantID upstream and caches the answer. An Invalidate that
// lands while the read is in flight makes the answer suspect, so it is read
// again rather than cached.
func (c *CachedDirectory) fetch(ctx context.Context, tenantID string) (*cacheEntry, error) {
	for attempt := 1; ; attempt++ {
		c.mu.RLock()
		gen := c.gens[tenantID]
		c.mu.RUnlock()

		desc, err := c.next.Lookup(ctx, tenantID)
		if err != nil && !isDefinitive(err) {
			return nil, err
		}

		now := c.now()
		entry := &cacheEntry{descriptor: desc, err: err, fetchedAt: now, lastAccessAt: now}

		c.mu.Lock()
		if c.gens[tenantID] != gen {
			c.mu.Unlock()
			if attempt == maxFetchAttempts {
				// Served to the waiting callers, never cached.
				return entry, nil
			}
			continue
		}
		if _, exists := c.entries[tenantID]; !exists && len(c.entries) >= c.cfg.maxSize {
			c.evictOldestLocked()
		}
		c.entries[tenantID] = entry
		c.mu.Unlock()
		return entry, nil
	}
}

func isDefinitive(err error) bool {
	return errors.Is(err, ErrTenantNotFound) || errors.Is(err, ErrTenantInactive)
}

// List implements Directory. Listing is never cached.
func (c *CachedDirectory) List(ctx context.Context) ([]Descriptor, error) {
	return c.next.List(ctx)
}

// Invalidate drops the cached entry for tenantID here and in the wrapped
// directory. A lookup already in flight does not cache what it read.
func (c *CachedDirectory) Invalidate(ctx context.Context, tenantID string) {
	// Inner layers first: a re-read must not find the old answer there.
	Invalidate(ctx, c.next, tenantID)
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.gens[tenantID]++
	c.mu.Unlock()
	c.sf.Forget(tenantID)
}

// Len returns the number of cached entries.
func (c *CachedDirectory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CachedDirectory) touch(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.entries[tenantID]; exists {
		entry.lastAccessAt = c.now()
	}
}

// evictOldestLocked removes the least recently accessed entry
func (c *CachedDirectory) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// WithTTL sets how long a lookup result is served from cache.
func WithTTL(ttl time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMaxSize sets the maximum number of cached tenants.
func WithMaxSize(maxSize int) CacheOption {
	return func(cfg *cacheConfig) {
		if maxSize > 0 {
			cfg.maxSize = maxSize
		}
	}
}

// WithStaleGracePeriod sets how long stale data can be served on directory errors.
func WithStaleGracePeriod(period time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if period > 0 {
			cfg.staleGracePeriod = period
		}
	}
}
