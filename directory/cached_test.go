package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	mu      sync.Mutex
	inner   *StaticDirectory
	lookups atomic.Int32
	err     error
	delay   time.Duration
}

func (c *countingDirectory) Lookup(ctx context.Context, id string) (Descriptor, error) {
	c.lookups.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return Descriptor{}, err
	}
	return c.inner.Lookup(ctx, id)
}

func (c *countingDirectory) List(ctx context.Context) ([]Descriptor, error) {
	return c.inner.List(ctx)
}

func (c *countingDirectory) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newCached(inner *countingDirectory, opts ...CacheOption) (*CachedDirectory, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewCachedDirectory(inner, opts...)
	c.now = clock.Now
	return c, clock
}

func TestCachedDirectoryServesFromCacheWithinTTL(t *testing.T) {
	inner := &countingDirectory{inner: NewStaticDirectory(Descriptor{ID: "acme", Host: "h1"})}
	c, clock := newCached(inner, WithTTL(time.Minute))
	ctx := context.Background()

	for range 5 {
		d, err := c.Lookup(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "h1", d.Host)
	}
	assert.EqualValues(t, 1, inner.lookups.Load())

	inner.inner.Put(Descriptor{ID: "acme", Host: "h2"})
	clock.Advance(2 * time.Minute)

	d, err := c.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "h2", d.Host)
	assert.EqualValues(t, 2, inner.lookups.Load())
}

func TestCachedDirectoryCachesNotFound(t *testing.T) {
	inner := &countingDirectory{inner: NewStaticDirectory()}
	c, _ := newCached(inner)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	_, err = c.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.EqualValues(t, 1, inner.lookups.Load())

	inner.inner.Put(Descriptor{ID: "ghost"})
	c.Invalidate(ctx, "ghost")
	_, err = c.Lookup(ctx, "ghost")
	assert.NoError(t, err)
}

func TestCachedDirectoryServesStaleOnError(t *testing.T) {
	inner := &countingDirectory{inner: NewStaticDirectory(Descriptor{ID: "acme", Host: "h1"})}
	c, clock := newCached(inner, WithTTL(time.Minute), WithStaleGracePeriod(10*time.Minute))
	ctx := context.Background()

	_, err := c.Lookup(ctx, "acme")
	require.NoError(t, err)

	inner.setErr(errors.New("control plane down"))
	clock.Advance(5 * time.Minute)

	d, err := c.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "h1", d.Host)

	clock.Advance(10 * time.Minute)
	_, err = c.Lookup(ctx, "acme")
	assert.ErrorContains(t, err, "control plane down")
}

func TestCachedDirectorySingleFlight(t *testing.T) {
	inner := &countingDirectory{
		inner: NewStaticDirectory(Descriptor{ID: "acme"}),
		delay: 50 * time.Millisecond,
	}
	c := NewCachedDirectory(inner)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Lookup(context.Background(), "acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, inner.lookups.Load())
}

func TestCachedDirectoryEvictsOldestWhenFull(t *testing.T) {
	inner := &countingDirectory{inner: NewStaticDirectory(Descriptor{ID: "a"}, Descriptor{ID: "b"}, Descriptor{ID: "c"})}
	c, clock := newCached(inner, WithMaxSize(2))
	ctx := context.Background()

	_, _ = c.Lookup(ctx, "a")
	clock.Advance(time.Second)
	_, _ = c.Lookup(ctx, "b")
	clock.Advance(time.Second)
	_, _ = c.Lookup(ctx, "a")
	clock.Advance(time.Second)
	_, _ = c.Lookup(ctx, "c")

	assert.Equal(t, 2, c.Len())
	c.mu.RLock()
	_, hasA := c.entries["a"]
	_, hasB := c.entries["b"]
	c.mu.RUnlock()
	assert.True(t, hasA)
	assert.False(t, hasB)
}

// gatedDirectory reads its answer, then parks the first lookup until released.
type gatedDirectory struct {
	inner   *StaticDirectory
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedDirectory) Lookup(ctx context.Context, id string) (Descriptor, error) {
	d, err := g.inner.Lookup(ctx, id)
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
	}
	return d, err
}

func (g *gatedDirectory) List(ctx context.Context) ([]Descriptor, error) {
	return g.inner.List(ctx)
}

func TestCachedDirectoryInvalidateDuringLookup(t *testing.T) {
	inner := &gatedDirectory{
		inner:   NewStaticDirectory(Descriptor{ID: "acme", Host: "old-host"}),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewCachedDirectory(inner, WithTTL(time.Hour))
	ctx := context.Background()

	done := make(chan Descriptor, 1)
	go func() {
		d, err := c.Lookup(ctx, "acme")
		assert.NoError(t, err)
		done <- d
	}()

	<-inner.started
	inner.inner.Put(Descriptor{ID: "acme", Host: "new-host"})
	c.Invalidate(ctx, "acme")
	close(inner.release)

	assert.Equal(t, "new-host", (<-done).Host)

	d, err := c.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "new-host", d.Host)
	assert.EqualValues(t, 2, inner.calls.Load())
}
