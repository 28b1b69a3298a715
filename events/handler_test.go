package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-tenantdb/directory"
	"github.com/gaborage/go-tenantdb/logger"
)

type recordingEvicter struct {
	mu      sync.Mutex
	evicted []string
}

func (r *recordingEvicter) Evict(tenantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, tenantID)
	return true
}

type recordingTrigger struct {
	mu        sync.Mutex
	triggered []string
}

func (r *recordingTrigger) Trigger(d directory.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = append(r.triggered, d.ID)
}

// invalidatingDirectory records invalidations on top of a static directory.
type invalidatingDirectory struct {
	*directory.StaticDirectory
	invalidated []string
}

func (d *invalidatingDirectory) Invalidate(_ context.Context, tenantID string) {
	d.invalidated = append(d.invalidated, tenantID)
}

func newHandlerFixture() (*Handler, *invalidatingDirectory, *recordingEvicter, *recordingTrigger) {
	dir := &invalidatingDirectory{StaticDirectory: directory.NewStaticDirectory(
		directory.Descriptor{ID: "acme", Vendor: "postgresql", Host: "db", Database: "acme"},
		directory.Descriptor{ID: "frozen", Vendor: "postgresql", Host: "db", Database: "frozen", Status: directory.StatusSuspended},
	)}
	pools := &recordingEvicter{}
	trigger := &recordingTrigger{}
	return NewHandler(dir, pools, trigger, logger.Nop()), dir, pools, trigger
}

func TestHandlerUpdatedAndDeletedEvictPools(t *testing.T) {
	h, dir, pools, trigger := newHandlerFixture()
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, Event{Type: TypeTenantUpdated, TenantID: "acme"}))
	require.NoError(t, h.Handle(ctx, Event{Type: TypeTenantDeleted, TenantID: "beta"}))

	assert.Equal(t, []string{"acme", "beta"}, dir.invalidated)
	assert.Equal(t, []string{"acme", "beta"}, pools.evicted)
	assert.Empty(t, trigger.triggered)
}

func TestHandlerCreatedTriggersSchemaSync(t *testing.T) {
	h, dir, pools, trigger := newHandlerFixture()

	require.NoError(t, h.Handle(context.Background(), Event{Type: TypeTenantCreated, TenantID: "acme"}))

	assert.Equal(t, []string{"acme"}, dir.invalidated)
	assert.Empty(t, pools.evicted)
	assert.Equal(t, []string{"acme"}, trigger.triggered)
}

func TestHandlerCreatedForUnknownTenantIsRetryable(t *testing.T) {
	h, _, _, trigger := newHandlerFixture()

	err := h.Handle(context.Background(), Event{Type: TypeTenantCreated, TenantID: "ghost"})
	assert.ErrorIs(t, err, directory.ErrTenantNotFound)
	assert.NotErrorIs(t, err, ErrInvalidEvent)
	assert.Empty(t, trigger.triggered)
}

func TestHandlerCreatedForInactiveTenantIsSkipped(t *testing.T) {
	h, _, _, trigger := newHandlerFixture()

	require.NoError(t, h.Handle(context.Background(), Event{Type: TypeTenantCreated, TenantID: "frozen"}))
	assert.Empty(t, trigger.triggered)
}

func TestHandlerWithoutSchemaTrigger(t *testing.T) {
	dir := directory.NewStaticDirectory()
	h := NewHandler(dir, nil, nil, logger.Nop())

	assert.NoError(t, h.Handle(context.Background(), Event{Type: TypeTenantCreated, TenantID: "acme"}))
	assert.NoError(t, h.Handle(context.Background(), Event{Type: TypeTenantDeleted, TenantID: "acme"}))
	assert.ErrorIs(t, h.Handle(context.Background(), Event{Type: "tenant.renamed", TenantID: "acme"}), ErrInvalidEvent)
}
