package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaborage/go-tenantdb/directory"
	"github.com/gaborage/go-tenantdb/logger"
)

// PoolEvicter drops a tenant's cached pool. multitenant.PoolCache implements it.
type PoolEvicter interface {
	Evict(tenantID string) bool
}

// SchemaTrigger starts a background schema sync. schema.Provisioner implements it.
type SchemaTrigger interface {
	Trigger(d directory.Descriptor)
}

// Handler applies tenant events to the router state.
type Handler struct {
	dir    directory.Directory
	pools  PoolEvicter
	schema SchemaTrigger
	logger logger.Logger
}

// NewHandler creates a handler. schema may be nil when provisioning is disabled.
func NewHandler(dir directory.Directory, pools PoolEvicter, schema SchemaTrigger, log logger.Logger) *Handler {
	return &Handler{dir: dir, pools: pools, schema: schema, logger: log}
}

// Handle applies evt. Cached descriptors are always dropped first so the next
// resolution sees the control plane's current state. A returned error means
// the event may succeed when redelivered.
func (h *Handler) Handle(ctx context.Context, evt Event) error {
	directory.Invalidate(ctx, h.dir, evt.TenantID)

	switch evt.Type {
	case TypeTenantUpdated, TypeTenantDeleted:
		evicted := h.pools != nil && h.pools.Evict(evt.TenantID)
		h.logger.Info().
			Str("tenant_id", evt.TenantID).
			Str("event", evt.Type).
			Bool("pool_evicted", evicted).
			Msg("Applied tenant event")
		return nil

	case TypeTenantCreated:
		if h.schema == nil {
			return nil
		}
		desc, err := h.dir.Lookup(ctx, evt.TenantID)
		if errors.Is(err, directory.ErrTenantInactive) {
			h.logger.Debug().Str("tenant_id", evt.TenantID).Msg("Created tenant is not active, schema sync skipped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup tenant %s: %w", evt.TenantID, err)
		}
		h.schema.Trigger(desc)
		h.logger.Info().Str("tenant_id", evt.TenantID).Str("event", evt.Type).Msg("Scheduled schema sync for new tenant")
		return nil
	}

	return fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, evt.Type)
}
