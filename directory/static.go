package directory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gaborage/go-tenantdb/config"
)

// StaticDirectory serves descriptors held in memory, typically the
// multitenant.tenants section of the configuration.
type StaticDirectory struct {
	mu      sync.RWMutex
	tenants map[string]Descriptor
}

var _ Directory = (*StaticDirectory)(nil)

// NewStaticDirectory creates a directory holding descriptors.
func NewStaticDirectory(descriptors ...Descriptor) *StaticDirectory {
	d := &StaticDirectory{tenants: make(map[string]Descriptor, len(descriptors))}
	for _, desc := range descriptors {
		d.tenants[desc.ID] = desc
	}
	return d
}

// FromConfig builds a StaticDirectory from configured tenant entries.
func FromConfig(entries map[string]config.TenantEntry) *StaticDirectory {
	descriptors := make([]Descriptor, 0, len(entries))
	for id, e := range entries {
		descriptors = append(descriptors, Descriptor{
			ID:       id,
			Vendor:   e.Vendor,
			Host:     e.Host,
			Port:     e.Port,
			Database: e.Database,
			Username: e.Username,
			Password: e.Password,
			DSN:      e.DSN,
			Options:  e.Options,
			Status:   e.Status,
		})
	}
	return NewStaticDirectory(descriptors...)
}

// Lookup implements Directory.
func (d *StaticDirectory) Lookup(_ context.Context, tenantID string) (Descriptor, error) {
	d.mu.RLock()
	desc, ok := d.tenants[strings.TrimSpace(tenantID)]
	d.mu.RUnlock()
	if !ok {
		return Descriptor{}, fmt.Errorf("tenant %q: %w", tenantID, ErrTenantNotFound)
	}
	return checkActive(desc)
}

// List implements Directory. Descriptors are returned sorted by id.
func (d *StaticDirectory) List(_ context.Context) ([]Descriptor, error) {
	d.mu.RLock()
	out := make([]Descriptor, 0, len(d.tenants))
	for _, desc := range d.tenants {
		out = append(out, desc)
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b Descriptor) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Put adds or replaces a descriptor.
func (d *StaticDirectory) Put(desc Descriptor) {
	d.mu.Lock()
	d.tenants[desc.ID] = desc
	d.mu.Unlock()
}

// Remove deletes a descriptor.
func (d *StaticDirectory) Remove(tenantID string) {
	d.mu.Lock()
	delete(d.tenants, tenantID)
	d.mu.Unlock()
}
