// Package directory looks up tenant database descriptors in the control plane.
package directory

import (
	"context"
	"fmt"

	"github.com/gaborage/go-tenantdb/database"
)

// Tenant statuses. Only active tenants are routable.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDisabled  = "disabled"
)

// Descriptor is one tenant's database endpoint and credentials. It is a value
// and is never mutated once returned by a Directory.
type Descriptor struct {
	ID       string            `json:"id"`
	Vendor   string            `json:"vendor"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	Database string            `json:"database,omitempty"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	DSN      string            `json:"dsn,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Status   string            `json:"status"`
}

// Active reports whether the tenant may be routed to. An empty status counts
// as active.
func (d Descriptor) Active() bool {
	return d.Status == "" || d.Status == StatusActive
}

// Endpoint converts the descriptor to a database endpoint.
func (d Descriptor) Endpoint() database.Endpoint {
	return database.Endpoint{
		Vendor:   d.Vendor,
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		Username: d.Username,
		Password: d.Password,
		DSN:      d.DSN,
		Options:  d.Options,
	}
}

// String renders the descriptor without credentials.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s@%s", d.ID, d.Endpoint())
}

// Directory returns tenant descriptors. Lookup fails with ErrTenantNotFound
// for unknown ids and ErrTenantInactive for tenants that are not active.
type Directory interface {
	Lookup(ctx context.Context, tenantID string) (Descriptor, error)
	List(ctx context.Context) ([]Descriptor, error)
}

// Invalidator is implemented by caching directories.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// Invalidate drops tenantID from every caching layer of dir.
func Invalidate(ctx context.Context, dir Directory, tenantID string) {
	if inv, ok := dir.(Invalidator); ok {
		inv.Invalidate(ctx, tenantID)
	}
}

func checkActive(d Descriptor) (Descriptor, error) {
	if !d.Active() {
		return Descriptor{}, fmt.Errorf("tenant %s is %s: %w", d.ID, d.Status, ErrTenantInactive)
	}
	return d, nil
}
