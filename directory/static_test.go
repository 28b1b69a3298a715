package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-tenantdb/config"
)

func TestStaticDirectoryLookup(t *testing.T) {
	dir := FromConfig(map[string]config.TenantEntry{
		"acme":   {Vendor: "postgresql", Host: "pg-acme", Database: "acme", Password: "s3cret"},
		"frozen": {Vendor: "mysql", Host: "my-frozen", Status: StatusSuspended},
	})
	ctx := context.Background()

	d, err := dir.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "pg-acme", d.Host)
	assert.True(t, d.Active())

	d, err = dir.Lookup(ctx, " acme ")
	require.NoError(t, err)
	assert.Equal(t, "acme", d.ID)

	_, err = dir.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = dir.Lookup(ctx, "frozen")
	assert.ErrorIs(t, err, ErrTenantInactive)
}

func TestStaticDirectoryListIsSorted(t *testing.T) {
	dir := NewStaticDirectory(Descriptor{ID: "zeta"}, Descriptor{ID: "acme"}, Descriptor{ID: "mid"})
	list, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"acme", "mid", "zeta"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestStaticDirectoryPutRemove(t *testing.T) {
	dir := NewStaticDirectory()
	ctx := context.Background()

	dir.Put(Descriptor{ID: "acme", Vendor: "postgresql"})
	_, err := dir.Lookup(ctx, "acme")
	require.NoError(t, err)

	dir.Remove("acme")
	_, err = dir.Lookup(ctx, "acme")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestDescriptorStringHidesPassword(t *testing.T) {
	d := Descriptor{ID: "acme", Vendor: "postgresql", Host: "db", Port: 5432, Database: "acme", Password: "s3cret"}
	assert.NotContains(t, d.String(), "s3cret")
	assert.Contains(t, d.String(), "acme@postgresql://db:5432/acme")

	ep := d.Endpoint()
	assert.Equal(t, "s3cret", ep.Password)
	assert.Equal(t, "postgresql", ep.Vendor)
}
