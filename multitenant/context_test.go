package multitenant

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTenant(t *testing.T) {
	ctx := context.Background()

	newCtx := WithTenant(ctx, "test-tenant")
	assert.NotEqual(t, ctx, newCtx)

	tenantID, ok := TenantFromContext(newCtx)
	assert.True(t, ok)
	assert.Equal(t, "test-tenant", tenantID)
}

func TestTenantFromContext(t *testing.T) {
	ctx := context.Background()

	t.Run("no_tenant_in_context", func(t *testing.T) {
		tenantID, ok := TenantFromContext(ctx)
		assert.False(t, ok)
		assert.Empty(t, tenantID)
	})

	t.Run("nil_context", func(t *testing.T) {
		//nolint:staticcheck // nil context is part of the contract
		tenantID, ok := TenantFromContext(nil)
		assert.False(t, ok)
		assert.Empty(t, tenantID)
	})

	t.Run("blank_tenant_id", func(t *testing.T) {
		same := WithTenant(ctx, "   ")
		assert.Equal(t, ctx, same)
		_, ok := TenantFromContext(same)
		assert.False(t, ok)
	})

	t.Run("trimmed_tenant_id", func(t *testing.T) {
		tenantID, ok := TenantFromContext(WithTenant(ctx, " acme "))
		assert.True(t, ok)
		assert.Equal(t, "acme", tenantID)
	})

	t.Run("overwrite_tenant", func(t *testing.T) {
		ctx1 := WithTenant(ctx, "tenant1")
		ctx2 := WithTenant(ctx1, "tenant2")

		tenantID, _ := TenantFromContext(ctx2)
		assert.Equal(t, "tenant2", tenantID)

		tenantID1, _ := TenantFromContext(ctx1)
		assert.Equal(t, "tenant1", tenantID1)
	})
}

func TestWithoutTenant(t *testing.T) {
	bound := WithTenant(context.Background(), "acme")
	cleared := WithoutTenant(bound)

	_, ok := TenantFromContext(cleared)
	assert.False(t, ok)

	tenantID, ok := TenantFromContext(bound)
	assert.True(t, ok)
	assert.Equal(t, "acme", tenantID)

	plain := context.Background()
	assert.Equal(t, plain, WithoutTenant(plain))
}

func TestTenantBindingIsolatedAcrossConcurrentRequests(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := fmt.Sprintf("tenant-%d", i)
			ctx := WithTenant(context.Background(), want)
			for range 100 {
				got, ok := TenantFromContext(ctx)
				if !assert.True(t, ok) || !assert.Equal(t, want, got) {
					return
				}
			}
		}()
	}
	wg.Wait()
}
