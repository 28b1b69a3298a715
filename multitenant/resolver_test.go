package multitenant

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gaborage/go-tenantdb/config"
)

const (
	tenantIDHeader       = "X-Tenant-ID"
	xForwardedHostHeader = "X-Forwarded-Host"
)

// setupTestRequest creates an HTTP request for testing resolvers
func setupTestRequest(host string, headers map[string]string) *http.Request {
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://placeholder/test", http.NoBody)
	req.Host = host
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req
}

func TestHeaderResolverResolveTenant(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		resolver    *HeaderResolver
		headers     map[string]string
		expected    string
		expectError bool
	}{
		{
			name:     "success with default header",
			resolver: &HeaderResolver{},
			headers:  map[string]string{tenantIDHeader: "tenant123"},
			expected: "tenant123",
		},
		{
			name:     "success with custom header",
			resolver: &HeaderResolver{HeaderName: "Custom-Tenant"},
			headers:  map[string]string{"Custom-Tenant": "custom-tenant"},
			expected: "custom-tenant",
		},
		{
			name:     "success with whitespace trimming",
			resolver: &HeaderResolver{},
			headers:  map[string]string{tenantIDHeader: "  spaced-tenant  "},
			expected: "spaced-tenant",
		},
		{
			name:        "missing header",
			resolver:    &HeaderResolver{},
			headers:     map[string]string{},
			expectError: true,
		},
		{
			name:        "whitespace only header value",
			resolver:    &HeaderResolver{},
			headers:     map[string]string{tenantIDHeader: "   "},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenantID, err := tt.resolver.ResolveTenant(ctx, setupTestRequest("example.com", tt.headers))
			if tt.expectError {
				assert.ErrorIs(t, err, ErrTenantResolutionFailed)
				assert.Empty(t, tenantID)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, tenantID)
		})
	}

	t.Run("nil request", func(t *testing.T) {
		_, err := (&HeaderResolver{}).ResolveTenant(ctx, nil)
		assert.ErrorIs(t, err, ErrTenantResolutionFailed)
	})
}

func TestHostResolverResolveTenant(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		resolver *HostResolver
		host     string
		headers  map[string]string
		expected string
	}{
		{name: "two labels yield nothing", resolver: &HostResolver{}, host: "example.com"},
		{name: "three labels yield first", resolver: &HostResolver{}, host: "acme.example.com", expected: "acme"},
		{name: "deeper hosts use first label", resolver: &HostResolver{}, host: "acme.eu.example.com", expected: "acme"},
		{name: "port is stripped", resolver: &HostResolver{}, host: "acme.example.com:8443", expected: "acme"},
		{name: "case is kept", resolver: &HostResolver{}, host: "Acme.Example.COM", expected: "Acme"},
		{name: "trailing dot", resolver: &HostResolver{}, host: "acme.example.com.", expected: "acme"},
		{name: "single label", resolver: &HostResolver{}, host: "localhost:8080"},
		{name: "ipv4 address", resolver: &HostResolver{}, host: "192.168.10.20"},
		{name: "ipv4 with port", resolver: &HostResolver{}, host: "10.0.0.1:8080"},
		{name: "ipv6 with port", resolver: &HostResolver{}, host: "[2001:db8::1]:8080"},
		{name: "bare ipv6", resolver: &HostResolver{}, host: "2001:db8::1"},
		{name: "empty host", resolver: &HostResolver{}, host: ""},
		{name: "empty first label", resolver: &HostResolver{}, host: ".example.com"},
		{name: "higher label minimum", resolver: &HostResolver{MinLabels: 4}, host: "acme.example.com"},
		{
			name:     "forwarded host ignored without trust",
			resolver: &HostResolver{},
			host:     "api.internal.svc",
			headers:  map[string]string{xForwardedHostHeader: "acme.example.com"},
			expected: "api",
		},
		{
			name:     "forwarded host honoured with trust",
			resolver: &HostResolver{TrustProxies: true},
			host:     "api.internal.svc",
			headers:  map[string]string{xForwardedHostHeader: "acme.example.com, proxy.example.com"},
			expected: "acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenantID, err := tt.resolver.ResolveTenant(ctx, setupTestRequest(tt.host, tt.headers))
			if tt.expected == "" {
				assert.ErrorIs(t, err, ErrTenantResolutionFailed)
				assert.Empty(t, tenantID)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, tenantID)
		})
	}
}

func TestCompositeResolverResolveTenant(t *testing.T) {
	ctx := context.Background()
	resolver := NewDefaultResolver(config.ResolverConfig{Header: tenantIDHeader, MinHostLabels: 3})

	t.Run("header wins over host", func(t *testing.T) {
		id, err := resolver.ResolveTenant(ctx, setupTestRequest("beta.example.com", map[string]string{tenantIDHeader: "acme"}))
		assert.NoError(t, err)
		assert.Equal(t, "acme", id)
	})

	t.Run("host used without header", func(t *testing.T) {
		id, err := resolver.ResolveTenant(ctx, setupTestRequest("acme.example.com", nil))
		assert.NoError(t, err)
		assert.Equal(t, "acme", id)
	})

	t.Run("blank header falls back to host", func(t *testing.T) {
		id, err := resolver.ResolveTenant(ctx, setupTestRequest("acme.example.com", map[string]string{tenantIDHeader: " "}))
		assert.NoError(t, err)
		assert.Equal(t, "acme", id)
	})

	t.Run("host and header yield the same id", func(t *testing.T) {
		fromHost, err := resolver.ResolveTenant(ctx, setupTestRequest("Acme.example.com", nil))
		assert.NoError(t, err)
		fromHeader, err := resolver.ResolveTenant(ctx, setupTestRequest("example.com", map[string]string{tenantIDHeader: "Acme"}))
		assert.NoError(t, err)
		assert.Equal(t, fromHeader, fromHost)
	})

	t.Run("nothing resolvable", func(t *testing.T) {
		_, err := resolver.ResolveTenant(ctx, setupTestRequest("example.com", nil))
		assert.ErrorIs(t, err, ErrTenantResolutionFailed)
	})

	t.Run("regex rejects and continues", func(t *testing.T) {
		r := &CompositeResolver{
			Resolvers:   []TenantResolver{&HeaderResolver{}, nil, &HostResolver{}},
			TenantRegex: regexp.MustCompile(`^[a-z0-9-]+$`),
		}
		id, err := r.ResolveTenant(ctx, setupTestRequest("acme.example.com", map[string]string{tenantIDHeader: "bad tenant!"}))
		assert.NoError(t, err)
		assert.Equal(t, "acme", id)
	})

	t.Run("nil composite", func(t *testing.T) {
		var r *CompositeResolver
		_, err := r.ResolveTenant(ctx, setupTestRequest("acme.example.com", nil))
		assert.ErrorIs(t, err, ErrTenantResolutionFailed)
	})
}
