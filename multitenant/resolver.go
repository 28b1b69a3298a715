package multitenant

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/gaborage/go-tenantdb/config"
)

// Resolver defaults.
const (
	DefaultTenantHeader  = "X-Tenant-ID"
	DefaultMinHostLabels = 3
)

// TenantResolver resolves the tenant identifier from an incoming request.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, req *http.Request) (string, error)
}

// HeaderResolver extracts the tenant identifier from a configured request header.
type HeaderResolver struct {
	HeaderName string
}

// ResolveTenant implements TenantResolver.
func (r *HeaderResolver) ResolveTenant(_ context.Context, req *http.Request) (string, error) {
	if r == nil || req == nil {
		return "", ErrTenantResolutionFailed
	}

	headerName := r.HeaderName
	if headerName == "" {
		headerName = DefaultTenantHeader
	}

	tenantID := strings.TrimSpace(req.Header.Get(headerName))
	if tenantID == "" {
		return "", ErrTenantResolutionFailed
	}
	return tenantID, nil
}

// HostResolver takes the first label of the request host as tenant, but only
// when the host has at least MinLabels labels: acme.example.com yields
// "acme" while example.com and IP addresses yield nothing.
type HostResolver struct {
	MinLabels    int
	TrustProxies bool
}

// ResolveTenant implements TenantResolver.
func (r *HostResolver) ResolveTenant(_ context.Context, req *http.Request) (string, error) {
	if r == nil || req == nil {
		return "", ErrTenantResolutionFailed
	}

	host := req.Host
	if r.TrustProxies {
		if forwarded := req.Header.Get("X-Forwarded-Host"); forwarded != "" {
			// Proxies may append; the first value is the client-facing host.
			host, _, _ = strings.Cut(forwarded, ",")
		}
	}

	host = normalizeHost(host)
	if host == "" || net.ParseIP(host) != nil {
		return "", ErrTenantResolutionFailed
	}

	minLabels := r.MinLabels
	if minLabels < DefaultMinHostLabels {
		minLabels = DefaultMinHostLabels
	}

	labels := strings.Split(host, ".")
	if len(labels) < minLabels || labels[0] == "" {
		return "", ErrTenantResolutionFailed
	}
	return labels[0], nil
}

// normalizeHost strips the port, IPv6 brackets and a trailing dot. Case is
// kept: the first label is a tenant id and ids are compared verbatim.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.TrimSuffix(host, ".")
}

// CompositeResolver tries multiple resolvers until one succeeds.
type CompositeResolver struct {
	Resolvers   []TenantResolver
	TenantRegex *regexp.Regexp // Optional validation pattern
}

// ResolveTenant implements TenantResolver.
func (r *CompositeResolver) ResolveTenant(ctx context.Context, req *http.Request) (string, error) {
	if r == nil {
		return "", ErrTenantResolutionFailed
	}
	for _, resolver := range r.Resolvers {
		if resolver == nil {
			continue
		}
		tenantID, err := resolver.ResolveTenant(ctx, req)
		if err == nil && tenantID != "" {
			if r.TenantRegex != nil && !r.TenantRegex.MatchString(tenantID) {
				continue
			}
			return tenantID, nil
		}
	}
	return "", ErrTenantResolutionFailed
}

// NewDefaultResolver checks the configured header first and falls back to
// the host name.
func NewDefaultResolver(cfg config.ResolverConfig) *CompositeResolver {
	return &CompositeResolver{
		Resolvers: []TenantResolver{
			&HeaderResolver{HeaderName: cfg.Header},
			&HostResolver{MinLabels: cfg.MinHostLabels, TrustProxies: cfg.TrustProxies},
		},
	}
}
