package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staticTenantsYAML = `
multitenant:
  tenants:
    acme:
      vendor: postgresql
      host: acme-db.internal
      port: 5432
      database: acme
      username: clinic
      password: s3cret
    globex:
      dsn: "postgres://globex@globex-db/globex"
      status: suspended
`

func TestLoadFromBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, "tenantdb", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.Timeout.Read)
	assert.Equal(t, "/_tenants/pools", cfg.Server.Path.Pools)

	mt := cfg.Multitenant
	assert.Equal(t, "X-Tenant-ID", mt.Resolver.Header)
	assert.Equal(t, 3, mt.Resolver.MinHostLabels)
	assert.Equal(t, 4, mt.Pool.MaxConns)
	assert.Equal(t, 1, mt.Pool.IdleConns)
	assert.Equal(t, 2*time.Minute, mt.Pool.IdleTime)
	assert.Equal(t, 3*time.Second, mt.Pool.ConnectTimeout)
	assert.Equal(t, 2*time.Second, mt.Pool.ValidationTimeout)
	assert.Equal(t, 100, mt.Pool.MaxTenants)
	assert.Equal(t, DirectoryStatic, mt.Directory.Source)
	assert.Equal(t, FallbackModeFallback, mt.Fallback.Mode)
	assert.True(t, mt.Schema.Enabled)
	assert.True(t, mt.Schema.OnStartup)
	assert.False(t, mt.Schema.Blocking)
	assert.Equal(t, 4, mt.Schema.Concurrency)
	assert.False(t, IsControlConfigured(&cfg.Control))
}

func TestLoadFromBytesStaticTenants(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(staticTenantsYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Multitenant.Tenants, 2)
	acme := cfg.Multitenant.Tenants["acme"]
	assert.Equal(t, PostgreSQL, acme.Vendor)
	assert.Equal(t, "acme-db.internal", acme.Host)
	assert.Equal(t, 5432, acme.Port)
	assert.Equal(t, "s3cret", acme.Password)
	assert.Equal(t, "suspended", cfg.Multitenant.Tenants["globex"].Status)
}

func TestLoadFromBytesValidation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "invalid fallback mode",
			yaml:  "multitenant:\n  fallback:\n    mode: explode\n",
			field: "multitenant.fallback.mode",
		},
		{
			name:  "host labels below three",
			yaml:  "multitenant:\n  resolver:\n    minhostlabels: 2\n",
			field: "multitenant.resolver.minhostlabels",
		},
		{
			name:  "pool max conns zero",
			yaml:  "multitenant:\n  pool:\n    maxconns: 0\n",
			field: "multitenant.pool.maxconns",
		},
		{
			name:  "sql directory without control database",
			yaml:  "multitenant:\n  directory:\n    source: sql\n",
			field: "control.host",
		},
		{
			name:  "tenant without host",
			yaml:  "multitenant:\n  tenants:\n    acme:\n      database: acme\n",
			field: "tenant 'acme' host",
		},
		{
			name:  "unsupported tenant vendor",
			yaml:  "multitenant:\n  tenants:\n    acme:\n      vendor: mongodb\n      host: h\n",
			field: "tenant 'acme' vendor",
		},
		{
			name:  "redis enabled without ttl",
			yaml:  "cache:\n  redis:\n    enabled: true\n    ttl: 0s\n",
			field: "cache.redis.ttl",
		},
		{
			name:  "messaging enabled without url",
			yaml:  "messaging:\n  enabled: true\n",
			field: "messaging.url",
		},
		{
			name:  "observability bad protocol",
			yaml:  "observability:\n  enabled: true\n  trace:\n    protocol: carrier-pigeon\n",
			field: "observability.trace.protocol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadControlDatabase(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
control:
  host: control-db
  port: 5432
  database: control
  username: router
multitenant:
  directory:
    source: sql
`))
	require.NoError(t, err)
	assert.True(t, IsControlConfigured(&cfg.Control))
	assert.Equal(t, PostgreSQL, cfg.Control.Type)
	assert.Equal(t, 10, cfg.Control.Pool.MaxConns)
}

func TestLoadReadsFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\nmultitenant:\n  pool:\n    maxconns: 6\n"), 0o600))

	t.Setenv(FileEnvVar, path)
	t.Setenv("MULTITENANT_POOL_MAXCONNS", "8")
	t.Setenv("MULTITENANT_RESOLVER_HEADER", "X-Clinic")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Multitenant.Pool.MaxConns, "env must win over the file")
	assert.Equal(t, "X-Clinic", cfg.Multitenant.Resolver.Header)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfigErrorFormatting(t *testing.T) {
	err := NewInvalidFieldError("control.type", "unsupported database type \"x\"", []string{PostgreSQL, MySQL})
	assert.Equal(t, `config_invalid: control.type unsupported database type "x" must be one of: postgresql, mysql`, err.Error())

	missing := NewMissingFieldError("messaging.url", "MESSAGING_URL", "messaging.url")
	assert.Equal(t, "config_missing: messaging.url required set MESSAGING_URL env var or add messaging.url to config.yaml", missing.Error())
}
