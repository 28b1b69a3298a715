// Package config loads and validates the tenant router configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// FileEnvVar overrides the path of the YAML configuration file.
const FileEnvVar = "TENANTDB_CONFIG"

// DefaultFile is read when FileEnvVar is unset.
const DefaultFile = "config.yaml"

// envRoots lists the top-level sections that may be overridden from the environment.
var envRoots = []string{"app", "server", "log", "control", "multitenant", "cache", "messaging", "observability"}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration files (config.yaml, then config.<env>.yaml)
// 3. Default values (lowest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := os.Getenv(FileEnvVar)
	if path == "" {
		path = DefaultFile
	}
	if err := loadOptionalFile(k, path); err != nil {
		return nil, err
	}

	if appEnv := k.String("app.env"); appEnv != "" {
		envFile := strings.TrimSuffix(path, ".yaml") + "." + appEnv + ".yaml"
		if err := loadOptionalFile(k, envFile); err != nil {
			return nil, err
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return unmarshalAndValidate(k)
}

// LoadFromBytes builds a configuration from YAML content layered over the defaults.
// Environment variables are not consulted.
func LoadFromBytes(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return unmarshalAndValidate(k)
}

func unmarshalAndValidate(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadOptionalFile loads a YAML file; a missing file is not an error.
func loadOptionalFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadEnv maps UPPER_CASE variables onto lower.case keys, ignoring anything
// outside the known configuration sections.
func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path := strings.ReplaceAll(strings.ToLower(key), "_", ".")
			for _, root := range envRoots {
				if strings.HasPrefix(path, root+".") {
					return path, value
				}
			}
			return "", nil
		},
	}), nil)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "tenantdb",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.timeout.read":     "15s",
		"server.timeout.write":    "30s",
		"server.timeout.idle":     "60s",
		"server.timeout.shutdown": "10s",
		"server.path.health":      "/health",
		"server.path.ready":       "/ready",
		"server.path.pools":       "/_tenants/pools",

		"log.level":  "info",
		"log.pretty": false,

		"control.type":                   PostgreSQL,
		"control.pool.maxconns":          10,
		"control.pool.idleconns":         2,
		"control.pool.idletime":          "5m",
		"control.pool.lifetime":          "30m",
		"control.pool.connecttimeout":    "5s",
		"control.pool.validationtimeout": "2s",

		"multitenant.resolver.header":        "X-Tenant-ID",
		"multitenant.resolver.minhostlabels": 3,
		"multitenant.resolver.trustproxies":  false,
		"multitenant.pool.maxconns":          4,
		"multitenant.pool.idleconns":         1,
		"multitenant.pool.idletime":          "2m",
		"multitenant.pool.lifetime":          "30m",
		"multitenant.pool.connecttimeout":    "3s",
		"multitenant.pool.validationtimeout": "2s",
		"multitenant.pool.maxtenants":        100,
		"multitenant.pool.idlettl":           "15m",
		"multitenant.pool.cleanupinterval":   "5m",
		"multitenant.directory.source":       DirectoryStatic,
		"multitenant.directory.table":        "tenants",
		"multitenant.directory.cachettl":     "1m",
		"multitenant.directory.stalegrace":   "10m",
		"multitenant.directory.maxentries":   1000,
		"multitenant.fallback.mode":          FallbackModeFallback,
		"multitenant.fallback.warnrate":      1.0,
		"multitenant.fallback.warnburst":     1,
		"multitenant.schema.enabled":         true,
		"multitenant.schema.timeout":         "30s",
		"multitenant.schema.concurrency":     4,
		"multitenant.schema.onstartup":       true,
		"multitenant.schema.blocking":        false,

		"cache.redis.enabled":   false,
		"cache.redis.addr":      "localhost:6379",
		"cache.redis.ttl":       "5m",
		"cache.redis.keyprefix": "tenantdb:descriptor:",

		"messaging.enabled":    false,
		"messaging.exchange":   "tenants",
		"messaging.queue":      "tenantdb.lifecycle",
		"messaging.routingkey": "tenant.#",
		"messaging.prefetch":   10,

		"observability.enabled":          false,
		"observability.servicename":      "tenantdb",
		"observability.trace.endpoint":   EndpointStdout,
		"observability.trace.protocol":   ProtocolHTTP,
		"observability.trace.samplerate": 1.0,
		"observability.metrics.endpoint": EndpointStdout,
		"observability.metrics.interval": "30s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
