package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Database vendor identifiers.
const (
	PostgreSQL = "postgresql"
	MySQL      = "mysql"
	Oracle     = "oracle"
)

// Environment constants.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Directory sources.
const (
	DirectoryStatic = "static"
	DirectorySQL    = "sql"
)

// Fallback modes.
const (
	FallbackModeFallback = "fallback"
	FallbackModeStrict   = "strict"
)

// Observability endpoints and protocols.
const (
	EndpointStdout = "stdout"
	ProtocolHTTP   = "http"
	ProtocolGRPC   = "grpc"
)

// SupportedVendors lists the database vendors a tenant or control database may use.
var SupportedVendors = []string{PostgreSQL, MySQL, Oracle}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct-level constraints first and then the cross-field rules
// that tags cannot express.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return translateValidationErrors(err)
	}

	if err := validateControl(&cfg.Control, &cfg.Multitenant); err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	if err := validateTenants(cfg.Multitenant.Tenants); err != nil {
		return fmt.Errorf("multitenant config: %w", err)
	}

	if err := validateRedis(&cfg.Cache.Redis); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := validateMessaging(&cfg.Messaging); err != nil {
		return fmt.Errorf("messaging config: %w", err)
	}

	if err := validateObservability(&cfg.Observability); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}

	return nil
}

// IsControlConfigured reports whether a control-plane database was configured.
func IsControlConfigured(cfg *DatabaseConfig) bool {
	return cfg.ConnectionString != "" || cfg.Host != ""
}

func validateControl(cfg *DatabaseConfig, mt *MultitenantConfig) error {
	if !IsControlConfigured(cfg) {
		if mt.Directory.Source == DirectorySQL {
			return NewMissingFieldError("control.host", "CONTROL_HOST", "control.host")
		}
		return nil
	}

	if !slices.Contains(SupportedVendors, cfg.Type) {
		return NewInvalidFieldError("control.type", fmt.Sprintf("unsupported database type %q", cfg.Type), SupportedVendors)
	}

	if cfg.ConnectionString != "" {
		return nil
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return NewInvalidFieldError("control.port", fmt.Sprintf("invalid port %d", cfg.Port), []string{"1-65535"})
	}
	if cfg.Database == "" {
		return NewMissingFieldError("control.database", "CONTROL_DATABASE", "control.database")
	}
	if cfg.Username == "" {
		return NewMissingFieldError("control.username", "CONTROL_USERNAME", "control.username")
	}

	return nil
}

func validateTenants(tenants map[string]TenantEntry) error {
	for id := range tenants {
		entry := tenants[id]
		if strings.TrimSpace(id) == "" {
			return NewValidationError("multitenant.tenants", "tenant id must not be blank")
		}
		if entry.Vendor != "" && !slices.Contains(SupportedVendors, entry.Vendor) {
			return NewMultiTenantError(id, "vendor", fmt.Sprintf("unsupported database type %q", entry.Vendor),
				"must be one of: "+strings.Join(SupportedVendors, ", "))
		}
		if entry.DSN == "" && entry.Host == "" {
			return NewMultiTenantError(id, "host", "required",
				fmt.Sprintf("set multitenant.tenants.%s.host or multitenant.tenants.%s.dsn", id, id))
		}
	}
	return nil
}

func validateRedis(cfg *RedisConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Addr == "" {
		return NewMissingFieldError("cache.redis.addr", "CACHE_REDIS_ADDR", "cache.redis.addr")
	}
	if cfg.TTL <= 0 {
		return NewValidationError("cache.redis.ttl", "must be positive")
	}
	return nil
}

func validateMessaging(cfg *MessagingConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.URL == "" {
		return NewMissingFieldError("messaging.url", "MESSAGING_URL", "messaging.url")
	}
	if cfg.Queue == "" {
		return NewMissingFieldError("messaging.queue", "MESSAGING_QUEUE", "messaging.queue")
	}
	return nil
}

func validateObservability(cfg *ObservabilityConfig) error {
	if !cfg.Enabled {
		return nil
	}
	protocols := []string{ProtocolHTTP, ProtocolGRPC}
	if !slices.Contains(protocols, cfg.Trace.Protocol) {
		return NewInvalidFieldError("observability.trace.protocol", fmt.Sprintf("unsupported protocol %q", cfg.Trace.Protocol), protocols)
	}
	if cfg.Trace.SampleRate < 0 || cfg.Trace.SampleRate > 1 {
		return NewValidationError("observability.trace.samplerate", "must be between 0 and 1")
	}
	if cfg.Metrics.Interval <= 0 {
		return NewValidationError("observability.metrics.interval", "must be positive")
	}
	return nil
}

// translateValidationErrors converts validator output into ConfigErrors that name the dotted key.
func translateValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := make([]error, 0, len(validationErrors))
	for _, fe := range validationErrors {
		errs = append(errs, NewValidationError(fieldPath(fe.Namespace()), describeTag(fe)))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.Multitenant.Pool.MaxConns" into "multitenant.pool.maxconns".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	kept := parts[:0]
	for _, p := range parts {
		// embedded pool settings are flattened in the key space
		if p == "PoolConfig" {
			continue
		}
		kept = append(kept, strings.ToLower(p))
	}
	return strings.Join(kept, ".")
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got %v)", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
