package config

import "time"

// Config represents the overall configuration of a tenant router process.
// Every key is addressable from YAML (dotted path) and from the environment
// (UPPER_CASE with underscores, e.g. MULTITENANT_POOL_MAXCONNS).
type Config struct {
	App           AppConfig           `koanf:"app" yaml:"app"`
	Server        ServerConfig        `koanf:"server" yaml:"server"`
	Log           LogConfig           `koanf:"log" yaml:"log"`
	Control       DatabaseConfig      `koanf:"control" yaml:"control"`
	Multitenant   MultitenantConfig   `koanf:"multitenant" yaml:"multitenant"`
	Cache         CacheConfig         `koanf:"cache" yaml:"cache"`
	Messaging     MessagingConfig     `koanf:"messaging" yaml:"messaging"`
	Observability ObservabilityConfig `koanf:"observability" yaml:"observability"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string `koanf:"name" yaml:"name" validate:"required"`
	Version string `koanf:"version" yaml:"version" validate:"required"`
	Env     string `koanf:"env" yaml:"env" validate:"oneof=development staging production"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" yaml:"host"`
	Port    int           `koanf:"port" yaml:"port" validate:"min=1,max=65535"`
	Timeout TimeoutConfig `koanf:"timeout" yaml:"timeout"`
	Path    PathConfig    `koanf:"path" yaml:"path"`
}

// TimeoutConfig holds HTTP server timeouts.
type TimeoutConfig struct {
	Read     time.Duration `koanf:"read" yaml:"read" validate:"gt=0"`
	Write    time.Duration `koanf:"write" yaml:"write" validate:"gt=0"`
	Idle     time.Duration `koanf:"idle" yaml:"idle"`
	Shutdown time.Duration `koanf:"shutdown" yaml:"shutdown" validate:"gt=0"`
}

// PathConfig holds the operational endpoint paths.
type PathConfig struct {
	Health string `koanf:"health" yaml:"health"`
	Ready  string `koanf:"ready" yaml:"ready"`
	Pools  string `koanf:"pools" yaml:"pools"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Pretty bool   `koanf:"pretty" yaml:"pretty"`
}

// DatabaseConfig holds the control-plane database settings. The control-plane
// database stores the tenant directory and doubles as the fallback datasource.
type DatabaseConfig struct {
	Type     string `koanf:"type" yaml:"type"`
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Database string `koanf:"database" yaml:"database"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`

	ConnectionString string `koanf:"connectionstring" yaml:"connectionstring"`

	Pool PoolConfig `koanf:"pool" yaml:"pool"`
}

// PoolConfig holds connection pool settings for one datasource.
type PoolConfig struct {
	MaxConns          int           `koanf:"maxconns" yaml:"maxconns" validate:"gte=1"`
	IdleConns         int           `koanf:"idleconns" yaml:"idleconns" validate:"gte=0"`
	IdleTime          time.Duration `koanf:"idletime" yaml:"idletime"`
	Lifetime          time.Duration `koanf:"lifetime" yaml:"lifetime"`
	ConnectTimeout    time.Duration `koanf:"connecttimeout" yaml:"connecttimeout" validate:"gt=0"`
	ValidationTimeout time.Duration `koanf:"validationtimeout" yaml:"validationtimeout" validate:"gt=0"`
}

// MultitenantConfig holds every setting of the tenant routing layer.
type MultitenantConfig struct {
	Resolver  ResolverConfig         `koanf:"resolver" yaml:"resolver"`
	Pool      TenantPoolConfig       `koanf:"pool" yaml:"pool"`
	Directory DirectoryConfig        `koanf:"directory" yaml:"directory"`
	Fallback  FallbackConfig         `koanf:"fallback" yaml:"fallback"`
	Schema    SchemaConfig           `koanf:"schema" yaml:"schema"`
	Tenants   map[string]TenantEntry `koanf:"tenants" yaml:"tenants"`
}

// ResolverConfig controls how the tenant identifier is read from a request.
type ResolverConfig struct {
	// Header carries an explicit tenant identifier. Default: X-Tenant-ID.
	Header string `koanf:"header" yaml:"header" validate:"required"`
	// MinHostLabels is the minimum number of dot-separated host labels
	// required before the first label is taken as tenant. Default: 3.
	MinHostLabels int `koanf:"minhostlabels" yaml:"minhostlabels" validate:"gte=3"`
	// TrustProxies makes the host resolver honour X-Forwarded-Host.
	TrustProxies bool `koanf:"trustproxies" yaml:"trustproxies"`
}

// TenantPoolConfig sizes each tenant pool and bounds the pool cache.
// Defaults are deliberately small: one pool may exist per active tenant.
type TenantPoolConfig struct {
	PoolConfig `koanf:",squash" yaml:",inline"`

	MaxTenants      int           `koanf:"maxtenants" yaml:"maxtenants" validate:"gte=1"`
	IdleTTL         time.Duration `koanf:"idlettl" yaml:"idlettl"`
	CleanupInterval time.Duration `koanf:"cleanupinterval" yaml:"cleanupinterval"`
}

// DirectoryConfig selects and tunes the tenant directory.
type DirectoryConfig struct {
	// Source is "static" (multitenant.tenants) or "sql" (control-plane table).
	Source     string        `koanf:"source" yaml:"source" validate:"oneof=static sql"`
	Table      string        `koanf:"table" yaml:"table"`
	CacheTTL   time.Duration `koanf:"cachettl" yaml:"cachettl"`
	StaleGrace time.Duration `koanf:"stalegrace" yaml:"stalegrace"`
	MaxEntries int           `koanf:"maxentries" yaml:"maxentries"`
}

// FallbackConfig decides what happens when a tenant cannot be routed.
type FallbackConfig struct {
	// Mode is "fallback" (serve the control datasource) or "strict" (return an error).
	Mode string `koanf:"mode" yaml:"mode" validate:"oneof=fallback strict"`
	// WarnRate limits degradation warnings per tenant and second.
	WarnRate  float64 `koanf:"warnrate" yaml:"warnrate" validate:"gte=0"`
	WarnBurst int     `koanf:"warnburst" yaml:"warnburst" validate:"gte=0"`
}

// SchemaConfig controls the tenant schema synchroniser.
type SchemaConfig struct {
	Enabled     bool          `koanf:"enabled" yaml:"enabled"`
	ScriptPath  string        `koanf:"scriptpath" yaml:"scriptpath"`
	// VendorScripts maps a vendor to a script used instead of ScriptPath for
	// its tenants. The bundled script needs Oracle 23ai or later.
	VendorScripts map[string]string `koanf:"vendorscripts" yaml:"vendorscripts"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout" validate:"gt=0"`
	Concurrency int           `koanf:"concurrency" yaml:"concurrency" validate:"gte=1"`
	// OnStartup runs the sync for every known tenant once at process start.
	OnStartup bool `koanf:"onstartup" yaml:"onstartup"`
	// Blocking makes startup wait for the initial sync to finish.
	Blocking bool `koanf:"blocking" yaml:"blocking"`
}

// TenantEntry is a statically configured tenant database.
type TenantEntry struct {
	Vendor   string            `koanf:"vendor" yaml:"vendor"`
	Host     string            `koanf:"host" yaml:"host"`
	Port     int               `koanf:"port" yaml:"port"`
	Database string            `koanf:"database" yaml:"database"`
	Username string            `koanf:"username" yaml:"username"`
	Password string            `koanf:"password" yaml:"password"`
	DSN      string            `koanf:"dsn" yaml:"dsn"`
	Status   string            `koanf:"status" yaml:"status"`
	Options  map[string]string `koanf:"options" yaml:"options"`
}

// CacheConfig configures the optional shared Redis descriptor cache.
type CacheConfig struct {
	Redis RedisConfig `koanf:"redis" yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled   bool          `koanf:"enabled" yaml:"enabled"`
	Addr      string        `koanf:"addr" yaml:"addr"`
	Password  string        `koanf:"password" yaml:"password"`
	DB        int           `koanf:"db" yaml:"db"`
	TTL       time.Duration `koanf:"ttl" yaml:"ttl"`
	KeyPrefix string        `koanf:"keyprefix" yaml:"keyprefix"`
}

// MessagingConfig configures the tenant lifecycle event consumer.
type MessagingConfig struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	URL        string `koanf:"url" yaml:"url"`
	Exchange   string `koanf:"exchange" yaml:"exchange"`
	Queue      string `koanf:"queue" yaml:"queue"`
	RoutingKey string `koanf:"routingkey" yaml:"routingkey"`
	Prefetch   int    `koanf:"prefetch" yaml:"prefetch"`
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled     bool          `koanf:"enabled" yaml:"enabled"`
	ServiceName string        `koanf:"servicename" yaml:"servicename"`
	Trace       TraceConfig   `koanf:"trace" yaml:"trace"`
	Metrics     MetricsConfig `koanf:"metrics" yaml:"metrics"`
}

// TraceConfig configures the trace exporter.
type TraceConfig struct {
	Endpoint   string  `koanf:"endpoint" yaml:"endpoint"`
	Protocol   string  `koanf:"protocol" yaml:"protocol"`
	Insecure   bool    `koanf:"insecure" yaml:"insecure"`
	SampleRate float64 `koanf:"samplerate" yaml:"samplerate"`
}

// MetricsConfig configures the metric exporter.
type MetricsConfig struct {
	Endpoint string        `koanf:"endpoint" yaml:"endpoint"`
	Interval time.Duration `koanf:"interval" yaml:"interval"`
}
