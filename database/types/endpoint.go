package types

import (
	"fmt"
	"time"
)

// Endpoint describes how to reach one database. DSN, when set, wins over the
// discrete fields.
type Endpoint struct {
	Vendor   Vendor
	Host     string
	Port     int
	Database string
	Username string
	Password string
	DSN      string
	Options  map[string]string
}

// String renders the endpoint without credentials.
func (e Endpoint) String() string {
	if e.DSN != "" {
		return fmt.Sprintf("%s(dsn)", e.Vendor)
	}
	return fmt.Sprintf("%s://%s:%d/%s", e.Vendor, e.Host, e.Port, e.Database)
}

// PoolSettings bounds one connection pool. Each tenant pool carries its own
// settings so a slow tenant never affects the others.
type PoolSettings struct {
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxIdleTime   time.Duration
	ConnMaxLifetime   time.Duration
	ConnectTimeout    time.Duration
	ValidationTimeout time.Duration
}

// DefaultTenantPoolSettings returns the conservative per-tenant defaults.
func DefaultTenantPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpenConns:      4,
		MaxIdleConns:      1,
		ConnMaxIdleTime:   2 * time.Minute,
		ConnMaxLifetime:   30 * time.Minute,
		ConnectTimeout:    3 * time.Second,
		ValidationTimeout: 2 * time.Second,
	}
}

// WithDefaults fills zero values from DefaultTenantPoolSettings.
func (s PoolSettings) WithDefaults() PoolSettings {
	d := DefaultTenantPoolSettings()
	if s.MaxOpenConns <= 0 {
		s.MaxOpenConns = d.MaxOpenConns
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = d.MaxIdleConns
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		s.MaxIdleConns = s.MaxOpenConns
	}
	if s.ConnMaxIdleTime <= 0 {
		s.ConnMaxIdleTime = d.ConnMaxIdleTime
	}
	if s.ConnMaxLifetime <= 0 {
		s.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = d.ConnectTimeout
	}
	if s.ValidationTimeout <= 0 {
		s.ValidationTimeout = d.ValidationTimeout
	}
	return s
}
