package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/gaborage/go-tenantdb/database"
)

// Options overrides collaborators that are otherwise built from configuration.
type Options struct {
	// Connector opens tenant databases. Defaults to database.Connect.
	Connector database.Connector
	// Control replaces the control-plane database.
	Control database.Interface
	// Redis replaces the client built from cache.redis.
	Redis redis.UniversalClient
}

// Option mutates Options.
type Option func(*Options)

// WithConnector sets the tenant database connector.
func WithConnector(connector database.Connector) Option {
	return func(o *Options) { o.Connector = connector }
}

// WithControl sets the control-plane database. The app takes ownership and closes it.
func WithControl(db database.Interface) Option {
	return func(o *Options) { o.Control = db }
}

// WithRedisClient sets the Redis client used for the shared descriptor cache.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *Options) { o.Redis = client }
}
