package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gaborage/go-tenantdb/logger"
)

// DefaultRedisKeyPrefix namespaces descriptor keys.
const DefaultRedisKeyPrefix = "tenantdb:tenant:"

// RedisDirectory shares descriptors between router instances through Redis.
// Redis failures never fail a lookup: the wrapped directory is asked instead.
// Only active descriptors are stored.
type RedisDirectory struct {
	next      Directory
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	logger    logger.Logger
}

var (
	_ Directory   = (*RedisDirectory)(nil)
	_ Invalidator = (*RedisDirectory)(nil)
)

// NewRedisDirectory wraps next with a Redis cache.
func NewRedisDirectory(next Directory, client redis.UniversalClient, ttl time.Duration, keyPrefix string, log logger.Logger) *RedisDirectory {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisDirectory{
		next:      next,
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

func (r *RedisDirectory) key(tenantID string) string {
	return r.keyPrefix + tenantID
}

// Lookup implements Directory.
func (r *RedisDirectory) Lookup(ctx context.Context, tenantID string) (Descriptor, error) {
	raw, err := r.client.Get(ctx, r.key(tenantID)).Bytes()
	switch {
	case err == nil:
		var d Descriptor
		if jsonErr := json.Unmarshal(raw, &d); jsonErr == nil {
			return checkActive(d)
		}
		r.logger.Warn().Str("tenant_id", tenantID).Msg("Discarding undecodable cached tenant descriptor")
	case !errors.Is(err, redis.Nil):
		r.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("Redis tenant lookup failed, using directory")
	}

	d, err := r.next.Lookup(ctx, tenantID)
	if err != nil {
		return Descriptor{}, err
	}

	if payload, jsonErr := json.Marshal(d); jsonErr == nil {
		if setErr := r.client.Set(ctx, r.key(tenantID), payload, r.ttl).Err(); setErr != nil {
			r.logger.Warn().Err(setErr).Str("tenant_id", tenantID).Msg("Failed to cache tenant descriptor in Redis")
		}
	}
	return d, nil
}

// List implements Directory. Listing always goes to the wrapped directory.
func (r *RedisDirectory) List(ctx context.Context) ([]Descriptor, error) {
	return r.next.List(ctx)
}

// Invalidate removes the shared entry and invalidates the wrapped directory.
func (r *RedisDirectory) Invalidate(ctx context.Context, tenantID string) {
	if err := r.client.Del(ctx, r.key(tenantID)).Err(); err != nil {
		r.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to invalidate tenant descriptor in Redis")
	}
	Invalidate(ctx, r.next, tenantID)
}

// Ping checks the Redis connection.
func (r *RedisDirectory) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
