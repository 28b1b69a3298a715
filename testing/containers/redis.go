//go:build integration

package containers

import (
	"context"
	"net"
	"strconv"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Redis is one running Redis server.
type Redis struct {
	container *redis.RedisContainer
	addr      string
}

// StartRedis starts a Redis server and fails the test if it cannot.
func StartRedis(ctx context.Context, t *testing.T) *Redis {
	t.Helper()
	requireDocker(ctx, t)

	container, err := redis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(defaultStartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	terminateOnCleanup(t, "Redis", container)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get Redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("Failed to get Redis port: %v", err)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port.Int()))
	t.Logf("Redis container started at %s", addr)
	return &Redis{container: container, addr: addr}
}

// Addr returns host:port of the server.
func (r *Redis) Addr() string {
	return r.addr
}

// Client returns a client that is closed when the test finishes.
func (r *Redis) Client(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: r.addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}
