//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RabbitMQ is one running broker carrying tenant lifecycle events.
type RabbitMQ struct {
	container *rabbitmq.RabbitMQContainer
	url       string
}

// StartRabbitMQ starts a broker and fails the test if it cannot.
func StartRabbitMQ(ctx context.Context, t *testing.T) *RabbitMQ {
	t.Helper()
	requireDocker(ctx, t)

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-management-alpine",
		rabbitmq.WithAdminUsername("guest"),
		rabbitmq.WithAdminPassword("guest"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(defaultStartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start RabbitMQ container: %v", err)
	}
	terminateOnCleanup(t, "RabbitMQ", container)

	url, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("Failed to get RabbitMQ AMQP URL: %v", err)
	}
	t.Logf("RabbitMQ container started at %s", url)
	return &RabbitMQ{container: container, url: url}
}

// URL returns the AMQP URL of the broker.
func (r *RabbitMQ) URL() string {
	return r.url
}
