//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/database/types"
	"github.com/gaborage/go-tenantdb/logger"
)

// PostgreSQLConfig holds configuration for the PostgreSQL test container.
type PostgreSQLConfig struct {
	ImageTag string
	Username string
	Password string
	// Database is the control database created at startup.
	Database string
}

// DefaultPostgreSQLConfig returns the settings used when none are given.
func DefaultPostgreSQLConfig() PostgreSQLConfig {
	return PostgreSQLConfig{
		ImageTag: "17-alpine",
		Username: "tenantdb",
		Password: "tenantdb",
		Database: "control",
	}
}

// PostgreSQL is one running PostgreSQL server. Tenants get their own
// databases on it through CreateDatabase.
type PostgreSQL struct {
	container *postgres.PostgresContainer
	cfg       PostgreSQLConfig
	host      string
	port      int
}

// StartPostgreSQL starts a PostgreSQL server and fails the test if it cannot.
func StartPostgreSQL(ctx context.Context, t *testing.T, cfg *PostgreSQLConfig) *PostgreSQL {
	t.Helper()
	requireDocker(ctx, t)

	c := DefaultPostgreSQLConfig()
	if cfg != nil {
		c = *cfg
	}

	container, err := postgres.Run(ctx,
		"postgres:"+c.ImageTag,
		postgres.WithDatabase(c.Database),
		postgres.WithUsername(c.Username),
		postgres.WithPassword(c.Password),
		testcontainers.WithWaitStrategy(
			// Postgres restarts once after running its init scripts.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(defaultStartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	terminateOnCleanup(t, "PostgreSQL", container)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL port: %v", err)
	}

	t.Logf("PostgreSQL container started at %s:%d", host, port.Int())
	return &PostgreSQL{container: container, cfg: c, host: host, port: port.Int()}
}

// Endpoint returns the endpoint of dbName on this server.
func (p *PostgreSQL) Endpoint(dbName string) database.Endpoint {
	return database.Endpoint{
		Vendor:   types.PostgreSQL,
		Host:     p.host,
		Port:     p.port,
		Database: dbName,
		Username: p.cfg.Username,
		Password: p.cfg.Password,
		Options:  map[string]string{"sslmode": "disable"},
	}
}

// ControlEndpoint returns the endpoint of the database created at startup.
func (p *PostgreSQL) ControlEndpoint() database.Endpoint {
	return p.Endpoint(p.cfg.Database)
}

// CreateDatabase creates an empty database and returns its endpoint.
func (p *PostgreSQL) CreateDatabase(ctx context.Context, t *testing.T, name string) database.Endpoint {
	t.Helper()
	conn, err := database.Open(ctx, p.ControlEndpoint(), database.PoolSettings{}, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer conn.Close()

	// Identifiers cannot be bound as parameters; names come from the test itself.
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %q", name)); err != nil {
		t.Fatalf("Failed to create database %s: %v", name, err)
	}
	return p.Endpoint(name)
}

// Stop stops the server without removing it, so Start can bring it back.
func (p *PostgreSQL) Stop(ctx context.Context, t *testing.T) {
	t.Helper()
	if err := p.container.Stop(ctx, nil); err != nil {
		t.Fatalf("Failed to stop PostgreSQL container: %v", err)
	}
}
