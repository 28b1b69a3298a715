//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/database/types"
)

const mysqlPassword = "tenantdb"

// MySQL is one running MySQL server holding a single tenant database.
type MySQL struct {
	container *mysql.MySQLContainer
	host      string
	port      int
	database  string
}

// StartMySQL starts a MySQL 8 server with database dbName and fails the test
// if it cannot. The root account is used so tests may create more schemas.
func StartMySQL(ctx context.Context, t *testing.T, dbName string) *MySQL {
	t.Helper()
	requireDocker(ctx, t)

	container, err := mysql.Run(ctx,
		"mysql:8.4",
		mysql.WithDatabase(dbName),
		mysql.WithUsername("root"),
		mysql.WithPassword(mysqlPassword),
	)
	if err != nil {
		t.Fatalf("Failed to start MySQL container: %v", err)
	}
	terminateOnCleanup(t, "MySQL", container)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get MySQL host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("Failed to get MySQL port: %v", err)
	}

	t.Logf("MySQL container started at %s:%d", host, port.Int())
	return &MySQL{container: container, host: host, port: port.Int(), database: dbName}
}

// Endpoint returns the endpoint of the tenant database.
func (m *MySQL) Endpoint() database.Endpoint {
	return database.Endpoint{
		Vendor:   types.MySQL,
		Host:     m.host,
		Port:     m.port,
		Database: m.database,
		Username: "root",
		Password: mysqlPassword,
	}
}
