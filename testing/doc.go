// Package testing holds test doubles and containers shared by the tenant
// router's unit and integration tests.
//
// The mocks subpackage provides testify-based mocks for database.Interface
// and directory.Directory. The containers subpackage, built only with the
// integration tag, starts PostgreSQL, MySQL, Redis and RabbitMQ through
// testcontainers.
package testing
