package database

import (
	"github.com/gaborage/go-tenantdb/database/types"
)

// Interface defines the common database operations. The definition lives in
// database/types to keep the vendor packages free of import cycles.
type Interface = types.Interface

// Statement defines the interface for prepared statements.
type Statement = types.Statement

// Tx defines the interface for database transactions.
type Tx = types.Tx

// Endpoint describes how to reach one database.
type Endpoint = types.Endpoint

// PoolSettings bounds one connection pool.
type PoolSettings = types.PoolSettings
