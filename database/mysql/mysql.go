// Package mysql opens MySQL pools through go-sql-driver/mysql.
package mysql

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/gaborage/go-tenantdb/database/types"
)

// Config translates ep into a driver configuration.
func Config(ep types.Endpoint, settings types.PoolSettings) (*mysql.Config, error) {
	var cfg *mysql.Config
	if ep.DSN != "" {
		parsed, err := mysql.ParseDSN(ep.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
		}
		cfg = parsed
	} else {
		port := ep.Port
		if port == 0 {
			port = 3306
		}
		cfg = mysql.NewConfig()
		cfg.User = ep.Username
		cfg.Passwd = ep.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(ep.Host, strconv.Itoa(port))
		cfg.DBName = ep.Database
		cfg.ParseTime = true
		// DDL scripts are sent statement by statement, never batched.
		cfg.MultiStatements = false
		if len(ep.Options) > 0 {
			cfg.Params = make(map[string]string, len(ep.Options))
			for k, v := range ep.Options {
				cfg.Params[k] = v
			}
		}
	}

	if settings.ConnectTimeout > 0 {
		cfg.Timeout = settings.ConnectTimeout
	}
	return cfg, nil
}

// Open prepares a pool for ep. No connection is made until the pool is used.
func Open(ep types.Endpoint, settings types.PoolSettings) (*sql.DB, error) {
	cfg, err := Config(ep, settings)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}
