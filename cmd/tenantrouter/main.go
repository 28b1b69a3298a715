// Package main runs the tenant router as a standalone service. Configuration
// comes from config.yaml (or $TENANTDB_CONFIG) and the environment.
package main

import (
	"context"
	"log"
	"os"

	"github.com/gaborage/go-tenantdb/app"
	"github.com/gaborage/go-tenantdb/config"
	"github.com/gaborage/go-tenantdb/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	application, err := app.New(cfg, l)
	if err != nil {
		l.Error().Err(err).Msg("Failed to initialize tenant router")
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		l.Error().Err(err).Msg("Tenant router stopped with errors")
		os.Exit(1)
	}
}
