package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/logger"
)

// HealthStatus captures the outcome of a readiness probe.
type HealthStatus struct {
	Name     string
	Err      error
	Critical bool
}

// HealthProbe exposes a uniform interface for readiness probes.
type HealthProbe interface {
	Run(ctx context.Context) HealthStatus
}

type healthProbeFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

func (h healthProbeFunc) Run(ctx context.Context) HealthStatus {
	return HealthStatus{Name: h.name, Err: h.fn(ctx), Critical: h.critical}
}

// controlHealthProbe checks the control-plane database. The fallback target
// lives there, so a failure makes the router not ready.
func controlHealthProbe(db database.Interface) HealthProbe {
	return healthProbeFunc{
		name:     "control",
		critical: true,
		fn:       db.Health,
	}
}

// redisHealthProbe pings the shared descriptor cache. Lookups fall through to
// the next directory layer when Redis is down, so the probe is advisory.
func redisHealthProbe(client redis.UniversalClient) HealthProbe {
	return healthProbeFunc{
		name: "redis",
		fn: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// readiness folds the probes into one check. Only critical failures fail it.
func readiness(probes []HealthProbe, log logger.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, probe := range probes {
			result := probe.Run(ctx)
			if result.Err == nil {
				continue
			}
			if result.Critical {
				return fmt.Errorf("%s: %w", result.Name, result.Err)
			}
			log.Warn().Err(result.Err).Str("component", result.Name).Msg("Non-critical readiness probe failed")
		}
		return nil
	}
}
