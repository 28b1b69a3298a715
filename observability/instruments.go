package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope of every router instrument and span.
const ScopeName = "github.com/gaborage/go-tenantdb"

// Metric names.
const (
	MetricRouteTotal        = "tenantdb.route.total"
	MetricPoolBuilds        = "tenantdb.pool.builds"
	MetricPoolBuildDuration = "tenantdb.pool.build.duration"
	MetricPoolEvictions     = "tenantdb.pool.evictions"
	MetricPoolProbeFailures = "tenantdb.pool.probe.failures"
	MetricPoolsActive       = "tenantdb.pool.active"
	MetricSchemaSyncs       = "tenantdb.schema.sync.total"
	MetricSchemaDuration    = "tenantdb.schema.sync.duration"
)

// Metrics holds the router instruments. A nil *Metrics records nothing, so
// components can be built without telemetry.
type Metrics struct {
	meter          metric.Meter
	routes         metric.Int64Counter
	poolBuilds     metric.Int64Counter
	buildDuration  metric.Float64Histogram
	poolEvictions  metric.Int64Counter
	probeFailures  metric.Int64Counter
	schemaSyncs    metric.Int64Counter
	schemaDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)
	m := &Metrics{meter: meter}

	var errs []error
	var err error
	m.routes, err = CreateCounter(meter, MetricRouteTotal, "Routing decisions by target and reason")
	errs = append(errs, err)
	m.poolBuilds, err = CreateCounter(meter, MetricPoolBuilds, "Tenant pool construction attempts by result")
	errs = append(errs, err)
	m.buildDuration, err = CreateHistogram(meter, MetricPoolBuildDuration, "Tenant pool construction time", metric.WithUnit("ms"))
	errs = append(errs, err)
	m.poolEvictions, err = CreateCounter(meter, MetricPoolEvictions, "Tenant pools removed from the cache by reason")
	errs = append(errs, err)
	m.probeFailures, err = CreateCounter(meter, MetricPoolProbeFailures, "Liveness probe failures on cached tenant pools")
	errs = append(errs, err)
	m.schemaSyncs, err = CreateCounter(meter, MetricSchemaSyncs, "Tenant schema synchronisations by result")
	errs = append(errs, err)
	m.schemaDuration, err = CreateHistogram(meter, MetricSchemaDuration, "Tenant schema synchronisation time", metric.WithUnit("ms"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRoute counts one routing decision.
func (m *Metrics) RecordRoute(ctx context.Context, target, reason string) {
	if m == nil {
		return
	}
	m.routes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("reason", reason),
	))
}

// RecordPoolBuild counts one pool construction attempt and its duration.
func (m *Metrics) RecordPoolBuild(ctx context.Context, vendor, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("vendor", vendor),
		attribute.String("result", result),
	)
	m.poolBuilds.Add(ctx, 1, attrs)
	m.buildDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordEviction counts one pool removal.
func (m *Metrics) RecordEviction(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.poolEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProbeFailure counts one failed liveness probe.
func (m *Metrics) RecordProbeFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.probeFailures.Add(ctx, 1)
}

// RecordSchemaSync counts one schema synchronisation and its duration.
func (m *Metrics) RecordSchemaSync(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.schemaSyncs.Add(ctx, 1, attrs)
	m.schemaDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RegisterActivePools reports size() as the number of live tenant pools on
// every collection. The returned registration must be unregistered on close.
func (m *Metrics) RegisterActivePools(size func() int) (metric.Registration, error) {
	if m == nil {
		return nil, nil
	}
	gauge, err := m.meter.Int64ObservableGauge(MetricPoolsActive,
		metric.WithDescription("Tenant pools currently cached"))
	if err != nil {
		return nil, err
	}
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(size()))
		return nil
	}, gauge)
}
