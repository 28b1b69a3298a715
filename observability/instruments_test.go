package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	return m, reader
}

func TestRecordRouteByTargetAndReason(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRoute(ctx, "tenant", "routed")
	m.RecordRoute(ctx, "tenant", "routed")
	m.RecordRoute(ctx, "fallback", "unknown_tenant")

	got := collect(t, reader)[MetricRouteTotal]
	sum, ok := got.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2)

	byReason := map[string]int64{}
	for _, dp := range sum.DataPoints {
		reason, _ := dp.Attributes.Value("reason")
		byReason[reason.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), byReason["routed"])
	assert.Equal(t, int64(1), byReason["unknown_tenant"])
}

func TestRecordPoolAndSchemaInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPoolBuild(ctx, "postgresql", "success", 15*time.Millisecond)
	m.RecordEviction(ctx, "probe_failed")
	m.RecordProbeFailure(ctx)
	m.RecordSchemaSync(ctx, "failure", time.Second)

	got := collect(t, reader)
	for _, name := range []string{
		MetricPoolBuilds, MetricPoolBuildDuration, MetricPoolEvictions,
		MetricPoolProbeFailures, MetricSchemaSyncs, MetricSchemaDuration,
	} {
		assert.Contains(t, got, name)
	}

	hist, ok := got[MetricSchemaDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1000.0, hist.DataPoints[0].Sum, 0.001)
}

func TestRegisterActivePools(t *testing.T) {
	m, reader := newTestMetrics(t)
	size := 3
	reg, err := m.RegisterActivePools(func() int { return size })
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	gauge, ok := collect(t, reader)[MetricPoolsActive].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRoute(ctx, "fallback", "no_tenant")
		m.RecordPoolBuild(ctx, "mysql", "failure", time.Millisecond)
		m.RecordEviction(ctx, "idle")
		m.RecordProbeFailure(ctx)
		m.RecordSchemaSync(ctx, "success", time.Millisecond)
		reg, err := m.RegisterActivePools(func() int { return 0 })
		assert.NoError(t, err)
		assert.Nil(t, reg)
	})
}
