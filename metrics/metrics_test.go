package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/metrics"
)

func TestWindowEvictsBucketsOlderThanSize(t *testing.T) {
	w := metrics.NewWindow(2*time.Second, time.Second, 16)
	base := time.Unix(1000, 0)

	w.Record(base, false, 10, 0.01, 5*time.Millisecond)
	w.Record(base.Add(5*time.Second), false, 10, 0.01, 5*time.Millisecond)

	stats := w.Stats(base.Add(5 * time.Second))
	assert.InDelta(t, 1.0/2.0, stats.RequestsPerSec, 0.01, "only the second bucket should remain after eviction")
}

func TestWindowComputesPercentiles(t *testing.T) {
	w := metrics.NewWindow(time.Minute, time.Second, 64)
	now := time.Unix(2000, 0)
	for i := 1; i <= 10; i++ {
		w.Record(now, false, 0, 0, time.Duration(i)*time.Millisecond)
	}
	stats := w.Stats(now)
	assert.Greater(t, stats.P95Duration, stats.P50Duration)
	assert.Greater(t, stats.P50Duration, time.Duration(0))
}

func TestAggregatorHandleEventRecordsFailuresAndTokens(t *testing.T) {
	agg := metrics.NewAggregator([]time.Duration{time.Minute}, time.Second, 32)

	require.NoError(t, agg.HandleEvent(context.Background(), bus.NewEvent(bus.EventToolUsed, "s1", map[string]any{
		"tokens_used": 100,
		"cost_usd":    0.002,
		"duration_ms": 20.0,
	})))
	require.NoError(t, agg.HandleEvent(context.Background(), bus.NewEvent(bus.EventToolError, "s1", map[string]any{
		"tokens_used": 50,
	})))

	stats, ok := agg.Stats(time.Minute, time.Now())
	require.True(t, ok)
	assert.Greater(t, stats.TokensPerSec, 0.0)
	assert.Greater(t, stats.FailuresPerMin, 0.0)
}

func TestRegistererCollectsGaugesForEachWindow(t *testing.T) {
	agg := metrics.NewAggregator([]time.Duration{time.Minute}, time.Second, 32)
	require.NoError(t, agg.HandleEvent(context.Background(), bus.NewEvent(bus.EventToolUsed, "s1", map[string]any{
		"tokens_used": 10,
	})))

	reg := metrics.NewRegisterer(agg)
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(reg))

	families, err := registry.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "subagentctl_tokens_per_second" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			var m *dto.Metric = mf.GetMetric()[0]
			assert.Greater(t, m.GetGauge().GetValue(), 0.0)
		}
	}
	assert.True(t, found, "expected subagentctl_tokens_per_second to be registered")
}
