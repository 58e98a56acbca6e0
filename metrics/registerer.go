package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registerer exposes an Aggregator's windows as a prometheus.Collector
// (SPEC_FULL.md §4.N), so the same rolling-window statistics the bespoke
// query surface reads can also be scraped over `/metrics`, matching the
// teacher's convention of registering hand-described gauges/counters
// rather than wrapping existing stdlib counters (see
// marcus-qen-legator/internal/metrics).
type Registerer struct {
	agg *Aggregator

	requestsPerSec *prometheus.GaugeVec
	failuresPerMin *prometheus.GaugeVec
	tokensPerSec   *prometheus.GaugeVec
	costPerMin     *prometheus.GaugeVec
	avgDuration    *prometheus.GaugeVec
	p50Duration    *prometheus.GaugeVec
	p95Duration    *prometheus.GaugeVec
}

// NewRegisterer builds a Registerer over agg. Call prometheus.Register (or
// MustRegister) on the returned value to expose it.
func NewRegisterer(agg *Aggregator) *Registerer {
	labels := []string{"window"}
	mk := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subagentctl_" + name,
			Help: help,
		}, labels)
	}
	return &Registerer{
		agg:            agg,
		requestsPerSec: mk("requests_per_second", "Events recorded per second within the rolling window."),
		failuresPerMin: mk("failures_per_minute", "Failure events per minute within the rolling window."),
		tokensPerSec:   mk("tokens_per_second", "Tokens consumed per second within the rolling window."),
		costPerMin:     mk("cost_usd_per_minute", "Cost in USD per minute within the rolling window."),
		avgDuration:    mk("duration_avg_seconds", "Average observed duration within the rolling window."),
		p50Duration:    mk("duration_p50_seconds", "Median observed duration within the rolling window."),
		p95Duration:    mk("duration_p95_seconds", "95th percentile observed duration within the rolling window."),
	}
}

// Describe implements prometheus.Collector.
func (r *Registerer) Describe(ch chan<- *prometheus.Desc) {
	r.requestsPerSec.Describe(ch)
	r.failuresPerMin.Describe(ch)
	r.tokensPerSec.Describe(ch)
	r.costPerMin.Describe(ch)
	r.avgDuration.Describe(ch)
	r.p50Duration.Describe(ch)
	r.p95Duration.Describe(ch)
}

// Collect implements prometheus.Collector, recomputing every window's
// Stats at scrape time and emitting them as gauges labeled by window size.
func (r *Registerer) Collect(ch chan<- prometheus.Metric) {
	now := time.Now()
	for _, size := range r.agg.Sizes() {
		stats, ok := r.agg.Stats(size, now)
		if !ok {
			continue
		}
		label := size.String()
		r.requestsPerSec.WithLabelValues(label).Set(stats.RequestsPerSec)
		r.failuresPerMin.WithLabelValues(label).Set(stats.FailuresPerMin)
		r.tokensPerSec.WithLabelValues(label).Set(stats.TokensPerSec)
		r.costPerMin.WithLabelValues(label).Set(stats.CostPerMin)
		r.avgDuration.WithLabelValues(label).Set(stats.AvgDuration.Seconds())
		r.p50Duration.WithLabelValues(label).Set(stats.P50Duration.Seconds())
		r.p95Duration.WithLabelValues(label).Set(stats.P95Duration.Seconds())
	}
	r.requestsPerSec.Collect(ch)
	r.failuresPerMin.Collect(ch)
	r.tokensPerSec.Collect(ch)
	r.costPerMin.Collect(ch)
	r.avgDuration.Collect(ch)
	r.p50Duration.Collect(ch)
	r.p95Duration.Collect(ch)
}
