// Package metrics holds Canary's process-local counters and gauges
// (spec.md §4.4, §4.6, §7). The runner and scheduler update them; the
// supervisor's health logic does not read them (it polls each scheduler's
// LastFiringCompletedAt), and they are not scraped over HTTP — spec.md §6
// fixes the HTTP surface at exactly GET /api/health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is constructed once per process and shared by pointer (each
// field is itself safe for concurrent use).
type Metrics struct {
	EventsDropped  *prometheus.CounterVec
	TicksSkipped   *prometheus.CounterVec
	FiringDuration *prometheus.HistogramVec
	LastSuccess    *prometheus.GaugeVec
}

// New constructs a fresh metric set registered against reg. Tests use a
// private prometheus.NewRegistry() so runs don't collide (mirrors
// metrics/wd_metrics_test.go's unregister-after-each-test idiom, but via
// isolated registries instead).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Scoring events dropped after exhausting the append retry budget.",
		}, []string{"check"}),

		TicksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticks_skipped_total",
			Help: "Aligned ticks skipped because the prior firing was still running.",
		}, []string{"check"}),

		FiringDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "firing_duration_seconds",
			Help:    "Wall-clock duration of one check firing, from tick to event append.",
			Buckets: prometheus.DefBuckets,
		}, []string{"check"}),

		LastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last firing that ran to completion, including firings whose events were dropped.",
		}, []string{"check"}),
	}
}
