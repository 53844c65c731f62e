package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup outcomes used as the "result" label.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
	ResultInvalid = "invalid"
)

// Metrics holds the Prometheus collectors for the feed caches and clients.
type Metrics struct {
	CacheLookups    *prometheus.CounterVec   // labels: feed, result={hit,miss,expired,invalid}
	CacheRefreshes  *prometheus.CounterVec   // labels: feed, outcome={success,error}
	CacheWriteError *prometheus.CounterVec   // labels: feed
	RefreshDuration *prometheus.HistogramVec // labels: feed
	SnapshotAge     *prometheus.GaugeVec     // labels: feed

	UpstreamRequests *prometheus.CounterVec // labels: source, outcome={success,error}
	SkippedEvents    *prometheus.CounterVec // labels: calendar
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.CacheRefreshes,
		m.CacheWriteError,
		m.RefreshDuration,
		m.SnapshotAge,
		m.UpstreamRequests,
		m.SkippedEvents,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics that are not registered with the
// default registry. Components built without explicit Metrics use it, as do
// tests that construct many instances.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by feed and result.",
		}, []string{"feed", "result"}),
		CacheRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "cache_refreshes_total",
			Help:      "Snapshot refreshes by feed and outcome.",
		}, []string{"feed", "outcome"}),
		CacheWriteError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "cache_write_errors_total",
			Help:      "Failed snapshot persists by feed.",
		}, []string{"feed"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homepanel",
			Name:      "cache_refresh_duration_seconds",
			Help:      "Duration of a feed refresh (fetch + persist).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"feed"}),
		SnapshotAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "homepanel",
			Name:      "snapshot_age_seconds",
			Help:      "Age of the snapshot served on the last lookup.",
		}, []string{"feed"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "upstream_requests_total",
			Help:      "Remote source requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SkippedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homepanel",
			Name:      "skipped_events_total",
			Help:      "Malformed raw calendar events skipped during aggregation.",
		}, []string{"calendar"}),
	}
}

// Outcome maps an error onto the "outcome" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
