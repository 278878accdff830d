package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the aggregation
// service.
type Metrics struct {
	WeatherRequests *prometheus.CounterVec // labels: outcome={success,degraded,error,invalid}

	// Upstream call metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
	UpstreamDuration *prometheus.HistogramVec // labels: provider

	// Cache metrics, shared by the response cache and the geocode cache.
	CacheLookups *prometheus.CounterVec // labels: cache={response,geocode}, result={hit,miss}

	// Alert aggregation metrics.
	AlertPathResults *prometheus.CounterVec // labels: path={point,zone}
	AlertsDegraded   prometheus.Counter

	// Requests whose result was discarded because a newer request for the
	// same session superseded them.
	StaleResultsDiscarded prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.WeatherRequests,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CacheLookups,
		m.AlertPathResults,
		m.AlertsDegraded,
		m.StaleResultsDiscarded,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "weather_requests_total",
			Help:      "Aggregated weather requests by outcome.",
		}, []string{"outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skycast",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		AlertPathResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "alert_path_results_total",
			Help:      "Alert records recovered by lookup path.",
		}, []string{"path"}),
		AlertsDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "alerts_degraded_total",
			Help:      "Responses whose alert list may be incomplete.",
		}),
		StaleResultsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skycast",
			Name:      "stale_results_discarded_total",
			Help:      "In-flight results discarded because a newer request superseded them.",
		}),
	}
}
