// Package observability exposes Prometheus instrumentation for the engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	SimulationsTotal   *prometheus.CounterVec
	SimulationDuration prometheus.Histogram
	SimulationDraws    prometheus.Histogram

	SearchesTotal    prometheus.Counter
	SearchCandidates prometheus.Histogram
	ActiveSearches   prometheus.Gauge

	AllocationsTotal      prometheus.Counter
	ReconciliationsTotal  prometheus.Counter
	ReconcileMatchedRatio prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SimulationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "simulations_total",
		Help:      "Completed Monte Carlo simulations by resample mode.",
	}, []string{"mode"})

	m.SimulationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Name:      "simulation_duration_seconds",
		Help:      "Wall-clock duration of simulation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	m.SimulationDraws = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Name:      "simulation_draws",
		Help:      "Draw counts of simulation runs.",
		Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
	})

	m.SearchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "parameter_searches_total",
		Help:      "Completed parameter searches.",
	})

	m.SearchCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Name:      "search_candidates_evaluated",
		Help:      "Candidates evaluated per search.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.ActiveSearches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "risk_engine",
		Name:      "active_searches",
		Help:      "Parameter searches currently running.",
	})

	m.AllocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "allocations_total",
		Help:      "Completed allocation optimizations.",
	})

	m.ReconciliationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "reconciliations_total",
		Help:      "Completed live/backtest reconciliations.",
	})

	m.ReconcileMatchedRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Name:      "reconcile_matched_ratio",
		Help:      "Fraction of live trades matched per reconciliation.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "method", "code"})

	m.registry.MustRegister(
		m.SimulationsTotal,
		m.SimulationDuration,
		m.SimulationDraws,
		m.SearchesTotal,
		m.SearchCandidates,
		m.ActiveSearches,
		m.AllocationsTotal,
		m.ReconciliationsTotal,
		m.ReconcileMatchedRatio,
		m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
