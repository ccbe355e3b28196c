// Package metrics exposes a private Prometheus registry for the router,
// repository, ledger, and replay subsystems.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every metric relaycore exports. It wraps a private
// prometheus.Registry rather than the global default so tests can spin up
// independent instances without collector-already-registered panics.
type Registry struct {
	reg *prometheus.Registry

	RouteDecisionsTotal   *prometheus.CounterVec
	RouteLatencyMs        *prometheus.HistogramVec
	BudgetRejectedTotal   *prometheus.CounterVec
	BreakerTripsTotal     *prometheus.CounterVec
	CostUSDTotal          *prometheus.CounterVec
	RepositorySaveLatency prometheus.Histogram
	RepositoryGetLatency  prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	RepositoryErrorsTotal *prometheus.CounterVec
	LedgerAppendsTotal    prometheus.Counter
	ReplayAppliedTotal    prometheus.Counter
	ReplaySkippedTotal    prometheus.Counter
	RateLimitedTotal      prometheus.Counter
}

// New constructs a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RouteDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaycore_route_decisions_total",
			Help: "Total routing decisions, labeled by provider and reason",
		}, []string{"provider", "reason"}),
		RouteLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaycore_route_latency_ms",
			Help:    "Per-attempt provider invocation latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}, []string{"provider"}),
		BudgetRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaycore_budget_rejected_total",
			Help: "Total route calls terminated by a budget cap",
		}, []string{"provider"}),
		BreakerTripsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaycore_breaker_trips_total",
			Help: "Total circuit breaker failure increments, labeled by provider",
		}, []string{"provider"}),
		CostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaycore_cost_usd_total",
			Help: "Cumulative estimated spend recorded by successful routes",
		}, []string{"provider"}),
		RepositorySaveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaycore_repository_save_latency_ms",
			Help:    "State repository Save() latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		RepositoryGetLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaycore_repository_get_latency_ms",
			Help:    "State repository Get() latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_cache_hits_total",
			Help: "Total state repository cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_cache_misses_total",
			Help: "Total state repository cache misses",
		}),
		RepositoryErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaycore_repository_errors_total",
			Help: "Total durable-store errors after retry exhaustion, labeled by op",
		}, []string{"op"}),
		LedgerAppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_ledger_appends_total",
			Help: "Total ledger entries appended",
		}),
		ReplayAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_replay_applied_total",
			Help: "Total ledger entries successfully applied by replay",
		}),
		ReplaySkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_replay_skipped_total",
			Help: "Total sessions skipped by replay_batch due to errors",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_rate_limited_total",
			Help: "Total HTTP requests rejected by the rate limiter",
		}),
	}
	reg.MustRegister(
		m.RouteDecisionsTotal, m.RouteLatencyMs, m.BudgetRejectedTotal,
		m.BreakerTripsTotal, m.CostUSDTotal, m.RepositorySaveLatency,
		m.RepositoryGetLatency, m.CacheHitsTotal, m.CacheMissesTotal,
		m.RepositoryErrorsTotal, m.LedgerAppendsTotal, m.ReplayAppliedTotal,
		m.ReplaySkippedTotal, m.RateLimitedTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
