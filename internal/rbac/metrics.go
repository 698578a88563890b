package rbac

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	GuardDecisionsTotal *prometheus.CounterVec
	ViewCacheTotal      *prometheus.CounterVec
	ResolveDuration     prometheus.Histogram
	MutationsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		GuardDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolegate_guard_decisions_total",
				Help: "Access guard decisions by terminal state",
			},
			[]string{"state"},
		),
		ViewCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolegate_view_cache_requests_total",
				Help: "Effective view cache lookups by result",
			},
			[]string{"result"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rolegate_resolve_duration_seconds",
				Help:    "Time spent loading state and resolving an effective view",
				Buckets: prometheus.DefBuckets,
			},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolegate_mutations_total",
				Help: "Successful role and assignment mutations by kind",
			},
			[]string{"kind"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.GuardDecisionsTotal,
			m.ViewCacheTotal,
			m.ResolveDuration,
			m.MutationsTotal,
		)
	}
	return m
}

func (m *Metrics) recordDecision(state State) {
	if m == nil {
		return
	}
	m.GuardDecisionsTotal.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) recordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ViewCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// Notify counts mutations, so Metrics can sit in a Notifiers fan-out.
func (m *Metrics) Notify(_ context.Context, event ChangeEvent) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(string(event.Kind)).Inc()
}
