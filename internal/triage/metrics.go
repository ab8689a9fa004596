package triage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts classifications by outcome and observes end-to-end latency.
type Metrics struct {
	classifications *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	fallbacks       prometheus.Counter
	duration        prometheus.Histogram
}

// NewMetrics registers the triage metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production; a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfa_triage",
			Name:      "classifications_total",
			Help:      "Classification calls by result status.",
		}, []string{"status"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfa_triage",
			Name:      "gate_decisions_total",
			Help:      "Gate decisions by action.",
		}, []string{"action"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mfa_triage",
			Name:      "schema_fallbacks_total",
			Help:      "Classifications that degraded to the safe fallback response.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mfa_triage",
			Name:      "classification_duration_seconds",
			Help:      "End-to-end classification latency including the model call.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *Metrics) observe(status, action string, seconds float64, usedFallback bool) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(status).Inc()
	if action != "" {
		m.decisions.WithLabelValues(action).Inc()
	}
	if usedFallback {
		m.fallbacks.Inc()
	}
	m.duration.Observe(seconds)
}
