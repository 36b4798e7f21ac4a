// Package metrics exposes Prometheus instruments for the aggregation engine.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "priceagg"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePanic   = "panic"
	OutcomeTimeout = "timeout"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	tierOutcomes    *prometheus.CounterVec
	adapterDuration *prometheus.HistogramVec
	adapterFailures *prometheus.CounterVec
	cacheFlushes    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tierOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_outcomes_total",
			Help:      "Fallback ladder tier results by source.",
		}, []string{"source", "tier", "outcome"}),
		adapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Wall time spent in one adapter call during fan-out.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"source"}),
		adapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_failures_total",
			Help:      "Adapter calls that panicked or hit their deadline.",
		}, []string{"source", "reason"}),
		cacheFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_flushes_total",
			Help:      "Durable cache flushes by source.",
		}, []string{"source", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.tierOutcomes, m.adapterDuration, m.adapterFailures, m.cacheFlushes)
	}
	return m
}

// ObserveTier records the result of one ladder tier.
func (m *Metrics) ObserveTier(source, tier string, ok bool) {
	if m == nil {
		return
	}
	m.tierOutcomes.WithLabelValues(source, tier, outcome(ok)).Inc()
}

// ObserveAdapter records how long one adapter call took.
func (m *Metrics) ObserveAdapter(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.adapterDuration.WithLabelValues(source).Observe(d.Seconds())
}

// AdapterFailed counts a panicking or timed-out adapter call.
func (m *Metrics) AdapterFailed(source, reason string) {
	if m == nil {
		return
	}
	m.adapterFailures.WithLabelValues(source, reason).Inc()
}

// ObserveFlush records a durable cache flush.
func (m *Metrics) ObserveFlush(source string, ok bool) {
	if m == nil {
		return
	}
	m.cacheFlushes.WithLabelValues(source, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
