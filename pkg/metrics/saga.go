package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics records listing creation outcomes and step latency.
type SagaMetrics struct {
	outcomes      *prometheus.CounterVec
	steps         *prometheus.HistogramVec
	compensations *prometheus.CounterVec
}

// NewSagaMetrics registers the creation saga metrics on the provided registerer.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ad_creation_total",
		Help: "Ad creation attempts by terminal outcome.",
	}, []string{"outcome", "reason"})
	steps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ad_creation_step_duration_seconds",
		Help:    "Duration of each ad creation step in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"step"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ad_compensation_total",
		Help: "Compensation runs by result.",
	}, []string{"result"})
	reg.MustRegister(outcomes, steps, compensations)
	return &SagaMetrics{
		outcomes:      outcomes,
		steps:         steps,
		compensations: compensations,
	}
}

// ObserveStep records the duration of one saga step.
func (s *SagaMetrics) ObserveStep(step string, duration time.Duration) {
	if s == nil || s.steps == nil {
		return
	}
	s.steps.WithLabelValues(normalizeLabel(step)).Observe(duration.Seconds())
}

// IncOutcome counts a terminal outcome; reason is empty for successes.
func (s *SagaMetrics) IncOutcome(outcome, reason string) {
	if s == nil || s.outcomes == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	s.outcomes.WithLabelValues(normalizeLabel(outcome), reason).Inc()
}

// IncCompensation counts a compensation run.
func (s *SagaMetrics) IncCompensation(result string) {
	if s == nil || s.compensations == nil {
		return
	}
	s.compensations.WithLabelValues(normalizeLabel(result)).Inc()
}
