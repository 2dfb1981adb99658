package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngagementMetrics counts impression and click handling results.
type EngagementMetrics struct {
	events *prometheus.CounterVec
}

// NewEngagementMetrics registers the engagement counters on the provided registerer.
func NewEngagementMetrics(reg prometheus.Registerer) *EngagementMetrics {
	if reg == nil {
		return &EngagementMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ad_engagement_events_total",
		Help: "Impression and click events by type and result.",
	}, []string{"type", "result"})
	reg.MustRegister(events)
	return &EngagementMetrics{events: events}
}

// IncEvent counts one engagement event with its result (recorded, duplicate, bot).
func (e *EngagementMetrics) IncEvent(eventType, result string) {
	if e == nil || e.events == nil {
		return
	}
	e.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
