package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics records hybrid search latency and fallbacks.
type SearchMetrics struct {
	duration *prometheus.HistogramVec
	results  *prometheus.HistogramVec
}

// NewSearchMetrics registers the search metrics on the provided registerer.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	if reg == nil {
		return &SearchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ad_search_duration_seconds",
		Help:    "Duration of ad searches by mode.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	results := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ad_search_results",
		Help:    "Number of ads returned per search page.",
		Buckets: []float64{0, 1, 5, 10, 20, 50},
	}, []string{"mode"})
	reg.MustRegister(duration, results)
	return &SearchMetrics{duration: duration, results: results}
}

// ObserveSearch records one search.
func (s *SearchMetrics) ObserveSearch(mode string, duration time.Duration, results int) {
	if s == nil || s.duration == nil {
		return
	}
	label := normalizeLabel(mode)
	s.duration.WithLabelValues(label).Observe(duration.Seconds())
	s.results.WithLabelValues(label).Observe(float64(results))
}
