// Package metrics records build outcomes in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for builds_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Recorder holds the build metrics registered on one registry.
type Recorder struct {
	builds   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sessions prometheus.Gauge
}

// NewRecorder registers the metrics on reg. A nil reg uses the default
// registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "builds_total",
			Help:      "Builds reported by builders, by outcome.",
		}, []string{"builder", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge",
			Name:      "build_duration_seconds",
			Help:      "Duration of each reported build.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"builder"}),

		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge",
			Name:      "active_sessions",
			Help:      "Build and dev-server sessions currently subscribed.",
		}),
	}
}

// Build records one reported build.
func (r *Recorder) Build(builder, outcome string, took time.Duration) {
	r.builds.WithLabelValues(builder, outcome).Inc()
	r.duration.WithLabelValues(builder).Observe(took.Seconds())
}

// SessionStarted marks a subscription as active. The returned func marks it
// finished.
func (r *Recorder) SessionStarted() func() {
	r.sessions.Inc()
	return r.sessions.Dec
}
