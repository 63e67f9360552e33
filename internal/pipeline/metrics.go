package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the coordinator's Prometheus collectors.
type Metrics struct {
	steps       *prometheus.CounterVec
	settlements *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	pending     prometheus.Counter
}

// NewMetrics registers the coordinator collectors with reg. A nil reg
// leaves them unregistered, which tests and the run command rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scry_pipeline_step_results_total",
				Help: "Pipeline step results by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scry_session_settlements_total",
				Help: "Session status changes made by the coordinator",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scry_pipeline_run_duration_seconds",
				Help:    "Time spent in one pipeline run",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		pending: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scry_pipeline_pending_skips_total",
				Help: "Runs that found their question set owned by another worker",
			},
		),
	}
}
