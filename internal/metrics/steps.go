// Package metrics exposes probe run metrics for Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "r2rprobe"

// StepMetrics counts and times probe steps.
type StepMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewStepMetrics registers step metrics on reg.
func NewStepMetrics(reg prometheus.Registerer) (*StepMetrics, error) {
	m := &StepMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_total",
				Help:      "Total probe steps by name and status",
			},
			[]string{"step", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Probe step duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"step"},
		),
	}
	for _, c := range []prometheus.Collector{m.total, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register step metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveStep records one finished step.
func (m *StepMetrics) ObserveStep(step string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.total.WithLabelValues(step, status).Inc()
	m.duration.WithLabelValues(step).Observe(d.Seconds())
}
