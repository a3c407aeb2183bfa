package r2r

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// clientMetrics holds prometheus metrics registered for the client.
type clientMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	apiErrors  *prometheus.CounterVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "r2rprobe",
			Subsystem: "client",
			Name:      "operations_total",
			Help:      "Total R2R client operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "r2rprobe",
			Subsystem: "client",
			Name:      "operation_duration_seconds",
			Help:      "R2R client operation duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "r2rprobe",
			Subsystem: "client",
			Name:      "api_errors_total",
			Help:      "Non-2xx R2R responses by operation and HTTP status code.",
		}, []string{"operation", "status_code"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.apiErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("r2r: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("r2r: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for client operations.
type observer struct {
	logger  *zap.Logger
	metrics *clientMetrics
}

func newObserver(logger *zap.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *clientMetrics
	if reg != nil {
		var err error
		m, err = newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	var apiErr *APIError
	hasAPIErr := errors.As(err, &apiErr)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
		if hasAPIErr {
			o.metrics.apiErrors.WithLabelValues(op, strconv.Itoa(apiErr.StatusCode)).Inc()
		}
	}

	if o.logger != nil {
		if err != nil {
			fields := []zap.Field{
				zap.String("op", op),
				zap.Duration("duration", dur),
				zap.Error(err),
			}
			if hasAPIErr {
				fields = append(fields, zap.Int("status_code", apiErr.StatusCode))
			}
			o.logger.Warn("r2r operation failed", fields...)
		} else {
			o.logger.Debug("r2r operation completed",
				zap.String("op", op),
				zap.Duration("duration", dur),
			)
		}
	}
}
