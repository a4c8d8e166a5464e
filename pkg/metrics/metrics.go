// Package metrics provides Prometheus metrics for the sealbox service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sealbox service.
type Metrics struct {
	registry *prometheus.Registry

	// Secret lifecycle metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SecretsExpired    prometheus.Counter

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreOpDuration *prometheus.HistogramVec
	StoreErrors     *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sealbox",
				Subsystem: "secrets",
				Name:      "operations_total",
				Help:      "Total number of secret operations by action and outcome.",
			},
			[]string{"action", "outcome"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sealbox",
				Subsystem: "secrets",
				Name:      "operation_duration_seconds",
				Help:      "Duration of secret operations in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"action"},
		),

		SecretsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sealbox",
				Subsystem: "secrets",
				Name:      "expired_total",
				Help:      "Total number of secrets deleted by the lazy expiration sweep.",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sealbox",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method, path and status.",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sealbox",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		StoreOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sealbox",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),

		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sealbox",
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total number of store operation failures.",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.SecretsExpired,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOpDuration,
		m.StoreErrors,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics:   true,
			MaxRequestsInFlight: 10,
		},
	)
}
