// Package metrics records apikeyper operation counters with Prometheus.
//
// apikeyper is a CLI, not a server, so metrics are never scraped over HTTP.
// Instead the registry can be written to a file for the node-exporter
// textfile collector after each command (see WriteTextfile).
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultAbsent  = "absent"
)

// Recorder records operation metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry
	observed atomic.Bool

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	fallbackTotal     *prometheus.CounterVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyper_operations_total",
				Help: "Total number of key operations by outcome",
			},
			[]string{"operation", "result"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apikeyper_operation_duration_seconds",
				Help:    "Duration of key operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		fallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyper_backend_fallback_total",
				Help: "Number of times the configured backend was replaced by a fallback",
			},
			[]string{"from", "to"},
		),
	}
}

// Observe records one operation. A nil Recorder is a no-op so components can
// be built without metrics.
func (r *Recorder) Observe(operation, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.operationsTotal.WithLabelValues(operation, result).Inc()
	r.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	r.observed.Store(true)
}

// RecordFallback records a backend substitution.
func (r *Recorder) RecordFallback(from, to string) {
	if r == nil {
		return
	}
	r.fallbackTotal.WithLabelValues(from, to).Inc()
	r.observed.Store(true)
}

// Observed reports whether anything has been recorded.
func (r *Recorder) Observed() bool {
	return r != nil && r.observed.Load()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current metric values in the Prometheus text
// format. The file is replaced atomically. Nothing is written until an
// operation has been recorded, so a command that did no work leaves the
// previous file in place.
func (r *Recorder) WriteTextfile(path string) error {
	if !r.Observed() || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

// OperationsTotal returns the operations counter for testing.
func (r *Recorder) OperationsTotal() *prometheus.CounterVec {
	return r.operationsTotal
}

// FallbackTotal returns the fallback counter for testing.
func (r *Recorder) FallbackTotal() *prometheus.CounterVec {
	return r.fallbackTotal
}
