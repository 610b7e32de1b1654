/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counts schedule-producing operations and their failures, and times
  them. Metrics implements loan.Observer so the service reports without
  knowing about Prometheus.

METRICS:
  loan_engine_schedules_generated_total{operation}        Successful operations
  loan_engine_errors_total{operation,class}               Failures by error class
  loan_engine_operation_duration_seconds{operation}       Latency histogram
  loan_engine_recalculation_loans_total{result}           Scheduler outcomes

  class is generic.Class(err): client, invariant, state, not_found, internal.

SEE ALSO:
  - loan/service.go: Observer
  - server.go: /metrics route
*/
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/loan-engine/generic"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	generated     *prometheus.CounterVec
	errors        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	recalculation *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_engine_schedules_generated_total",
			Help: "Operations that produced a schedule or request without error.",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_engine_errors_total",
			Help: "Failed operations by error class.",
		}, []string{"operation", "class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_engine_operation_duration_seconds",
			Help:    "Operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		recalculation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_engine_recalculation_loans_total",
			Help: "Loans visited by the recalculation scheduler by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		m.generated, m.errors, m.duration, m.recalculation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe implements loan.Observer.
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation, generic.Class(err)).Inc()
		return
	}
	m.generated.WithLabelValues(operation).Inc()
}

// RecordRecalculation adds one scheduler run's outcome.
func (m *Metrics) RecordRecalculation(res RecalculationResult) {
	m.recalculation.WithLabelValues("changed").Add(float64(res.Changed))
	m.recalculation.WithLabelValues("unchanged").Add(float64(res.Checked - res.Changed - res.Failed))
	m.recalculation.WithLabelValues("failed").Add(float64(res.Failed))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
