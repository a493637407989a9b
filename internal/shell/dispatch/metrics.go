package dispatch

import (
	"errors"
	"net/http"

	"github.com/artpar/servicemeta/internal/core/meta"
	"github.com/artpar/servicemeta/internal/core/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Validation results used as metric labels.
const (
	ResultOK            = "ok"
	ResultMissingField  = "missing_field"
	ResultInvalidFormat = "invalid_format"
	ResultError         = "error"
)

// Metrics holds the dispatcher collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	runs        *prometheus.CounterVec
	queueDepth  prometheus.Gauge
}

// NewMetrics creates the collectors. Process and Go runtime collectors are
// registered alongside.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "servicemeta"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total parameter validations by service and result",
		},
		[]string{"service", "result"},
	)

	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total task runs by service and final state",
		},
		[]string{"service", "state"},
	)

	m.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		},
	)

	m.registry.MustRegister(
		m.validations,
		m.runs,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordValidation counts one validation outcome.
func (m *Metrics) RecordValidation(service string, err error) {
	m.validations.WithLabelValues(service, ResultFor(err)).Inc()
}

// RecordRun counts one finished run.
func (m *Metrics) RecordRun(service string, state task.State) {
	m.runs.WithLabelValues(service, state.String()).Inc()
}

// ResultFor maps a validation error to its metric label.
func ResultFor(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, meta.ErrMissingField):
		return ResultMissingField
	case errors.Is(err, meta.ErrInvalidFormat):
		return ResultInvalidFormat
	default:
		return ResultError
	}
}
