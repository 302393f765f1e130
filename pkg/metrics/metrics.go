// Package metrics holds the Prometheus collectors of the console service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "standards_console"

// Metrics records request and bulk dispatch outcomes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec   // by method and code
	requestDuration *prometheus.HistogramVec // by method
	bulkRows        *prometheus.CounterVec   // by action and outcome (succeeded/failed)
	changeEvents    *prometheus.CounterVec   // by kind
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total number of console requests by method and result code",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Console request handling duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method"}),
		bulkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bulk",
			Name:      "rows_total",
			Help:      "Total number of bulk action rows by outcome",
		}, []string{"action", "outcome"}),
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "changes_total",
			Help:      "Total number of configuration change events published",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.bulkRows,
		m.changeEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one handled request. code is "OK" on success.
func (m *Metrics) ObserveRequest(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveBulk records the row outcomes of one bulk action.
func (m *Metrics) ObserveBulk(action string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.bulkRows.WithLabelValues(action, "succeeded").Add(float64(succeeded))
	m.bulkRows.WithLabelValues(action, "failed").Add(float64(failed))
}

// ObserveChange records a published change event.
func (m *Metrics) ObserveChange(kind string) {
	if m == nil {
		return
	}
	m.changeEvents.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
