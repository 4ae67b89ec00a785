package sink

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/dbping/internal/ping/metrics"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Prometheus exports records as Prometheus metrics.
type Prometheus struct {
	registry *prometheus.Registry

	executionSeconds *prometheus.HistogramVec
	rowsTotal        *prometheus.CounterVec
	connectSeconds   *prometheus.HistogramVec
	tasksStarted     *prometheus.CounterVec
}

// NewPrometheus creates the sink with its own registry, which also carries
// the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := &Prometheus{
		registry: registry,
		executionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbping_execution_seconds",
			Help:    "Total time of command executions.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"task", "label", "outcome"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbping_rows_total",
			Help: "Rows read by command executions.",
		}, []string{"task", "label"}),
		connectSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbping_connection_seconds",
			Help:    "Time spent acquiring a database connection.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"task"}),
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbping_tasks_started_total",
			Help: "Tasks started, by datasource.",
		}, []string{"task", "datasource"}),
	}

	registry.MustRegister(p.executionSeconds)
	registry.MustRegister(p.rowsTotal)
	registry.MustRegister(p.connectSeconds)
	registry.MustRegister(p.tasksStarted)
	return p
}

// Registry returns the Prometheus registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteHeader implements metrics.Sink.
func (p *Prometheus) WriteHeader(h metrics.Header) {
	p.tasksStarted.WithLabelValues(h.Task, h.Datasource).Inc()
}

// Write implements metrics.Sink.
func (p *Prometheus) Write(r metrics.Record) {
	outcome := OutcomeSuccess
	if r.Failed() {
		outcome = OutcomeError
	}
	if r.TotalTime >= 0 {
		p.executionSeconds.WithLabelValues(r.Task, r.Label, outcome).Observe(r.TotalTime.Seconds())
	}
	if r.ConnectionTime >= 0 {
		p.connectSeconds.WithLabelValues(r.Task).Observe(r.ConnectionTime.Seconds())
	}
	if r.Rows > 0 {
		p.rowsTotal.WithLabelValues(r.Task, r.Label).Add(float64(r.Rows))
	}
}
