package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// AuthOutcomes counts token verifications by outcome code
	// ("ok" or the AuthError code).
	AuthOutcomes *prometheus.CounterVec

	// FilterDecisions counts filter compilations by resource and outcome
	// ("scoped", "bypass", "nothing").
	FilterDecisions *prometheus.CounterVec

	// DuplicateRejections counts upload batches rejected for duplicates.
	DuplicateRejections prometheus.Counter

	// TasksDispatched counts broker publishes by task name and status
	// ("ok", "error").
	TasksDispatched *prometheus.CounterVec

	// RequestDuration observes request latency by resource and method.
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the service collectors on a private
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		AuthOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_auth_outcomes_total",
			Help: "Token verification outcomes by code.",
		}, []string{"code"}),
		FilterDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_filter_decisions_total",
			Help: "Access filter compilations by resource and outcome.",
		}, []string{"resource", "outcome"}),
		DuplicateRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_upload_duplicate_rejections_total",
			Help: "Upload batches rejected because of duplicate files.",
		}),
		TasksDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_tasks_dispatched_total",
			Help: "Broker task publishes by task name and status.",
		}, []string{"task", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_request_duration_seconds",
			Help:    "HTTP request latency by resource and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource", "method"}),
	}
}

// Handler exposes the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
