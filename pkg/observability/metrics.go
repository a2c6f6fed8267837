package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	AIGenerationsTotal    *prometheus.CounterVec
	AIGenerationDuration  prometheus.Histogram
	UsageLimitRejections  prometheus.Counter
	AuditCleanupDeleted   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workbench_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AIGenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_ai_generations_total",
				Help: "Total number of AI report generation attempts",
			},
			[]string{"outcome"},
		),
		AIGenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "workbench_ai_generation_duration_seconds",
				Help:    "AI provider call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		UsageLimitRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workbench_usage_limit_rejections_total",
				Help: "Total number of requests rejected by the monthly AI quota",
			},
		),
		AuditCleanupDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workbench_audit_cleanup_deleted_total",
				Help: "Total number of audit log rows removed by retention cleanup",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AIGenerationsTotal,
		m.AIGenerationDuration,
		m.UsageLimitRejections,
		m.AuditCleanupDeleted,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
