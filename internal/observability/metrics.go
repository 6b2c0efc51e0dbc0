package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopdesk_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"method", "route"},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_commands_total",
			Help: "Total number of classified commands by intent.",
		},
		[]string{"intent"},
	)
	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_searches_total",
			Help: "Total number of search pipeline runs by terminal stage (ok on success).",
		},
		[]string{"stage"},
	)
	searchLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopdesk_search_latency_ms",
			Help:    "End-to-end search pipeline latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
	)
	safetyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_safety_rejections_total",
			Help: "Total number of generated queries rejected, by violated rule.",
		},
		[]string{"rule"},
	)
	authRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_auth_rejections_total",
			Help: "Total number of requests refused by authentication or authorization, by reason.",
		},
		[]string{"reason"},
	)
	auditFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopdesk_audit_write_failures_total",
			Help: "Total number of audit records that could not be written.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		commandsTotal,
		searchesTotal,
		searchLatencyMs,
		safetyRejectionsTotal,
		authRejectionsTotal,
		auditFailuresTotal,
	)
}

func ObserveAuthRejection(reason string) {
	authRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveCommand(intent string) {
	commandsTotal.WithLabelValues(intent).Inc()
}

func ObserveSearch(stage string, elapsed time.Duration) {
	if stage == "" {
		stage = "ok"
	}
	searchesTotal.WithLabelValues(stage).Inc()
	searchLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveSafetyRejection(rules []string) {
	for _, rule := range rules {
		safetyRejectionsTotal.WithLabelValues(rule).Inc()
	}
}

func IncrementAuditFailure() {
	auditFailuresTotal.Inc()
}
