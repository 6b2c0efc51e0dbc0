package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_query_executions_total",
			Help: "Total number of approved query executions by executor and status.",
		},
		[]string{"executor", "status"},
	)
	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopdesk_query_execution_duration_seconds",
			Help:    "Duration of approved query executions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"executor"},
	)
	rowsReturnedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_query_rows_returned_total",
			Help: "Total number of rows returned to callers by executor.",
		},
		[]string{"executor"},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal, executionDurationSeconds, rowsReturnedTotal)
}

// Observe records one execution for the named executor.
func Observe(executor string, result Result, err error, elapsed time.Duration) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case result.Truncated:
		status = "truncated"
	}
	executionsTotal.WithLabelValues(executor, status).Inc()
	executionDurationSeconds.WithLabelValues(executor).Observe(elapsed.Seconds())
	if err == nil {
		rowsReturnedTotal.WithLabelValues(executor).Add(float64(result.RowCount))
	}
}
