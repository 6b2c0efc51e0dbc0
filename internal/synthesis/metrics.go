package synthesis

import "github.com/prometheus/client_golang/prometheus"

var (
	synthesisAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopdesk_synthesis_attempts_total",
			Help: "Total number of calls to the text-generation capability by outcome.",
		},
		[]string{"outcome"},
	)
	synthesisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopdesk_synthesis_duration_seconds",
			Help:    "Latency of successful and failed synthesis requests, retries included.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)
	synthesisInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopdesk_synthesis_in_flight",
			Help: "Number of synthesis requests currently holding a concurrency slot.",
		},
	)
)

func init() {
	prometheus.MustRegister(synthesisAttemptsTotal, synthesisDurationSeconds, synthesisInFlight)
}
