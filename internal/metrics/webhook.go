package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookAttemptsTotal, webhookLatencyMs) }

var (
	webhookAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_webhook_attempts_total",
			Help: "Calls to the workflow engine, labeled by outcome.",
		},
		[]string{"outcome"}, // 'final', 'placeholder', 'http_error', 'timeout', 'transient'
	)

	webhookLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poller_webhook_latency_ms",
			Help:    "Workflow engine call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000},
		},
		[]string{"outcome"},
	)
)

func ObserveAttempt(outcome string, latencyMs float64) {
	o := norm(outcome)
	webhookAttemptsTotal.WithLabelValues(o).Inc()
	webhookLatencyMs.WithLabelValues(o).Observe(latencyMs)
}
