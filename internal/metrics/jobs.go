package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsSubmittedTotal, jobsFinishedTotal, jobsInFlight, pollsTotal)
}

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_jobs_submitted_total",
			Help: "Submit calls, labeled by outcome.",
		},
		[]string{"outcome"}, // 'created', 'deduped', 'config_error', 'rejected'
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_jobs_finished_total",
			Help: "Jobs that reached a terminal status, labeled by status and reason.",
		},
		[]string{"status", "reason"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_jobs_in_flight",
			Help: "Resolution workers currently running.",
		},
	)

	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_polls_total",
			Help: "Poll calls, labeled by what was surfaced.",
		},
		[]string{"result"}, // 'unknown', 'final', 'repeat', 'throttled', 'silent', 'progress', 'exhausted'
	)
)

func IncSubmit(outcome string) {
	jobsSubmittedTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncFinished(status, reason string) {
	jobsFinishedTotal.WithLabelValues(norm(status), norm(reason)).Inc()
}

func IncPoll(result string) {
	pollsTotal.WithLabelValues(norm(result)).Inc()
}

// TrackInFlight bumps the in-flight gauge and returns the matching decrement
func TrackInFlight() func() {
	jobsInFlight.Inc()
	return jobsInFlight.Dec
}

// SinceMs converts a start time to elapsed milliseconds
func SinceMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
