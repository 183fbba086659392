package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sizes) }

var sizes = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "poller_sizes",
		Help: "Current sizes of the in-memory job structures.",
	},
	[]string{"kind"}, // 'jobs', 'dedup_keys', 'queued'
)

func SetSize(kind string, n int) {
	sizes.WithLabelValues(norm(kind)).Set(float64(n))
}
