package differ

import (
	"github.com/defistate/defistate-router-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	diffDuration   prometheus.Histogram
	changedEntries prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		diffDuration: metrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "differ",
			Name:      "duration_seconds",
			Help:      "Time spent diffing two watcher refreshes.",
			Buckets:   prometheus.DefBuckets,
		})),
		changedEntries: metrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "differ",
			Name:      "changed_entries",
			Help:      "Entries reported as changed per diff.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		})),
	}
}
