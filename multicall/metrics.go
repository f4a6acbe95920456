package multicall

import (
	"github.com/defistate/defistate-router-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	batchDuration prometheus.Histogram
	batchesTotal  *prometheus.CounterVec
	callsTotal    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		batchDuration: metrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "multicall",
			Name:      "duration_seconds",
			Help:      "Time spent executing one multicall, across all of its JSON-RPC batches.",
			Buckets:   prometheus.DefBuckets,
		})),
		batchesTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "multicall",
			Name:      "batches_total",
			Help:      "JSON-RPC batches sent, by transport outcome.",
		}, []string{"outcome"})),
		callsTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "multicall",
			Name:      "calls_total",
			Help:      "Individual eth_calls executed, by outcome.",
		}, []string{"outcome"})),
	}
}
