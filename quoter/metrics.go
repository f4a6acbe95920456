package quoter

import (
	"github.com/defistate/defistate-router-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	quoteDuration prometheus.Histogram
	routesTotal   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		quoteDuration: metrics.Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "quoter",
			Name:      "quote_duration_seconds",
			Help:      "Time spent pricing one set of candidate routes.",
			Buckets:   prometheus.DefBuckets,
		})),
		routesTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "quoter",
			Name:      "routes_total",
			Help:      "Candidate routes processed, by outcome (priced or dropped).",
		}, []string{"outcome"})),
	}
}
