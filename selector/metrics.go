package selector

import (
	"github.com/defistate/defistate-router-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	rerankTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		rerankTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "selector",
			Name:      "rerank_total",
			Help:      "Gas-aware re-ranking attempts, by result (reordered, unchanged, skipped).",
		}, []string{"result"})),
	}
}
