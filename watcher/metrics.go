package watcher

import (
	"github.com/defistate/defistate-router-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ticksTotal     *prometheus.CounterVec
	tickDuration   *prometheus.HistogramVec
	emissionsTotal *prometheus.CounterVec
	staleTotal     *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ticksTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "watcher",
			Name:      "ticks_total",
			Help:      "Watcher refreshes, by schema and outcome.",
		}, []string{"schema", "outcome"})),
		tickDuration: metrics.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "watcher",
			Name:      "tick_duration_seconds",
			Help:      "Time spent on one refresh, diff and emission.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"schema"})),
		emissionsTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "watcher",
			Name:      "emissions_total",
			Help:      "Values offered to subscribers, by schema and whether they were delivered or dropped.",
		}, []string{"schema", "result"})),
		staleTotal: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "watcher",
			Name:      "stale_results_total",
			Help:      "Refresh results discarded because the watch was stopped or restarted.",
		}, []string{"schema"})),
		subscribers: metrics.Register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "watcher",
			Name:      "subscribers",
			Help:      "Open subscriptions, by schema.",
		}, []string{"schema"})),
	}
}
