package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRegisterReturnsExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := prometheus.CounterOpts{Namespace: Namespace, Name: "test_total", Help: "test"}

	first := Register(reg, prometheus.NewCounter(opts))
	second := Register(reg, prometheus.NewCounter(opts))
	first.Inc()

	assert.Same(t, first, second)
}

func TestRegisterPanicsOnConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg, prometheus.NewCounter(prometheus.CounterOpts{Namespace: Namespace, Name: "conflict", Help: "a"}))

	assert.Panics(t, func() {
		Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Namespace: Namespace, Name: "conflict", Help: "b"}))
	})
}
