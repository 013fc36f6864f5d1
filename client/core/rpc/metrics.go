package rpc

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollerMetricsOnce sync.Once

	pollerResultsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wes",
			Subsystem: "poller",
			Name:      "results_total",
			Help:      "Poll attempts by outcome (ok, retry, error, fatal).",
		},
		[]string{"outcome"},
	)

	pollerActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wes",
		Subsystem: "poller",
		Name:      "active_tasks",
		Help:      "Poller tasks currently running.",
	})
)

// initPollerMetrics 在首次使用时注册轮询指标
func initPollerMetrics() {
	pollerMetricsOnce.Do(func() {
		prometheus.MustRegister(pollerResultsCounter, pollerActiveGauge)
	})
}
