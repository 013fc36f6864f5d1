package heartbeat

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	heartbeatMetricsOnce sync.Once

	watchedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wes",
		Subsystem: "heartbeat",
		Name:      "watched_transactions",
		Help:      "Transactions currently tracked (unconfirmed or waiting for depth).",
	})

	resolvedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wes",
			Subsystem: "heartbeat",
			Name:      "resolved_total",
			Help:      "Watchers resolved by outcome (confirmed, reaped, replaced, cancelled, shutdown).",
		},
		[]string{"outcome"},
	)

	blocksCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wes",
		Subsystem: "heartbeat",
		Name:      "blocks_total",
		Help:      "Blocks with a height processed by the heartbeat.",
	})

	latestHeightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wes",
		Subsystem: "heartbeat",
		Name:      "latest_block_height",
		Help:      "Height of the latest block seen by the heartbeat.",
	})
)

func initHeartbeatMetrics() {
	heartbeatMetricsOnce.Do(func() {
		prometheus.MustRegister(watchedGauge, resolvedCounter, blocksCounter, latestHeightGauge)
	})
}
