package pubsub

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pubsubMetricsOnce sync.Once

	pubsubInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wes",
		Subsystem: "pubsub",
		Name:      "in_flight_requests",
		Help:      "Requests written to the connection and still awaiting a response.",
	})

	pubsubActiveSubsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wes",
		Subsystem: "pubsub",
		Name:      "active_subscriptions",
		Help:      "Server-side subscriptions currently tracked by the demultiplexer.",
	})

	pubsubNotificationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wes",
			Subsystem: "pubsub",
			Name:      "notifications_total",
			Help:      "Subscription notifications received, by outcome (delivered, no_listener, unknown).",
		},
		[]string{"outcome"},
	)

	pubsubReconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wes",
		Subsystem: "pubsub",
		Name:      "reconnects_total",
		Help:      "Successful reconnections of the pubsub backend.",
	})
)

// initPubSubMetrics 在首次使用时注册指标
func initPubSubMetrics() {
	pubsubMetricsOnce.Do(func() {
		prometheus.MustRegister(
			pubsubInFlightGauge,
			pubsubActiveSubsGauge,
			pubsubNotificationsCounter,
			pubsubReconnectsCounter,
		)
	})
}
