// Package metrics exports the realtime core's state as Prometheus
// gauges, sampled periodically by a collector goroutine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transaction queue gauges.
	QueuePendingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_pending_depth",
		Help: "Transactions waiting for dispatch (including retry delays)",
	})
	QueueProcessing = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_processing",
		Help: "Transactions currently processing",
	})
	QueueCompleted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_completed_total",
		Help: "Transactions completed since start",
	})
	QueueFailed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_failed_total",
		Help: "Failed processing attempts since start",
	})
	QueueDeadLetter = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_dead_letter",
		Help: "Transactions in the dead-letter partition",
	})
	QueueThroughput = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_throughput_per_second",
		Help: "Completions per second over the rolling window",
	})
	QueueHealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_queue_health_score",
		Help: "Queue health grade (0-100)",
	})

	// Event bus gauges.
	EventsPendingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_events_pending_depth",
		Help: "Events awaiting dispatch",
	})
	EventsDispatched = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_events_dispatched_total",
		Help: "Events dispatched since start",
	})
	EventsErrors = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_events_errors_total",
		Help: "Event dispatch errors since start",
	})
	EventsHistorySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_events_history_size",
		Help: "Events retained in the queryable history",
	})
	EventsHealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_events_health_score",
		Help: "Event bus health grade (0-100)",
	})

	// Connection hub gauges.
	HubActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_active_connections",
		Help: "Registered connections",
	})
	HubAuthenticatedConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_authenticated_connections",
		Help: "Authenticated connections",
	})
	HubSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_subscriptions",
		Help: "Active subscriptions",
	})
	HubBufferedEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_buffered_events",
		Help: "Events buffered for offline users",
	})
	HubMessagesSent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_messages_sent_total",
		Help: "Messages delivered since start",
	})
	HubSendFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_send_failures_total",
		Help: "Message delivery failures since start",
	})
	HubHealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_hub_health_score",
		Help: "Connection hub health grade (0-100)",
	})
)

func init() {
	prometheus.MustRegister(
		QueuePendingDepth,
		QueueProcessing,
		QueueCompleted,
		QueueFailed,
		QueueDeadLetter,
		QueueThroughput,
		QueueHealthScore,
		EventsPendingDepth,
		EventsDispatched,
		EventsErrors,
		EventsHistorySize,
		EventsHealthScore,
		HubActiveConnections,
		HubAuthenticatedConnections,
		HubSubscriptions,
		HubBufferedEvents,
		HubMessagesSent,
		HubSendFailures,
		HubHealthScore,
	)
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
