package metrics

import (
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// defaultSampleInterval is how often the collector refreshes gauges.
const defaultSampleInterval = 15 * time.Second

// Collector samples the core components and updates the gauges.
type Collector struct {
	queue    *queue.TransactionQueue
	bus      *events.EventBus
	hub      *hub.ConnectionHub
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector builds a collector over the three core components.
func NewCollector(q *queue.TransactionQueue, b *events.EventBus, h *hub.ConnectionHub) *Collector {
	return &Collector{
		queue:    q,
		bus:      b,
		hub:      h,
		interval: defaultSampleInterval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling.
func (c *Collector) Start() {
	go func() {
		// Sample immediately so gauges are populated before the first tick.
		c.collect()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	qs := c.queue.Metrics()
	QueuePendingDepth.Set(float64(qs.PendingDepth))
	QueueProcessing.Set(float64(qs.ProcessingCount))
	QueueCompleted.Set(float64(qs.TotalCompleted))
	QueueFailed.Set(float64(qs.TotalFailed))
	QueueDeadLetter.Set(float64(qs.DeadLetterCount))
	QueueThroughput.Set(qs.ThroughputPerSec)
	QueueHealthScore.Set(qs.HealthScore)

	bs := c.bus.Metrics()
	EventsPendingDepth.Set(float64(bs.PendingDepth))
	EventsDispatched.Set(float64(bs.TotalDispatched))
	EventsErrors.Set(float64(bs.TotalErrors))
	EventsHistorySize.Set(float64(bs.HistorySize))
	EventsHealthScore.Set(bs.HealthScore)

	hs := c.hub.Metrics()
	HubActiveConnections.Set(float64(hs.ActiveConnections))
	HubAuthenticatedConnections.Set(float64(hs.AuthenticatedConnections))
	HubSubscriptions.Set(float64(hs.Subscriptions))
	HubBufferedEvents.Set(float64(hs.BufferedEvents))
	HubMessagesSent.Set(float64(hs.MessagesSent))
	HubSendFailures.Set(float64(hs.SendFailures))
	HubHealthScore.Set(hs.HealthScore)
}
