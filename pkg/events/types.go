// Package events provides the event bus: batched priority dispatch of
// domain events to the connection hub, with bounded queryable history.
package events

import (
	"context"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// Sink receives dispatched events. Implemented by the connection hub.
type Sink interface {
	ProcessEvent(ctx context.Context, e *models.Event) error
}

// HistoryFilter narrows a history query. Zero-valued fields match
// everything.
type HistoryFilter struct {
	EventTypes []models.EventType
	UserIDs    []string
	Priorities []models.Priority
	StartTime  *time.Time
	EndTime    *time.Time
	Source     string
	Tags       []string
	Limit      int
}

// TypeMetrics is the per-event-type slice of the bus metrics.
type TypeMetrics struct {
	Count         uint64  `json:"count"`
	AvgDispatchMs float64 `json:"avgDispatchMs"`
	Errors        uint64  `json:"errors"`
}

// MetricsSnapshot is a value copy of the bus metrics.
type MetricsSnapshot struct {
	PendingDepth     int                              `json:"pendingDepth"`
	HistorySize      int                              `json:"historySize"`
	TotalEmitted     uint64                           `json:"totalEmitted"`
	TotalDispatched  uint64                           `json:"totalDispatched"`
	TotalErrors      uint64                           `json:"totalErrors"`
	TotalExpired     uint64                           `json:"totalExpired"`
	ThroughputPerSec float64                          `json:"throughputPerSec"`
	LastProcessedAt  time.Time                        `json:"lastProcessedAt"`
	PerType          map[models.EventType]TypeMetrics `json:"perType"`
	HealthScore      float64                          `json:"healthScore"`
	Paused           bool                             `json:"paused"`
}
