package api

import (
	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/models"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the composite health body for
// GET /api/realtime/health.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Score       float64                `json:"score"`
	Queue       queue.MetricsSnapshot  `json:"queue"`
	Events      events.MetricsSnapshot `json:"events"`
	Connections hub.MetricsSnapshot    `json:"connections"`
}

// AcceptedResponse acknowledges an asynchronous emit.
type AcceptedResponse struct {
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
}

// QueueStatusResponse is the body for GET /api/realtime/queue.
type QueueStatusResponse struct {
	Status  string                `json:"status"`
	Metrics queue.MetricsSnapshot `json:"metrics"`
}

// HistoryResponse is the body for GET /api/realtime/events/history.
type HistoryResponse struct {
	Count  int             `json:"count"`
	Events []*models.Event `json:"events"`
}
