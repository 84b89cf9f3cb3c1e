// Package queue provides the transaction queue: priority scheduling over
// a bounded pool of concurrent processing tasks, with per-item timeouts,
// exponential backoff retries, and dead-letter routing.
package queue

import (
	"context"
	"errors"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrInvalidItem indicates a transaction failed admission validation.
	ErrInvalidItem = errors.New("invalid transaction item")

	// ErrShuttingDown indicates the queue no longer accepts work.
	ErrShuttingDown = errors.New("queue is shutting down")

	// ErrNotFound indicates the queried id has no record in any partition.
	ErrNotFound = errors.New("transaction not found")
)

// Processor performs the actual work for a transaction, typically by
// posting to the ledger backend. Processors are invoked sequentially per
// transaction but concurrently across transactions, and must be
// idempotent: a timed-out invocation may still complete in the
// background while the queue has already retried the item.
type Processor interface {
	Process(ctx context.Context, tx *models.QueuedTransaction) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, tx *models.QueuedTransaction) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, tx *models.QueuedTransaction) error {
	return f(ctx, tx)
}

// Emitter receives transaction lifecycle events. Implemented by the
// event bus; nil disables event emission.
type Emitter interface {
	EmitTransactionEvent(eventType models.EventType, userID string, data map[string]any, priority models.Priority)
}

// MetricsSnapshot is a value copy of the queue's counters and derived
// rates at a point in time.
type MetricsSnapshot struct {
	TotalQueued         uint64  `json:"totalQueued"`
	TotalProcessing     uint64  `json:"totalProcessing"`
	TotalCompleted      uint64  `json:"totalCompleted"`
	TotalFailed         uint64  `json:"totalFailed"`
	PendingDepth        int     `json:"pendingDepth"`
	ProcessingCount     int     `json:"processingCount"`
	CompletedCount      int     `json:"completedCount"`
	DeadLetterCount     int     `json:"deadLetterCount"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	ThroughputPerSec    float64 `json:"throughputPerSec"`
	HealthScore         float64 `json:"healthScore"`
	Paused              bool    `json:"paused"`
}
