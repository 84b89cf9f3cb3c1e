package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the lifecycle state of a queued transaction.
type TransactionStatus string

// Transaction lifecycle states. pending → processing → (completed|failed);
// failed with retries left re-enters pending; cancelled is reachable from
// pending only.
const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionCancelled  TransactionStatus = "cancelled"
)

// DefaultMaxRetries applies when a transaction is built via
// NewQueuedTransaction without an explicit retry budget.
const DefaultMaxRetries = 3

// QueuedTransaction is a unit of work admitted to the transaction queue.
// Fields mutate only through the queue's documented lifecycle transitions;
// callers observe state via immutable snapshots (Clone).
type QueuedTransaction struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	TransactionData map[string]any    `json:"transactionData"`
	Priority        Priority          `json:"priority"`
	RetryCount      int               `json:"retryCount"`
	MaxRetries      int               `json:"maxRetries"`
	Status          TransactionStatus `json:"status"`
	ScheduledAt     time.Time         `json:"scheduledAt"`
	ProcessedAt     *time.Time        `json:"processedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// NewQueuedTransaction constructs a pending transaction with a generated
// id (when empty), the default retry budget, and ScheduledAt set to now.
func NewQueuedTransaction(id, userID string, data map[string]any, priority Priority) *QueuedTransaction {
	if id == "" {
		id = uuid.New().String()
	}
	return &QueuedTransaction{
		ID:              id,
		UserID:          userID,
		TransactionData: data,
		Priority:        priority,
		MaxRetries:      DefaultMaxRetries,
		Status:          TransactionPending,
		ScheduledAt:     time.Now(),
	}
}

// Terminal reports whether the status admits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionCompleted || s == TransactionFailed || s == TransactionCancelled
}

// Clone returns an independent snapshot of the transaction. The opaque
// payload and metadata maps are shallow-copied; the queue never mutates
// their contents after admission.
func (t *QueuedTransaction) Clone() *QueuedTransaction {
	cp := *t
	if t.ProcessedAt != nil {
		at := *t.ProcessedAt
		cp.ProcessedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.TransactionData != nil {
		cp.TransactionData = make(map[string]any, len(t.TransactionData))
		for k, v := range t.TransactionData {
			cp.TransactionData[k] = v
		}
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
