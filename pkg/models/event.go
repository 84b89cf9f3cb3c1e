// Package models defines the shared value types of the realtime core:
// events, subscriptions, filters, and queued transactions.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of domain event.
type EventType string

// Domain event types.
const (
	EventTransactionCreated    EventType = "transaction_created"
	EventTransactionProcessing EventType = "transaction_processing"
	EventTransactionCompleted  EventType = "transaction_completed"
	EventTransactionFailed     EventType = "transaction_failed"
	EventBalanceUpdated        EventType = "balance_updated"
	EventCurrencyConverted     EventType = "currency_converted"
	EventAccountCreated        EventType = "account_created"
	EventExchangeRateUpdated   EventType = "exchange_rate_updated"
	EventSystemAlert           EventType = "system_alert"
	EventPerformanceMetric     EventType = "performance_metric"
)

// AllEventTypes lists every valid event type.
var AllEventTypes = []EventType{
	EventTransactionCreated,
	EventTransactionProcessing,
	EventTransactionCompleted,
	EventTransactionFailed,
	EventBalanceUpdated,
	EventCurrencyConverted,
	EventAccountCreated,
	EventExchangeRateUpdated,
	EventSystemAlert,
	EventPerformanceMetric,
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransactionEventTypes are the event types emitted by the transaction
// queue lifecycle. The REST adapter restricts its transaction endpoint
// to this set.
var TransactionEventTypes = []EventType{
	EventTransactionCreated,
	EventTransactionProcessing,
	EventTransactionCompleted,
	EventTransactionFailed,
}

// IsTransactionEvent reports whether t is a transaction lifecycle type.
func (t EventType) IsTransactionEvent() bool {
	for _, known := range TransactionEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority orders events and transactions for dispatch.
type Priority string

// Priority levels, highest first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Score maps a priority to its numeric dispatch score (critical=4 … low=1).
// Unknown priorities score 0 and sort last.
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority level.
func (p Priority) Valid() bool {
	return p.Score() > 0
}

// SystemUserID is the reserved sentinel for broadcast system events.
// An event addressed to it bypasses the per-user subscription match for
// subscribers of system_alert.
const SystemUserID = "system"

// EventMetadata carries delivery hints attached to an event.
type EventMetadata struct {
	Source    string     `json:"source"`
	Version   string     `json:"version"`
	Priority  Priority   `json:"priority"`
	Retryable bool       `json:"retryable"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// Event is an immutable domain event. Once constructed no field mutates;
// components hand around the same pointer and treat it as read-only.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	UserID        string         `json:"userId"`
	Data          map[string]any `json:"data"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlationId"`
	Metadata      EventMetadata  `json:"metadata"`
}

// NewEvent constructs an event with a generated id, the current timestamp,
// and the given priority (high if empty).
func NewEvent(eventType EventType, userID string, data map[string]any, priority Priority) *Event {
	if priority == "" {
		priority = PriorityHigh
	}
	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		UserID:        userID,
		Data:          data,
		Timestamp:     time.Now(),
		CorrelationID: uuid.New().String(),
		Metadata: EventMetadata{
			Source:   "realtime-core",
			Version:  "1.0",
			Priority: priority,
		},
	}
}

// Expired reports whether the event's TTL has passed at the given instant.
// Events without an ExpiresAt never expire.
func (e *Event) Expired(now time.Time) bool {
	return e.Metadata.ExpiresAt != nil && now.After(*e.Metadata.ExpiresAt)
}

// Lookup resolves a dotted field path against the event, e.g.
// "metadata.source" or "data.merchantId". The first segment selects a
// top-level field; under "data", remaining segments descend nested maps.
// Returns false when the path does not resolve.
func (e *Event) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, false
	}

	switch parts[0] {
	case "id":
		return leaf(e.ID, parts)
	case "type":
		return leaf(string(e.Type), parts)
	case "userId":
		return leaf(e.UserID, parts)
	case "timestamp":
		return leaf(e.Timestamp, parts)
	case "correlationId":
		return leaf(e.CorrelationID, parts)
	case "data":
		if len(parts) == 1 {
			return e.Data, true
		}
		return descend(e.Data, parts[1:])
	case "metadata":
		return e.lookupMetadata(parts[1:])
	default:
		return nil, false
	}
}

func (e *Event) lookupMetadata(parts []string) (any, bool) {
	if len(parts) != 1 {
		return nil, false
	}
	switch parts[0] {
	case "source":
		return e.Metadata.Source, true
	case "version":
		return e.Metadata.Version, true
	case "priority":
		return string(e.Metadata.Priority), true
	case "retryable":
		return e.Metadata.Retryable, true
	case "expiresAt":
		if e.Metadata.ExpiresAt == nil {
			return nil, false
		}
		return *e.Metadata.ExpiresAt, true
	case "tags":
		return e.Metadata.Tags, true
	default:
		return nil, false
	}
}

// leaf returns v only when the path ends at this segment.
func leaf(v any, parts []string) (any, bool) {
	if len(parts) != 1 {
		return nil, false
	}
	return v, true
}

// descend walks nested string-keyed maps.
func descend(m map[string]any, parts []string) (any, bool) {
	var cur any = m
	for _, part := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
