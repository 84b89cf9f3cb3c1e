package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventDefaults(t *testing.T) {
	e := NewEvent(EventBalanceUpdated, "user-1", map[string]any{"amount": 42}, "")

	require.NotEmpty(t, e.ID)
	require.NotEmpty(t, e.CorrelationID)
	assert.Equal(t, EventBalanceUpdated, e.Type)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, PriorityHigh, e.Metadata.Priority, "priority defaults to high")
	assert.False(t, e.Timestamp.IsZero())
}

func TestEventTypeValid(t *testing.T) {
	for _, et := range AllEventTypes {
		assert.True(t, et.Valid(), "expected %s to be valid", et)
	}
	assert.False(t, EventType("bogus").Valid())
	assert.False(t, EventType("").Valid())
}

func TestIsTransactionEvent(t *testing.T) {
	assert.True(t, EventTransactionCompleted.IsTransactionEvent())
	assert.True(t, EventTransactionCreated.IsTransactionEvent())
	assert.False(t, EventBalanceUpdated.IsTransactionEvent())
}

func TestPriorityScore(t *testing.T) {
	assert.Equal(t, 4, PriorityCritical.Score())
	assert.Equal(t, 3, PriorityHigh.Score())
	assert.Equal(t, 2, PriorityMedium.Score())
	assert.Equal(t, 1, PriorityLow.Score())
	assert.Equal(t, 0, Priority("urgent").Score())
	assert.False(t, Priority("urgent").Valid())
}

func TestEventExpired(t *testing.T) {
	now := time.Now()

	e := NewEvent(EventSystemAlert, SystemUserID, nil, PriorityCritical)
	assert.False(t, e.Expired(now), "no expiresAt means never expired")

	past := now.Add(-time.Minute)
	e.Metadata.ExpiresAt = &past
	assert.True(t, e.Expired(now))

	future := now.Add(time.Minute)
	e.Metadata.ExpiresAt = &future
	assert.False(t, e.Expired(now))
}

func TestEventLookup(t *testing.T) {
	e := NewEvent(EventTransactionCompleted, "user-7", map[string]any{
		"merchantId": "m-123",
		"amount":     99.5,
		"nested":     map[string]any{"deep": "value"},
	}, PriorityMedium)
	e.Metadata.Source = "payroll"
	e.Metadata.Tags = []string{"salary"}

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"id", e.ID, true},
		{"type", "transaction_completed", true},
		{"userId", "user-7", true},
		{"correlationId", e.CorrelationID, true},
		{"metadata.source", "payroll", true},
		{"metadata.priority", "medium", true},
		{"metadata.retryable", false, true},
		{"data.merchantId", "m-123", true},
		{"data.amount", 99.5, true},
		{"data.nested.deep", "value", true},
		{"data.missing", nil, false},
		{"data.merchantId.deeper", nil, false},
		{"metadata.bogus", nil, false},
		{"metadata.expiresAt", nil, false},
		{"bogus", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		got, ok := e.Lookup(tt.path)
		assert.Equal(t, tt.ok, ok, "path %q resolution", tt.path)
		if tt.ok {
			assert.Equal(t, tt.want, got, "path %q value", tt.path)
		}
	}
}
