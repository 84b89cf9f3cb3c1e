package models

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChannelType names a delivery channel for a subscription. Only websocket
// delivery is implemented by the connection hub; the other channels are
// accepted and ignored at delivery time.
type ChannelType string

// Delivery channels.
const (
	ChannelWebSocket ChannelType = "websocket"
	ChannelWebhook   ChannelType = "webhook"
	ChannelSSE       ChannelType = "sse"
	ChannelPush      ChannelType = "push"
)

// FilterOperator names a filter comparison.
type FilterOperator string

// Filter operators. Unknown operators evaluate to false, not an error.
const (
	FilterEquals      FilterOperator = "equals"
	FilterContains    FilterOperator = "contains"
	FilterStartsWith  FilterOperator = "startsWith"
	FilterEndsWith    FilterOperator = "endsWith"
	FilterGreaterThan FilterOperator = "greaterThan"
	FilterLessThan    FilterOperator = "lessThan"
)

// Filter is a structured predicate over an event. Field is a dotted path
// resolved via Event.Lookup; an unresolvable path never matches.
type Filter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// Matches evaluates the filter against an event.
func (f Filter) Matches(e *Event) bool {
	actual, ok := e.Lookup(f.Field)
	if !ok {
		return false
	}

	switch f.Operator {
	case FilterEquals:
		return equalValues(actual, f.Value)
	case FilterContains:
		return strings.Contains(coerceString(actual), coerceString(f.Value))
	case FilterStartsWith:
		return strings.HasPrefix(coerceString(actual), coerceString(f.Value))
	case FilterEndsWith:
		return strings.HasSuffix(coerceString(actual), coerceString(f.Value))
	case FilterGreaterThan:
		a, aok := coerceFloat(actual)
		b, bok := coerceFloat(f.Value)
		return aok && bok && a > b
	case FilterLessThan:
		a, aok := coerceFloat(actual)
		b, bok := coerceFloat(f.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

// equalValues compares two values strictly, tolerating the int/float64
// split that JSON decoding introduces for numbers.
func equalValues(a, b any) bool {
	if af, aok := coerceNumeric(a); aok {
		if bf, bok := coerceNumeric(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// coerceNumeric converts native numeric types only (no string parsing).
func coerceNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// coerceFloat converts a value for numeric comparison; numeric strings
// parse, anything else is NaN and fails the comparison.
func coerceFloat(v any) (float64, bool) {
	if f, ok := coerceNumeric(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// Subscription registers a user's interest in a set of event types,
// optionally narrowed by filters. Subscriptions are mutable: the type set
// may grow or shrink and LastActivity advances on use.
type Subscription struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	EventTypes   []EventType   `json:"eventTypes"`
	Channels     []ChannelType `json:"channels"`
	Filters      []Filter      `json:"filters,omitempty"`
	IsActive     bool          `json:"isActive"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity,omitempty"`
}

// NewSubscription constructs an active subscription with a generated id.
func NewSubscription(userID string, eventTypes []EventType, filters []Filter) *Subscription {
	now := time.Now()
	return &Subscription{
		ID:           uuid.New().String(),
		UserID:       userID,
		EventTypes:   eventTypes,
		Channels:     []ChannelType{ChannelWebSocket},
		Filters:      filters,
		IsActive:     true,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// HasEventType reports whether t is in the subscription's type set.
func (s *Subscription) HasEventType(t EventType) bool {
	for _, et := range s.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// RemoveEventTypes removes the given types from the subscription's set.
func (s *Subscription) RemoveEventTypes(types []EventType) {
	kept := s.EventTypes[:0]
	for _, et := range s.EventTypes {
		drop := false
		for _, rm := range types {
			if et == rm {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, et)
		}
	}
	s.EventTypes = kept
}

// MatchesEvent reports whether the event should be delivered under this
// subscription: the subscription is active, the event type is subscribed,
// the user matches (or the event is a system broadcast and the
// subscription covers system_alert), and every filter passes.
func (s *Subscription) MatchesEvent(e *Event) bool {
	if !s.IsActive {
		return false
	}
	if !s.HasEventType(e.Type) {
		return false
	}
	if e.UserID != s.UserID {
		// System broadcasts reach every system_alert subscriber
		// regardless of the subscriber's own user id.
		if !(e.UserID == SystemUserID && s.HasEventType(EventSystemAlert)) {
			return false
		}
	}
	for _, f := range s.Filters {
		if !f.Matches(e) {
			return false
		}
	}
	return true
}

// Stale reports whether the subscription has been inactive longer than
// the given threshold.
func (s *Subscription) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.LastActivity) > threshold
}
