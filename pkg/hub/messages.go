// Package hub tracks persistent client connections, matches events
// against subscriptions, fans out to live authenticated connections, and
// buffers for offline users.
package hub

import (
	"time"

	"github.com/google/uuid"
)

// MessageType names a framed message kind.
type MessageType string

// Frame types exchanged with clients.
const (
	MessageEvent       MessageType = "event"
	MessageSubscribe   MessageType = "subscribe"
	MessageUnsubscribe MessageType = "unsubscribe"
	MessagePing        MessageType = "ping"
	MessagePong        MessageType = "pong"
	MessageError       MessageType = "error"
	MessageAuth        MessageType = "auth"
)

// Message is the framed envelope delivered to a connection. Event
// messages wrap the domain event in Payload.
type Message struct {
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	MessageID string      `json:"messageId"`
}

// NewMessage frames a payload with a generated message id and the
// current timestamp.
func NewMessage(t MessageType, payload any) *Message {
	return &Message{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
		MessageID: uuid.New().String(),
	}
}
