package hub

import (
	"context"
	"errors"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// Sentinel errors for hub operations.
var (
	// ErrConnectionNotFound indicates an unknown connection id.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrNotAuthenticated indicates the operation requires a prior
	// successful Authenticate.
	ErrNotAuthenticated = errors.New("connection not authenticated")
)

// Transport is the outbound side of a client connection. Implementations
// sit below the hub boundary (the WebSocket adapter in pkg/api); sends
// are bounded by the context deadline the hub supplies.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
	Close() error
}

// TokenValidator checks an authentication token for a user. Token
// issuance and JWT semantics are a boundary concern; the hub only
// records the verdict.
type TokenValidator func(ctx context.Context, userID, token string) bool

// Connection is the hub's record of one persistent client connection.
// All fields are guarded by the hub's lock.
type Connection struct {
	ID                string                    `json:"id"`
	UserID            string                    `json:"userId"`
	IsAuthenticated   bool                      `json:"isAuthenticated"`
	SubscribedEvents  map[models.EventType]bool `json:"subscribedEvents"`
	LastPing          time.Time                 `json:"lastPing"`
	ConnectionStarted time.Time                 `json:"connectionStarted"`
	Metadata          map[string]any            `json:"metadata,omitempty"`

	transport Transport
}

// Alive reports whether the connection's last ping is within the
// liveness timeout. Exactly at the threshold counts as alive.
func (c *Connection) Alive(now time.Time, livenessTimeout time.Duration) bool {
	return now.Sub(c.LastPing) <= livenessTimeout
}
