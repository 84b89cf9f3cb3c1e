package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// clientMessage is the JSON structure for client → server WebSocket
// messages.
type clientMessage struct {
	Type       string             `json:"type"`
	Token      string             `json:"token,omitempty"`
	EventTypes []models.EventType `json:"eventTypes,omitempty"`
	Filters    []models.Filter    `json:"filters,omitempty"`
}

// wsHandler upgrades GET /api/realtime/ws and runs the connection's
// read loop until it closes. The userId query parameter identifies the
// connecting user; authentication happens over the socket via an auth
// message.
func (s *Server) wsHandler(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "userId query parameter is required"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin validation belongs to the deployment's proxy layer.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	connID := uuid.New().String()
	transport := &wsTransport{conn: conn}
	s.hub.AddConnection(connID, userID, transport, map[string]any{
		"remoteAddr": c.Request.RemoteAddr,
	})
	defer s.hub.RemoveConnection(connID)

	ctx := c.Request.Context()

	// Greet with the assigned connection id; the client replies with an
	// auth message to unlock delivery.
	_ = transport.Send(ctx, hub.NewMessage(hub.MessageAuth, map[string]any{
		"connectionId":  connID,
		"authenticated": false,
	}))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}
		s.handleClientMessage(ctx, connID, transport, &msg)
	}
}

// handleClientMessage dispatches one client message.
func (s *Server) handleClientMessage(ctx context.Context, connID string, transport *wsTransport, msg *clientMessage) {
	switch msg.Type {
	case "auth":
		ok := s.hub.Authenticate(ctx, connID, msg.Token)
		if !ok {
			_ = transport.Send(ctx, hub.NewMessage(hub.MessageError, map[string]any{
				"message": "authentication failed",
			}))
			return
		}
		_ = transport.Send(ctx, hub.NewMessage(hub.MessageAuth, map[string]any{
			"connectionId":  connID,
			"authenticated": true,
		}))

	case "subscribe":
		subID, err := s.hub.Subscribe(connID, msg.EventTypes, msg.Filters)
		if err != nil {
			_ = transport.Send(ctx, hub.NewMessage(hub.MessageError, map[string]any{
				"message": err.Error(),
			}))
			return
		}
		_ = transport.Send(ctx, hub.NewMessage(hub.MessageSubscribe, map[string]any{
			"subscriptionId": subID,
			"eventTypes":     msg.EventTypes,
		}))

	case "unsubscribe":
		if err := s.hub.Unsubscribe(connID, msg.EventTypes); err != nil {
			_ = transport.Send(ctx, hub.NewMessage(hub.MessageError, map[string]any{
				"message": err.Error(),
			}))
			return
		}
		_ = transport.Send(ctx, hub.NewMessage(hub.MessageUnsubscribe, map[string]any{
			"eventTypes": msg.EventTypes,
		}))

	case "ping":
		s.hub.MarkAlive(connID)
		_ = transport.Send(ctx, hub.NewMessage(hub.MessagePong, nil))

	case "pong":
		s.hub.MarkAlive(connID)

	default:
		_ = transport.Send(ctx, hub.NewMessage(hub.MessageError, map[string]any{
			"message": "unknown message type: " + msg.Type,
		}))
	}
}

// wsTransport adapts a coder/websocket connection to the hub transport.
// Writes are serialized; the hub bounds each send with a deadline.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send marshals and writes one framed message.
func (t *wsTransport) Send(ctx context.Context, msg *hub.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the underlying socket.
func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
