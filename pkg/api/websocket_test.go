package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnnydxm/bank-realtime/pkg/config"
	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/models"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// receivedFrame mirrors hub.Message with a raw payload for re-decoding.
type receivedFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	MessageID string          `json:"messageId"`
}

func setupWSServer(t *testing.T) (*httptest.Server, *hub.ConnectionHub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	connHub, err := hub.NewConnectionHub(config.DefaultHubConfig(), nil)
	require.NoError(t, err)
	bus, err := events.NewEventBus(config.DefaultBusConfig(), connHub)
	require.NoError(t, err)
	q, err := queue.NewTransactionQueue(config.DefaultQueueConfig(), bus)
	require.NoError(t, err)

	server := httptest.NewServer(NewServer(q, bus, connHub).Router())
	t.Cleanup(server.Close)
	return server, connHub
}

func dialWS(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):] + "/api/realtime/ws?userId=" + userID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) receivedFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame receivedFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestWebSocketRequiresUserID(t *testing.T) {
	server, _ := setupWSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + server.URL[len("http"):] + "/api/realtime/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 400, resp.StatusCode)
	}
}

func TestWebSocketAuthSubscribeDeliver(t *testing.T) {
	server, connHub := setupWSServer(t)
	conn := dialWS(t, server, "u1")

	// Greeting carries the assigned connection id.
	greeting := readFrame(t, conn)
	require.Equal(t, "auth", greeting.Type)

	writeJSON(t, conn, map[string]any{"type": "auth", "token": "tok"})
	authed := readFrame(t, conn)
	require.Equal(t, "auth", authed.Type)
	var authPayload map[string]any
	require.NoError(t, json.Unmarshal(authed.Payload, &authPayload))
	assert.Equal(t, true, authPayload["authenticated"])

	writeJSON(t, conn, map[string]any{
		"type":       "subscribe",
		"eventTypes": []string{"balance_updated"},
	})
	ack := readFrame(t, conn)
	require.Equal(t, "subscribe", ack.Type)

	require.Eventually(t, func() bool {
		return connHub.Metrics().Subscriptions == 1
	}, time.Second, 10*time.Millisecond)

	e := models.NewEvent(models.EventBalanceUpdated, "u1", map[string]any{"balance": 12}, models.PriorityMedium)
	require.NoError(t, connHub.ProcessEvent(context.Background(), e))

	frame := readFrame(t, conn)
	require.Equal(t, "event", frame.Type)
	var delivered models.Event
	require.NoError(t, json.Unmarshal(frame.Payload, &delivered))
	assert.Equal(t, e.ID, delivered.ID)
	assert.Equal(t, models.EventBalanceUpdated, delivered.Type)
}

func TestWebSocketAuthFailure(t *testing.T) {
	server, _ := setupWSServer(t)
	conn := dialWS(t, server, "u1")
	readFrame(t, conn) // greeting

	writeJSON(t, conn, map[string]any{"type": "auth", "token": ""})
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
}

func TestWebSocketSubscribeBeforeAuthRejected(t *testing.T) {
	server, _ := setupWSServer(t)
	conn := dialWS(t, server, "u1")
	readFrame(t, conn) // greeting

	writeJSON(t, conn, map[string]any{
		"type":       "subscribe",
		"eventTypes": []string{"balance_updated"},
	})
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
}

func TestWebSocketPingPong(t *testing.T) {
	server, _ := setupWSServer(t)
	conn := dialWS(t, server, "u1")
	readFrame(t, conn) // greeting

	writeJSON(t, conn, map[string]any{"type": "ping"})
	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame.Type)
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	server, connHub := setupWSServer(t)
	conn := dialWS(t, server, "u1")
	readFrame(t, conn) // greeting

	require.Eventually(t, func() bool {
		return connHub.Metrics().ActiveConnections == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return connHub.Metrics().ActiveConnections == 0
	}, time.Second, 10*time.Millisecond)
}
