package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnnydxm/bank-realtime/pkg/config"
	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/models"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// testServer wires a server over unstarted core components; handlers do
// not need the background loops.
func testServer(t *testing.T) (*Server, *queue.TransactionQueue, *events.EventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	connHub, err := hub.NewConnectionHub(config.DefaultHubConfig(), nil)
	require.NoError(t, err)
	bus, err := events.NewEventBus(config.DefaultBusConfig(), connHub)
	require.NoError(t, err)
	q, err := queue.NewTransactionQueue(config.DefaultQueueConfig(), bus)
	require.NoError(t, err)

	return NewServer(q, bus, connHub), q, bus
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := testServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/realtime/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.InDelta(t, 100, resp.Score, 0.01)
}

func TestLivenessEndpoint(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "realtime_queue_pending_depth")
}

func TestEmitEvent(t *testing.T) {
	s, _, bus := testServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/realtime/events",
		`{"type":"balance_updated","userId":"u1","data":{"balance":10},"priority":"medium"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.EventID)

	matched := bus.Query(events.HistoryFilter{UserIDs: []string{"u1"}})
	require.Len(t, matched, 1)
	assert.Equal(t, models.PriorityMedium, matched[0].Metadata.Priority)
}

func TestEmitEventValidation(t *testing.T) {
	s, _, _ := testServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/realtime/events",
		`{"type":"made_up_type","userId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/realtime/events",
		`{"type":"balance_updated"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "userId is required")

	w = doRequest(t, s, http.MethodPost, "/api/realtime/events",
		`{"type":"balance_updated","userId":"u1","priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown priority")
}

func TestEmitTransactionEventTypeRestriction(t *testing.T) {
	s, _, _ := testServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/realtime/events/transaction",
		`{"type":"balance_updated","userId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/realtime/events/transaction",
		`{"type":"transaction_created","userId":"u1","data":{"transactionId":"t1"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestEmitAlert(t *testing.T) {
	s, _, bus := testServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/realtime/events/alert",
		`{"message":"maintenance tonight"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	matched := bus.Query(events.HistoryFilter{EventTypes: []models.EventType{models.EventSystemAlert}})
	require.Len(t, matched, 1)
	assert.Equal(t, models.SystemUserID, matched[0].UserID)

	w = doRequest(t, s, http.MethodPost, "/api/realtime/events/alert", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "message is required")
}

func TestQueueStatusPauseResume(t *testing.T) {
	s, _, _ := testServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/realtime/queue", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status QueueStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)

	w = doRequest(t, s, http.MethodPost, "/api/realtime/queue/pause", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/queue", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "paused", status.Status)

	w = doRequest(t, s, http.MethodPost, "/api/realtime/queue/resume", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/queue", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
}

func TestGetQueueItem(t *testing.T) {
	s, q, _ := testServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/realtime/queue/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	tx := models.NewQueuedTransaction("tx-api", "u1", nil, models.PriorityHigh)
	require.NoError(t, q.Enqueue(tx))

	w = doRequest(t, s, http.MethodGet, "/api/realtime/queue/tx-api", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.QueuedTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "tx-api", got.ID)
	assert.Equal(t, models.TransactionPending, got.Status)
}

func TestWebsocketStatus(t *testing.T) {
	s, _, _ := testServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/realtime/websocket", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap hub.MetricsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Zero(t, snap.ActiveConnections)
}

func TestHistoryEndpoint(t *testing.T) {
	s, _, bus := testServer(t)

	bus.EmitBalanceUpdate("u1", map[string]any{"balance": 1})
	bus.EmitBalanceUpdate("u2", map[string]any{"balance": 2})
	bus.EmitTransactionEvent(models.EventTransactionCompleted, "u1", nil, models.PriorityHigh)

	w := doRequest(t, s, http.MethodGet, "/api/realtime/events/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/events/history?eventTypes=balance_updated&userIds=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/events/history?limit=2", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHistoryEndpointValidation(t *testing.T) {
	s, _, _ := testServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/realtime/events/history?eventTypes=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/events/history?priorities=urgent", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/events/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/realtime/events/history?startTime=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
