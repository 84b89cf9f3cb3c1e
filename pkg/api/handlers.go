package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/models"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// defaultHistoryLimit applies when the history query omits limit.
const defaultHistoryLimit = 100

// Composite health weights and grade thresholds.
const (
	queueHealthWeight = 0.4
	busHealthWeight   = 0.3
	hubHealthWeight   = 0.3

	healthyThreshold  = 80.0
	degradedThreshold = 60.0
)

// healthHandler handles GET /api/realtime/health.
func (s *Server) healthHandler(c *gin.Context) {
	queueSnap := s.queue.Metrics()
	busSnap := s.bus.Metrics()
	hubSnap := s.hub.Metrics()

	score := queueHealthWeight*queueSnap.HealthScore +
		busHealthWeight*busSnap.HealthScore +
		hubHealthWeight*hubSnap.HealthScore

	status := "critical"
	switch {
	case score >= healthyThreshold:
		status = "healthy"
	case score >= degradedThreshold:
		status = "degraded"
	}

	c.JSON(http.StatusOK, &HealthResponse{
		Status:      status,
		Score:       score,
		Queue:       queueSnap,
		Events:      busSnap,
		Connections: hubSnap,
	})
}

// emitEventHandler handles POST /api/realtime/events.
func (s *Server) emitEventHandler(c *gin.Context) {
	var req EmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	eventType := models.EventType(req.Type)
	if !eventType.Valid() {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "unknown event type: " + req.Type})
		return
	}
	priority := models.Priority(req.Priority)
	if req.Priority != "" && !priority.Valid() {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "unknown priority: " + req.Priority})
		return
	}

	e := models.NewEvent(eventType, req.UserID, req.Data, priority)
	s.bus.Emit(e)

	c.JSON(http.StatusAccepted, &AcceptedResponse{Status: "accepted", EventID: e.ID})
}

// emitTransactionEventHandler handles POST /api/realtime/events/transaction.
// Only transaction lifecycle types are accepted.
func (s *Server) emitTransactionEventHandler(c *gin.Context) {
	var req EmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	eventType := models.EventType(req.Type)
	if !eventType.IsTransactionEvent() {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "not a transaction event type: " + req.Type})
		return
	}
	priority := models.Priority(req.Priority)
	if req.Priority != "" && !priority.Valid() {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: "unknown priority: " + req.Priority})
		return
	}

	s.bus.EmitTransactionEvent(eventType, req.UserID, req.Data, priority)
	c.JSON(http.StatusAccepted, &AcceptedResponse{Status: "accepted"})
}

// emitAlertHandler handles POST /api/realtime/events/alert.
func (s *Server) emitAlertHandler(c *gin.Context) {
	var req EmitAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	severity := req.Severity
	if severity == "" {
		severity = "info"
	}

	s.bus.EmitSystemAlert(req.Message, severity, req.AffectedUsers)
	c.JSON(http.StatusAccepted, &AcceptedResponse{Status: "accepted"})
}

// queueStatusHandler handles GET /api/realtime/queue.
func (s *Server) queueStatusHandler(c *gin.Context) {
	snap := s.queue.Metrics()
	status := "running"
	if snap.Paused {
		status = "paused"
	}
	c.JSON(http.StatusOK, &QueueStatusResponse{Status: status, Metrics: snap})
}

// queuePauseHandler handles POST /api/realtime/queue/pause.
func (s *Server) queuePauseHandler(c *gin.Context) {
	s.queue.Pause()
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// queueResumeHandler handles POST /api/realtime/queue/resume.
func (s *Server) queueResumeHandler(c *gin.Context) {
	s.queue.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// getQueueItemHandler handles GET /api/realtime/queue/:id.
func (s *Server) getQueueItemHandler(c *gin.Context) {
	tx, err := s.queue.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			c.JSON(http.StatusNotFound, &ErrorResponse{Error: "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// websocketStatusHandler handles GET /api/realtime/websocket.
func (s *Server) websocketStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Metrics())
}

// historyHandler handles GET /api/realtime/events/history.
func (s *Server) historyHandler(c *gin.Context) {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	matched := s.bus.Query(filter)
	c.JSON(http.StatusOK, &HistoryResponse{Count: len(matched), Events: matched})
}

// parseHistoryFilter translates query params into a history filter.
func parseHistoryFilter(c *gin.Context) (events.HistoryFilter, error) {
	filter := events.HistoryFilter{
		Source: c.Query("source"),
		Tags:   splitParam(c.Query("tags")),
		Limit:  defaultHistoryLimit,
	}

	for _, raw := range splitParam(c.Query("eventTypes")) {
		t := models.EventType(raw)
		if !t.Valid() {
			return filter, errors.New("unknown event type: " + raw)
		}
		filter.EventTypes = append(filter.EventTypes, t)
	}
	filter.UserIDs = splitParam(c.Query("userIds"))
	for _, raw := range splitParam(c.Query("priorities")) {
		p := models.Priority(raw)
		if !p.Valid() {
			return filter, errors.New("unknown priority: " + raw)
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	if raw := c.Query("startTime"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid startTime: " + raw)
		}
		filter.StartTime = &t
	}
	if raw := c.Query("endTime"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid endTime: " + raw)
		}
		filter.EndTime = &t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, errors.New("invalid limit: " + raw)
		}
		filter.Limit = n
	}
	return filter, nil
}

// splitParam splits a comma-separated query value, dropping empties.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
