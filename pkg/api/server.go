// Package api provides the administrative REST surface and the
// WebSocket transport adapter over the realtime core.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/metrics"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// Server is the HTTP adapter over the core components. The core exposes
// only in-process APIs; everything here is thin translation.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	queue      *queue.TransactionQueue
	bus        *events.EventBus
	hub        *hub.ConnectionHub
}

// NewServer builds the server and registers all routes.
func NewServer(q *queue.TransactionQueue, b *events.EventBus, h *hub.ConnectionHub) *Server {
	s := &Server{
		router: gin.New(),
		queue:  q,
		bus:    b,
		hub:    h,
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	// Liveness and Prometheus exposition.
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	rt := s.router.Group("/api/realtime")
	rt.GET("/health", s.healthHandler)

	rt.POST("/events", s.emitEventHandler)
	rt.POST("/events/transaction", s.emitTransactionEventHandler)
	rt.POST("/events/alert", s.emitAlertHandler)
	rt.GET("/events/history", s.historyHandler)

	rt.GET("/queue", s.queueStatusHandler)
	rt.POST("/queue/pause", s.queuePauseHandler)
	rt.POST("/queue/resume", s.queueResumeHandler)
	rt.GET("/queue/:id", s.getQueueItemHandler)

	rt.GET("/websocket", s.websocketStatusHandler)
	rt.GET("/ws", s.wsHandler)
}

// Start serves HTTP on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
