// Realtime core server - transaction queue, event bus, and WebSocket
// connection hub behind an administrative HTTP surface.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/johnnydxm/bank-realtime/pkg/api"
	"github.com/johnnydxm/bank-realtime/pkg/config"
	"github.com/johnnydxm/bank-realtime/pkg/events"
	"github.com/johnnydxm/bank-realtime/pkg/hub"
	"github.com/johnnydxm/bank-realtime/pkg/metrics"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
	"github.com/johnnydxm/bank-realtime/pkg/snapshot"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	srvCfg, err := config.LoadServerConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	setupLogging(srvCfg.LogLevel)
	gin.SetMode(srvCfg.GinMode)

	slog.Info("Starting realtime core", "port", srvCfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core wiring: hub ← bus ← queue.
	connHub, err := hub.NewConnectionHub(config.DefaultHubConfig(), nil)
	if err != nil {
		log.Fatalf("Failed to create connection hub: %v", err)
	}
	bus, err := events.NewEventBus(config.DefaultBusConfig(), connHub)
	if err != nil {
		log.Fatalf("Failed to create event bus: %v", err)
	}
	txQueue, err := queue.NewTransactionQueue(config.DefaultQueueConfig(), bus)
	if err != nil {
		log.Fatalf("Failed to create transaction queue: %v", err)
	}

	connHub.Start(ctx)
	bus.Start(ctx)
	txQueue.Start(ctx)
	slog.Info("Core components started")

	// Processors (ledger posting, fraud checks, ...) are registered by
	// the embedding application via txQueue.RegisterProcessor.

	collector := metrics.NewCollector(txQueue, bus, connHub)
	collector.Start()

	// Optional snapshot store.
	var (
		store       *snapshot.Store
		snapshotter *snapshot.Snapshotter
	)
	snapCfg, err := snapshot.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load snapshot configuration: %v", err)
	}
	if snapCfg.Enabled() {
		store, err = snapshot.New(ctx, snapCfg)
		if err != nil {
			log.Fatalf("Failed to initialize snapshot store: %v", err)
		}
		snapshotter = snapshot.NewSnapshotter(store, txQueue, srvCfg.SnapshotInterval)
		snapshotter.Start(ctx)
		slog.Info("Snapshot store enabled", "interval", srvCfg.SnapshotInterval)
	}

	server := api.NewServer(txQueue, bus, connHub)
	go func() {
		if err := server.Start(":" + srvCfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	slog.Info("HTTP server listening", "addr", ":"+srvCfg.Port)

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	txQueue.Shutdown(shutdownCtx)
	bus.Shutdown(shutdownCtx)
	connHub.Shutdown(shutdownCtx)
	collector.Stop()
	if snapshotter != nil {
		snapshotter.Stop()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			slog.Error("Snapshot store close failed", "error", err)
		}
	}

	slog.Info("Realtime core stopped")
}

// setupLogging configures the default slog logger from LOG_LEVEL.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
