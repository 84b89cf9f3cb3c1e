package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnnydxm/bank-realtime/pkg/config"
	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// EventBus accepts domain events and dispatches them to the connection
// hub in priority-ordered batches. Every accepted event is also recorded
// in the queryable history, expired ones included, until age-based GC.
type EventBus struct {
	sink Sink
	cfg  config.BusConfig

	mu      sync.Mutex
	pending []*models.Event
	retried map[string]bool
	paused  bool
	closed  bool
	started bool

	stopCh   chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup

	hist *history
	met  *busMetrics
}

// NewEventBus validates the configuration and builds a bus dispatching
// into the given sink.
func NewEventBus(cfg config.BusConfig, sink Sink) (*EventBus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EventBus{
		sink:    sink,
		cfg:     cfg,
		retried: make(map[string]bool),
		stopCh:  make(chan struct{}),
		hist:    newHistory(cfg.HistoryRetention),
		met:     newBusMetrics(cfg.ThroughputWindow),
	}, nil
}

// Start launches the dispatch and history GC loops.
func (b *EventBus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		slog.Warn("Event bus already started, ignoring duplicate Start call")
		return
	}
	b.started = true
	b.mu.Unlock()

	slog.Info("Starting event bus",
		"dispatch_interval", b.cfg.DispatchInterval,
		"max_batch", b.cfg.MaxBatch)

	b.loopWg.Add(1)
	go b.runDispatcher(ctx)

	b.loopWg.Add(1)
	go b.runCleanup()
}

// Emit places an event on the internal queue. Expired events are
// recorded in history but skipped for delivery; the skip is logged at
// debug. Invalid events are dropped with a warning.
func (b *EventBus) Emit(e *models.Event) {
	if e == nil {
		return
	}
	if !e.Type.Valid() {
		slog.Warn("Dropping event with unknown type", "event_type", e.Type)
		return
	}

	b.hist.record(e)

	if e.Expired(time.Now()) {
		b.met.recordExpired()
		slog.Debug("Skipping expired event", "event_id", e.ID, "event_type", e.Type)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		slog.Debug("Event bus closed, dropping event", "event_id", e.ID)
		return
	}
	b.pending = append(b.pending, e)
	b.mu.Unlock()

	b.met.recordEmitted()
}

// EmitToUser emits a copy of the event addressed to the given user,
// generating a correlation id if absent.
func (b *EventBus) EmitToUser(userID string, e *models.Event) {
	if e == nil {
		return
	}
	cp := *e
	cp.UserID = userID
	if cp.CorrelationID == "" {
		cp.CorrelationID = uuid.New().String()
	}
	b.Emit(&cp)
}

// EmitTransactionEvent emits a transaction lifecycle event. Priority
// defaults to high. Implements the queue's Emitter contract.
func (b *EventBus) EmitTransactionEvent(eventType models.EventType, userID string, data map[string]any, priority models.Priority) {
	e := models.NewEvent(eventType, userID, data, priority)
	e.Metadata.Source = "transaction-queue"
	e.Metadata.Retryable = true
	b.Emit(e)
}

// EmitBalanceUpdate emits a medium-priority balance_updated event.
func (b *EventBus) EmitBalanceUpdate(userID string, data map[string]any) {
	e := models.NewEvent(models.EventBalanceUpdated, userID, data, models.PriorityMedium)
	e.Metadata.Source = "ledger"
	e.Metadata.Retryable = true
	b.Emit(e)
}

// EmitSystemAlert emits a system alert. With no affected users a single
// broadcast event carries the system sentinel; otherwise one event is
// emitted per affected user.
func (b *EventBus) EmitSystemAlert(message, severity string, affectedUsers []string) {
	priority := models.PriorityHigh
	if severity == "critical" {
		priority = models.PriorityCritical
	}
	data := map[string]any{
		"message":  message,
		"severity": severity,
	}

	if len(affectedUsers) == 0 {
		e := models.NewEvent(models.EventSystemAlert, models.SystemUserID, data, priority)
		e.Metadata.Source = "system"
		b.Emit(e)
		return
	}
	for _, userID := range affectedUsers {
		e := models.NewEvent(models.EventSystemAlert, userID, data, priority)
		e.Metadata.Source = "system"
		b.Emit(e)
	}
}

// Query scans the event history; results come back in descending
// timestamp order.
func (b *EventBus) Query(f HistoryFilter) []*models.Event {
	return b.hist.query(f)
}

// Pause suspends the dispatch loop. Emit keeps accepting.
func (b *EventBus) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
	slog.Info("Event bus paused")
}

// Resume re-enables the dispatch loop.
func (b *EventBus) Resume() {
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
	slog.Info("Event bus resumed")
}

// Metrics returns a value snapshot of the bus metrics.
func (b *EventBus) Metrics() MetricsSnapshot {
	snap := b.met.snapshot()

	b.mu.Lock()
	snap.PendingDepth = len(b.pending)
	snap.Paused = b.paused
	b.mu.Unlock()

	snap.HistorySize = b.hist.size()
	snap.HealthScore = busHealthScore(snap)
	return snap
}

// Shutdown stops the loops and waits for in-flight deliveries.
func (b *EventBus) Shutdown(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.stopOnce.Do(func() { close(b.stopCh) })

	done := make(chan struct{})
	go func() {
		b.loopWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Event bus stopped")
	case <-ctx.Done():
		slog.Warn("Event bus shutdown context cancelled before dispatch drained")
	}
}

// runDispatcher drains batches off the pending queue on each tick.
func (b *EventBus) runDispatcher(ctx context.Context) {
	defer b.loopWg.Done()

	ticker := time.NewTicker(b.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dispatchTick(ctx)
		}
	}
}

// dispatchTick drains up to maxBatch events, sorts the batch by
// descending priority score (stable, so FIFO within priority), and
// dispatches in that order. Dispatch runs on the loop goroutine so
// higher-priority events always reach the sink before lower ones and
// arrival order is preserved among events of equal priority; Emit during
// dispatch is accepted without blocking because the pending slice is
// only held briefly.
func (b *EventBus) dispatchTick(ctx context.Context) {
	b.mu.Lock()
	if b.paused || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	n := len(b.pending)
	if n > b.cfg.MaxBatch {
		n = b.cfg.MaxBatch
	}
	batch := make([]*models.Event, n)
	copy(batch, b.pending[:n])
	b.pending = b.pending[n:]
	b.mu.Unlock()

	// May reorder events of differing priority relative to emit order,
	// even for the same user and type; only equal-priority events keep
	// their emit order.
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Metadata.Priority.Score() > batch[j].Metadata.Priority.Score()
	})

	for _, e := range batch {
		b.deliver(ctx, e)
	}
}

// deliver hands one event to the sink. A failed dispatch is retried
// exactly once by re-inserting the event at the front of the pending
// queue, provided it is retryable and unexpired.
func (b *EventBus) deliver(ctx context.Context, e *models.Event) {
	if e.Expired(time.Now()) {
		b.met.recordExpired()
		slog.Debug("Skipping expired event at dispatch", "event_id", e.ID, "event_type", e.Type)
		return
	}

	start := time.Now()
	err := b.sink.ProcessEvent(ctx, e)
	b.met.recordDispatch(e.Type, time.Since(start), err)

	if err == nil {
		b.mu.Lock()
		delete(b.retried, e.ID)
		b.mu.Unlock()
		return
	}

	slog.Warn("Event dispatch failed",
		"event_id", e.ID, "event_type", e.Type, "user_id", e.UserID, "error", err)

	b.mu.Lock()
	defer b.mu.Unlock()
	if e.Metadata.Retryable && !e.Expired(time.Now()) && !b.retried[e.ID] && !b.closed {
		b.retried[e.ID] = true
		b.pending = append([]*models.Event{e}, b.pending...)
		return
	}
	delete(b.retried, e.ID)
}

// runCleanup evicts aged history entries and logs a periodic summary.
func (b *EventBus) runCleanup() {
	defer b.loopWg.Done()

	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			removed := b.hist.gc(time.Now())
			snap := b.Metrics()
			slog.Debug("Event history cleanup",
				"evicted", removed,
				"history_size", snap.HistorySize,
				"pending_depth", snap.PendingDepth,
				"throughput_per_sec", snap.ThroughputPerSec)
		}
	}
}

// busHealthScore grades the bus from its error rate and backlog.
func busHealthScore(snap MetricsSnapshot) float64 {
	score := 100.0

	if snap.TotalDispatched > 0 {
		errorRate := float64(snap.TotalErrors) / float64(snap.TotalDispatched)
		score -= errorRate * 60
	}

	depthPenalty := float64(snap.PendingDepth) / 5
	if depthPenalty > 40 {
		depthPenalty = 40
	}
	score -= depthPenalty

	if score < 0 {
		return 0
	}
	return score
}
