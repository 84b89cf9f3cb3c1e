package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/models"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

// Snapshotter periodically persists queue metrics snapshots and the
// terminal (completed, cancelled, dead-letter) transaction records. It
// is the wiring between the in-memory core and the optional store;
// failures are logged and never affect the core.
type Snapshotter struct {
	store    *Store
	queue    *queue.TransactionQueue
	interval time.Duration
	stopCh   chan struct{}

	// saved tracks the last persisted status per transaction id so
	// unchanged records are not rewritten every tick. Accessed only
	// from the snapshot loop goroutine.
	saved map[string]models.TransactionStatus
}

// NewSnapshotter builds a snapshotter with the given sampling interval.
func NewSnapshotter(store *Store, q *queue.TransactionQueue, interval time.Duration) *Snapshotter {
	return &Snapshotter{
		store:    store,
		queue:    q,
		interval: interval,
		stopCh:   make(chan struct{}),
		saved:    make(map[string]models.TransactionStatus),
	}
}

// Start begins periodic snapshotting.
func (s *Snapshotter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.snapshotOnce(ctx)
			}
		}
	}()
}

// Stop halts snapshotting.
func (s *Snapshotter) Stop() {
	close(s.stopCh)
}

func (s *Snapshotter) snapshotOnce(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.store.SaveQueueMetrics(saveCtx, s.queue.Metrics()); err != nil {
		slog.Warn("Failed to persist queue metrics snapshot", "error", err)
	}

	s.saveTerminalTransactions(saveCtx)
}

// saveTerminalTransactions upserts terminal records that changed since
// the last tick and drops bookkeeping for records the queue's retention
// GC has already evicted.
func (s *Snapshotter) saveTerminalTransactions(ctx context.Context) {
	terminal := s.queue.TerminalTransactions()
	current := make(map[string]models.TransactionStatus, len(terminal))

	for _, tx := range terminal {
		current[tx.ID] = tx.Status
		if s.saved[tx.ID] == tx.Status {
			continue
		}
		if err := s.store.SaveTransaction(ctx, tx); err != nil {
			slog.Warn("Failed to persist transaction record",
				"transaction_id", tx.ID, "status", tx.Status, "error", err)
			continue
		}
		s.saved[tx.ID] = tx.Status
	}

	for id := range s.saved {
		if _, ok := current[id]; !ok {
			delete(s.saved, id)
		}
	}
}
