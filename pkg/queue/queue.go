package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/config"
	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// retryEntry tracks a transaction waiting out its backoff delay.
type retryEntry struct {
	timer *time.Timer
	tx    *models.QueuedTransaction
}

// TransactionQueue schedules transactions across a bounded pool of
// concurrent processing tasks. It owns four partitions (pending,
// processing, completed, dead-letter) guarded by a single mutex; the
// dispatcher loop and maintenance loops are goroutines selecting on a
// ticker and the stop channel.
type TransactionQueue struct {
	emitter Emitter

	mu           sync.RWMutex
	cfg          config.QueueConfig
	pending      *pendingQueue
	processing   map[string]*models.QueuedTransaction
	completed    map[string]*models.QueuedTransaction
	deadLetter   map[string]*models.QueuedTransaction
	retryWaiting map[string]*retryEntry
	processors   []Processor
	seq          uint64
	paused       bool
	shuttingDown bool
	started      bool

	stopCh   chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup
	taskWg   sync.WaitGroup

	// taskCtx parents every processing task. It is deliberately NOT
	// derived from the dispatcher context: cancelling that context (the
	// shutdown signal) must stop scheduling new work, not abort work
	// already in flight. Shutdown cancels taskCtx only once the drain
	// grace period has elapsed or its own context is done, whichever
	// comes first.
	taskCtx    context.Context
	taskCancel context.CancelFunc

	metrics *queueMetrics
}

// NewTransactionQueue validates the configuration and builds a queue.
// The emitter may be nil (lifecycle events disabled).
func NewTransactionQueue(cfg config.QueueConfig, emitter Emitter) (*TransactionQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	taskCtx, taskCancel := context.WithCancel(context.Background())
	return &TransactionQueue{
		emitter:      emitter,
		cfg:          cfg,
		pending:      newPendingQueue(),
		processing:   make(map[string]*models.QueuedTransaction),
		completed:    make(map[string]*models.QueuedTransaction),
		deadLetter:   make(map[string]*models.QueuedTransaction),
		retryWaiting: make(map[string]*retryEntry),
		stopCh:       make(chan struct{}),
		taskCtx:      taskCtx,
		taskCancel:   taskCancel,
		metrics:      newQueueMetrics(),
	}, nil
}

// Start launches the dispatcher and cleanup loops. Safe to call once;
// subsequent calls are no-ops.
func (q *TransactionQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		slog.Warn("Transaction queue already started, ignoring duplicate Start call")
		return
	}
	q.started = true
	dispatchEvery := q.cfg.DispatchInterval
	cleanupEvery := q.cfg.CleanupInterval
	q.mu.Unlock()

	slog.Info("Starting transaction queue",
		"max_concurrent", q.cfg.MaxConcurrentProcessing,
		"batch_size", q.cfg.BatchSize,
		"dispatch_interval", dispatchEvery)

	q.loopWg.Add(1)
	go q.runDispatcher(ctx, dispatchEvery)

	if cleanupEvery > 0 {
		q.loopWg.Add(1)
		go q.runCleanup(cleanupEvery)
	}
}

// Enqueue admits a pending transaction to the scheduler. The call is
// non-blocking; the eventual outcome is observable via lifecycle events
// or Get.
func (q *TransactionQueue) Enqueue(tx *models.QueuedTransaction) error {
	if err := validateItem(tx); err != nil {
		return err
	}

	q.mu.Lock()
	if q.shuttingDown {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	tx.Status = models.TransactionPending
	if tx.ScheduledAt.IsZero() {
		tx.ScheduledAt = time.Now()
	}
	q.seq++
	q.pending.add(tx, q.seq)
	data := lifecycleData(tx)
	q.mu.Unlock()

	q.metrics.recordQueued()
	q.emitLifecycle(models.EventTransactionCreated, tx.UserID, tx.Priority, data)
	return nil
}

// validateItem checks required fields and priority range.
func validateItem(tx *models.QueuedTransaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	if tx.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if tx.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidItem)
	}
	if !tx.Priority.Valid() {
		return fmt.Errorf("%w: priority %q out of range", ErrInvalidItem, tx.Priority)
	}
	if tx.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must be >= 0", ErrInvalidItem)
	}
	return nil
}

// Cancel removes a pending transaction (including one waiting out a
// retry delay). Processing items are not cancellable; returns false for
// them and for unknown ids.
func (q *TransactionQueue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry, ok := q.retryWaiting[id]; ok {
		entry.timer.Stop()
		delete(q.retryWaiting, id)
		q.finalizeCancelLocked(entry.tx)
		return true
	}

	tx := q.pending.remove(id)
	if tx == nil {
		return false
	}
	q.finalizeCancelLocked(tx)
	return true
}

func (q *TransactionQueue) finalizeCancelLocked(tx *models.QueuedTransaction) {
	now := time.Now()
	tx.Status = models.TransactionCancelled
	tx.CompletedAt = &now
	q.completed[tx.ID] = tx
}

// Get returns an immutable snapshot of the transaction from whichever
// partition holds it, or ErrNotFound.
func (q *TransactionQueue) Get(id string) (*models.QueuedTransaction, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if tx := q.pending.get(id); tx != nil {
		return tx.Clone(), nil
	}
	if entry, ok := q.retryWaiting[id]; ok {
		return entry.tx.Clone(), nil
	}
	if tx, ok := q.processing[id]; ok {
		return tx.Clone(), nil
	}
	if tx, ok := q.completed[id]; ok {
		return tx.Clone(), nil
	}
	if tx, ok := q.deadLetter[id]; ok {
		return tx.Clone(), nil
	}
	return nil, ErrNotFound
}

// TerminalTransactions returns snapshots of every record in the
// completed (including cancelled) and dead-letter partitions. Used by
// the snapshot store to persist terminal outcomes.
func (q *TransactionQueue) TerminalTransactions() []*models.QueuedTransaction {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*models.QueuedTransaction, 0, len(q.completed)+len(q.deadLetter))
	for _, tx := range q.completed {
		out = append(out, tx.Clone())
	}
	for _, tx := range q.deadLetter {
		out = append(out, tx.Clone())
	}
	return out
}

// Pause stops the dispatch loop from claiming new work. In-flight
// processing continues to completion.
func (q *TransactionQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	slog.Info("Transaction queue paused")
}

// Resume re-enables the dispatch loop.
func (q *TransactionQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	slog.Info("Transaction queue resumed")
}

// Paused reports whether dispatching is suspended.
func (q *TransactionQueue) Paused() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.paused
}

// RegisterProcessor appends a processor to the invocation list.
func (q *TransactionQueue) RegisterProcessor(p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processors = append(q.processors, p)
}

// UnregisterProcessor removes a previously registered processor.
func (q *TransactionQueue) UnregisterProcessor(p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.processors[:0]
	for _, registered := range q.processors {
		if !sameProcessor(registered, p) {
			kept = append(kept, registered)
		}
	}
	q.processors = kept
}

// sameProcessor compares processor identity. Function-typed processors
// compare by code pointer; other kinds by interface equality.
func sameProcessor(a, b Processor) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func || vb.Kind() == reflect.Func {
		return va.Kind() == vb.Kind() && va.Pointer() == vb.Pointer()
	}
	return a == b
}

// Metrics returns a value snapshot of counters, rates, and partition
// depths.
func (q *TransactionQueue) Metrics() MetricsSnapshot {
	snap := q.metrics.snapshot()

	q.mu.RLock()
	snap.PendingDepth = q.pending.Len() + len(q.retryWaiting)
	snap.ProcessingCount = len(q.processing)
	snap.CompletedCount = len(q.completed)
	snap.DeadLetterCount = len(q.deadLetter)
	snap.Paused = q.paused
	q.mu.RUnlock()

	snap.HealthScore = healthScore(snap)
	return snap
}

// UpdateConfiguration validates and swaps the queue configuration.
// Loop intervals keep their original cadence; scheduling limits apply
// from the next tick.
func (q *TransactionQueue) UpdateConfiguration(cfg config.QueueConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	q.cfg = cfg
	q.mu.Unlock()
	return nil
}

// Shutdown stops accepting enqueues, halts the loops, and waits up to
// the drain grace period for in-flight tasks. Remaining items stay in
// the processing partition for post-mortem inspection.
func (q *TransactionQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	q.shuttingDown = true
	grace := q.cfg.DrainGracePeriod
	for id, entry := range q.retryWaiting {
		entry.timer.Stop()
		delete(q.retryWaiting, id)
	}
	inFlight := len(q.processing)
	q.mu.Unlock()

	q.stopOnce.Do(func() { close(q.stopCh) })
	q.loopWg.Wait()

	if inFlight > 0 {
		slog.Info("Waiting for in-flight transactions to drain", "count", inFlight)
	}

	done := make(chan struct{})
	go func() {
		q.taskWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Transaction queue stopped gracefully")
	case <-time.After(grace):
		slog.Warn("Drain grace period elapsed with transactions still processing",
			"remaining", q.Metrics().ProcessingCount)
	case <-ctx.Done():
		slog.Warn("Shutdown context cancelled before drain completed")
	}

	// Release stragglers only after the drain window (or the shutdown
	// context) has run out; cancellation-aware
	// processors may stop early, everything else stays in processing for
	// post-mortem inspection.
	q.taskCancel()
}

// runDispatcher is the scheduling loop.
func (q *TransactionQueue) runDispatcher(ctx context.Context, every time.Duration) {
	defer q.loopWg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.dispatchTick()
		}
	}
}

// dispatchTick claims up to batchSize pending items within the free
// concurrency slots and launches a processing task per item. The
// dispatcher proceeds to the next tick while tasks are still running;
// the slot computation keeps |processing| bounded.
func (q *TransactionQueue) dispatchTick() {
	q.mu.Lock()
	if q.paused || q.shuttingDown {
		q.mu.Unlock()
		return
	}
	slots := q.cfg.MaxConcurrentProcessing - len(q.processing)
	if slots <= 0 {
		q.mu.Unlock()
		return
	}
	n := slots
	if q.cfg.BatchSize < n {
		n = q.cfg.BatchSize
	}
	timeout := q.cfg.ProcessingTimeout

	type claimed struct {
		tx   *models.QueuedTransaction
		data map[string]any
	}
	batch := make([]claimed, 0, n)
	for len(batch) < n {
		tx := q.pending.popNext()
		if tx == nil {
			break
		}
		now := time.Now()
		tx.Status = models.TransactionProcessing
		tx.ProcessedAt = &now
		q.processing[tx.ID] = tx
		batch = append(batch, claimed{tx: tx, data: lifecycleData(tx)})
	}
	q.mu.Unlock()

	for _, c := range batch {
		q.metrics.recordStarted()
		q.emitLifecycle(models.EventTransactionProcessing, c.tx.UserID, c.tx.Priority, c.data)
		q.taskWg.Add(1)
		go q.process(c.tx, timeout)
	}
}

// process runs the registered processors for one transaction, raced
// against the processing timeout. A timed-out processor keeps running in
// the background; its eventual outcome is ignored, which is why
// processors must be idempotent. The task context descends from the
// queue-owned taskCtx, so shutdown lets in-flight work complete
// naturally within the grace window instead of aborting it.
func (q *TransactionQueue) process(tx *models.QueuedTransaction, timeout time.Duration) {
	defer q.taskWg.Done()

	start := time.Now()
	procCtx, cancel := context.WithTimeout(q.taskCtx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- q.runProcessors(procCtx, tx)
	}()

	var procErr error
	select {
	case err := <-done:
		procErr = err
	case <-procCtx.Done():
		if !errors.Is(procCtx.Err(), context.DeadlineExceeded) {
			// Only shutdown cancels taskCtx, and only after the drain
			// grace period or the shutdown context has run out. Leave
			// the item in the processing partition
			// for post-mortem inspection.
			return
		}
		procErr = errors.New("processing timeout")
	}

	elapsed := time.Since(start)
	if procErr == nil {
		q.complete(tx, elapsed)
	} else {
		q.fail(tx, procErr, elapsed)
	}
}

// runProcessors invokes every registered processor sequentially; the
// first error aborts the remainder.
func (q *TransactionQueue) runProcessors(ctx context.Context, tx *models.QueuedTransaction) error {
	q.mu.RLock()
	procs := make([]Processor, len(q.processors))
	copy(procs, q.processors)
	q.mu.RUnlock()

	for _, p := range procs {
		if err := p.Process(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// complete moves a transaction to the completed partition.
func (q *TransactionQueue) complete(tx *models.QueuedTransaction, elapsed time.Duration) {
	q.mu.Lock()
	delete(q.processing, tx.ID)
	now := time.Now()
	tx.Status = models.TransactionCompleted
	tx.CompletedAt = &now
	tx.ErrorMessage = ""
	q.completed[tx.ID] = tx
	data := lifecycleData(tx)
	q.mu.Unlock()

	q.metrics.recordCompleted(elapsed)
	q.emitLifecycle(models.EventTransactionCompleted, tx.UserID, tx.Priority, data)
	slog.Debug("Transaction completed",
		"transaction_id", tx.ID, "user_id", tx.UserID, "elapsed", elapsed)
}

// fail applies the retry policy: re-admit after an exponential backoff
// delay while the retry budget lasts, otherwise dead-letter.
func (q *TransactionQueue) fail(tx *models.QueuedTransaction, procErr error, elapsed time.Duration) {
	q.metrics.recordFailed(elapsed)

	q.mu.Lock()
	delete(q.processing, tx.ID)
	tx.ErrorMessage = procErr.Error()

	if tx.RetryCount < tx.MaxRetries {
		delay := backoffDelay(q.cfg.RetryDelay, q.cfg.MaxRetryDelay, tx.RetryCount)
		tx.RetryCount++
		tx.Status = models.TransactionPending
		tx.ScheduledAt = time.Now().Add(delay)
		data := lifecycleData(tx)

		if q.shuttingDown {
			// No timers after shutdown began; park the item in pending
			// for post-mortem inspection.
			q.seq++
			q.pending.add(tx, q.seq)
		} else {
			id := tx.ID
			entry := &retryEntry{tx: tx}
			entry.timer = time.AfterFunc(delay, func() { q.readmit(id) })
			q.retryWaiting[id] = entry
		}
		q.mu.Unlock()

		q.emitLifecycle(models.EventTransactionFailed, tx.UserID, tx.Priority, data)
		slog.Warn("Transaction failed, retrying",
			"transaction_id", tx.ID,
			"retry_count", tx.RetryCount,
			"max_retries", tx.MaxRetries,
			"delay", delay,
			"error", procErr)
		return
	}

	tx.Status = models.TransactionFailed
	q.deadLetter[tx.ID] = tx
	data := lifecycleData(tx)
	q.mu.Unlock()

	q.emitLifecycle(models.EventTransactionFailed, tx.UserID, tx.Priority, data)
	slog.Error("Transaction exhausted retries, moved to dead-letter",
		"transaction_id", tx.ID,
		"retry_count", tx.RetryCount,
		"error", procErr)
}

// readmit returns a retried transaction to the pending partition. All
// pending mutations go through the queue's own lock; the timer callback
// only calls this owner method.
func (q *TransactionQueue) readmit(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.retryWaiting[id]
	if !ok {
		return
	}
	delete(q.retryWaiting, id)
	if q.shuttingDown {
		return
	}
	q.seq++
	q.pending.add(entry.tx, q.seq)
}

// backoffDelay computes min(base · 2^retryCount, max).
func backoffDelay(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// runCleanup evicts completed records past the retention window.
func (q *TransactionQueue) runCleanup(every time.Duration) {
	defer q.loopWg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.cleanupCompleted()
		}
	}
}

func (q *TransactionQueue) cleanupCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-q.cfg.CompletedRetention)
	removed := 0
	for id, tx := range q.completed {
		if tx.CompletedAt != nil && tx.CompletedAt.Before(cutoff) {
			delete(q.completed, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Evicted aged completed transactions", "count", removed)
	}
}

// lifecycleData builds the event payload for a transaction. Must be
// called with the queue lock held (or before the item is shared).
func lifecycleData(tx *models.QueuedTransaction) map[string]any {
	data := map[string]any{
		"transactionId": tx.ID,
		"status":        string(tx.Status),
		"priority":      string(tx.Priority),
		"retryCount":    tx.RetryCount,
	}
	if tx.ErrorMessage != "" {
		data["errorMessage"] = tx.ErrorMessage
	}
	return data
}

// emitLifecycle forwards a lifecycle event to the emitter, if any.
func (q *TransactionQueue) emitLifecycle(eventType models.EventType, userID string, priority models.Priority, data map[string]any) {
	if q.emitter == nil {
		return
	}
	q.emitter.EmitTransactionEvent(eventType, userID, data, priority)
}
