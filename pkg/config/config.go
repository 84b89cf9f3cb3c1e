// Package config holds the programmatic configuration of the realtime
// core components and the environment loading used by the adapter.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned (wrapped) when a configuration fails
// validation on construction or update.
var ErrInvalidConfig = errors.New("invalid configuration")

// QueueConfig controls the transaction queue.
type QueueConfig struct {
	// MaxConcurrentProcessing caps transactions in processing at any instant.
	MaxConcurrentProcessing int
	// BatchSize caps how many pending items one dispatch tick may claim.
	BatchSize int
	// DispatchInterval is the dispatcher tick.
	DispatchInterval time.Duration
	// ProcessingTimeout bounds a single processing task.
	ProcessingTimeout time.Duration
	// RetryDelay is the base backoff delay; doubles per retry.
	RetryDelay time.Duration
	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay time.Duration
	// CompletedRetention bounds how long completed records are kept.
	CompletedRetention time.Duration
	// CleanupInterval is the completed-partition GC tick.
	CleanupInterval time.Duration
	// DrainGracePeriod bounds how long Shutdown waits for in-flight work.
	DrainGracePeriod time.Duration
}

// DefaultQueueConfig returns the production defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrentProcessing: 10,
		BatchSize:               5,
		DispatchInterval:        100 * time.Millisecond,
		ProcessingTimeout:       30 * time.Second,
		RetryDelay:              time.Second,
		MaxRetryDelay:           30 * time.Second,
		CompletedRetention:      24 * time.Hour,
		CleanupInterval:         5 * time.Minute,
		DrainGracePeriod:        10 * time.Second,
	}
}

// Validate checks the queue configuration invariants.
func (c QueueConfig) Validate() error {
	if c.MaxConcurrentProcessing < 1 {
		return fmt.Errorf("%w: maxConcurrentProcessing must be >= 1, got %d", ErrInvalidConfig, c.MaxConcurrentProcessing)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batchSize must be >= 1, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retryDelay must be >= 0, got %v", ErrInvalidConfig, c.RetryDelay)
	}
	if c.MaxRetryDelay < c.RetryDelay {
		return fmt.Errorf("%w: maxRetryDelay %v must be >= retryDelay %v", ErrInvalidConfig, c.MaxRetryDelay, c.RetryDelay)
	}
	if c.ProcessingTimeout < time.Second {
		return fmt.Errorf("%w: processingTimeout must be >= 1s, got %v", ErrInvalidConfig, c.ProcessingTimeout)
	}
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("%w: dispatchInterval must be > 0, got %v", ErrInvalidConfig, c.DispatchInterval)
	}
	return nil
}

// BusConfig controls the event bus.
type BusConfig struct {
	// DispatchInterval is the dispatch loop tick.
	DispatchInterval time.Duration
	// MaxBatch caps how many events one tick drains.
	MaxBatch int
	// HistoryRetention bounds how long events stay queryable.
	HistoryRetention time.Duration
	// CleanupInterval is the history GC tick.
	CleanupInterval time.Duration
	// ThroughputWindow is the rolling window for the throughput metric.
	ThroughputWindow time.Duration
}

// DefaultBusConfig returns the production defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		DispatchInterval: 50 * time.Millisecond,
		MaxBatch:         10,
		HistoryRetention: 24 * time.Hour,
		CleanupInterval:  5 * time.Minute,
		ThroughputWindow: 30 * time.Second,
	}
}

// Validate checks the bus configuration invariants.
func (c BusConfig) Validate() error {
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("%w: dispatchInterval must be > 0, got %v", ErrInvalidConfig, c.DispatchInterval)
	}
	if c.MaxBatch < 1 {
		return fmt.Errorf("%w: maxBatch must be >= 1, got %d", ErrInvalidConfig, c.MaxBatch)
	}
	if c.HistoryRetention <= 0 {
		return fmt.Errorf("%w: historyRetention must be > 0, got %v", ErrInvalidConfig, c.HistoryRetention)
	}
	return nil
}

// HubConfig controls the connection hub.
type HubConfig struct {
	// HeartbeatInterval is the ping broadcast tick.
	HeartbeatInterval time.Duration
	// LivenessTimeout bounds last-ping age for delivery eligibility.
	LivenessTimeout time.Duration
	// ReapInterval is the stale-connection sweep tick.
	ReapInterval time.Duration
	// ReapAfter is the last-ping age past which the reaper removes a
	// connection. Exactly at the threshold still counts as alive.
	ReapAfter time.Duration
	// BufferCapacity caps buffered events per offline user; overflow
	// drops from the head, preserving the newest.
	BufferCapacity int
	// BufferTTL bounds the age of buffered events.
	BufferTTL time.Duration
	// BufferCleanInterval is the offline-buffer sweep tick.
	BufferCleanInterval time.Duration
	// StaleSubscriptionAfter is the inactivity threshold for subscriptions.
	StaleSubscriptionAfter time.Duration
	// WriteTimeout bounds a single transport send.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns the production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		HeartbeatInterval:      30 * time.Second,
		LivenessTimeout:        30 * time.Second,
		ReapInterval:           5 * time.Minute,
		ReapAfter:              60 * time.Second,
		BufferCapacity:         100,
		BufferTTL:              24 * time.Hour,
		BufferCleanInterval:    5 * time.Minute,
		StaleSubscriptionAfter: time.Hour,
		WriteTimeout:           10 * time.Second,
	}
}

// Validate checks the hub configuration invariants.
func (c HubConfig) Validate() error {
	if c.BufferCapacity < 1 {
		return fmt.Errorf("%w: bufferCapacity must be >= 1, got %d", ErrInvalidConfig, c.BufferCapacity)
	}
	if c.LivenessTimeout <= 0 {
		return fmt.Errorf("%w: livenessTimeout must be > 0, got %v", ErrInvalidConfig, c.LivenessTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: writeTimeout must be > 0, got %v", ErrInvalidConfig, c.WriteTimeout)
	}
	return nil
}
