// Package snapshot provides the optional Postgres snapshot store: a
// hook that periodically persists queue metrics and terminal
// transaction records for post-mortem inspection. The core never
// depends on it; without a configured database URL nothing runs.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/johnnydxm/bank-realtime/pkg/models"
	"github.com/johnnydxm/bank-realtime/pkg/queue"
)

//go:embed migrations
var migrationsFS embed.FS

// Store persists snapshots to Postgres.
type Store struct {
	db *sql.DB
}

// New opens the snapshot database, configures the pool, and applies
// pending migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("snapshot store requires SNAPSHOT_DATABASE_URL")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping snapshot database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run snapshot migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// runMigrations applies the embedded migration files.
func runMigrations(db *sql.DB) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return errors.New("no embedded migration files found")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver; m.Close() would also close the
	// shared *sql.DB through the database driver.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// hasEmbeddedMigrations reports whether the embed carries .sql files.
func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}

// SaveQueueMetrics inserts one metrics snapshot row.
func (s *Store) SaveQueueMetrics(ctx context.Context, snap queue.MetricsSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_metrics_snapshots (
			total_queued, total_completed, total_failed,
			pending_depth, processing_count, dead_letter_count,
			avg_processing_ms, throughput_per_sec, health_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.TotalQueued, snap.TotalCompleted, snap.TotalFailed,
		snap.PendingDepth, snap.ProcessingCount, snap.DeadLetterCount,
		snap.AvgProcessingTimeMs, snap.ThroughputPerSec, snap.HealthScore,
	)
	if err != nil {
		return fmt.Errorf("failed to save queue metrics snapshot: %w", err)
	}
	return nil
}

// SaveTransaction upserts a terminal transaction record.
func (s *Store) SaveTransaction(ctx context.Context, tx *models.QueuedTransaction) error {
	data, err := json.Marshal(tx.TransactionData)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transaction_records (
			id, user_id, status, priority, retry_count, max_retries,
			scheduled_at, processed_at, completed_at, error_message,
			transaction_data, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			processed_at = EXCLUDED.processed_at,
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message,
			recorded_at = now()`,
		tx.ID, tx.UserID, string(tx.Status), string(tx.Priority),
		tx.RetryCount, tx.MaxRetries, tx.ScheduledAt, tx.ProcessedAt,
		tx.CompletedAt, nullableString(tx.ErrorMessage), data,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction record: %w", err)
	}
	return nil
}

// Health pings the database and returns connection pool statistics.
func (s *Store) Health(ctx context.Context) (map[string]any, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return map[string]any{
			"status":         "unhealthy",
			"responseTimeMs": time.Since(start).Milliseconds(),
		}, err
	}
	stats := s.db.Stats()
	return map[string]any{
		"status":          "healthy",
		"responseTimeMs":  time.Since(start).Milliseconds(),
		"openConnections": stats.OpenConnections,
		"inUse":           stats.InUse,
		"idle":            stats.Idle,
	}, nil
}

// Close releases the database pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
