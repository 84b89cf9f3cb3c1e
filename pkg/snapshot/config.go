package snapshot

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the snapshot database configuration.
type Config struct {
	// URL is the Postgres connection string. Empty disables the store.
	URL string

	// Connection pool settings.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads the snapshot store configuration with
// production-ready pool defaults.
func LoadConfigFromEnv() (Config, error) {
	maxOpen, err := parseIntEnv("SNAPSHOT_DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	maxIdle, err := parseIntEnv("SNAPSHOT_DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return Config{}, err
	}
	maxLifetime, err := parseDurationEnv("SNAPSHOT_DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return Config{}, err
	}
	maxIdleTime, err := parseDurationEnv("SNAPSHOT_DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URL:             os.Getenv("SNAPSHOT_DATABASE_URL"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the pool settings.
func (c Config) Validate() error {
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("SNAPSHOT_DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("SNAPSHOT_DB_MAX_IDLE_CONNS cannot be negative")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("SNAPSHOT_DB_MAX_IDLE_CONNS (%d) cannot exceed SNAPSHOT_DB_MAX_OPEN_CONNS (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Enabled reports whether a database URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
