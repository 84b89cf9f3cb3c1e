package config

import (
	"fmt"
	"os"
	"time"
)

// ServerConfig is the adapter-level configuration consumed from the
// environment. The core components are configured programmatically; only
// the HTTP surface and optional snapshot store read env vars.
type ServerConfig struct {
	Port     string
	GinMode  string
	LogLevel string

	// SnapshotDatabaseURL enables the optional Postgres snapshot store
	// when non-empty.
	SnapshotDatabaseURL string
	SnapshotInterval    time.Duration
}

// LoadServerConfigFromEnv reads the adapter configuration with defaults.
func LoadServerConfigFromEnv() (ServerConfig, error) {
	interval, err := time.ParseDuration(getEnvOrDefault("SNAPSHOT_INTERVAL", "1m"))
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid SNAPSHOT_INTERVAL: %w", err)
	}

	return ServerConfig{
		Port:                getEnvOrDefault("PORT", "8080"),
		GinMode:             getEnvOrDefault("GIN_MODE", "release"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		SnapshotDatabaseURL: os.Getenv("SNAPSHOT_DATABASE_URL"),
		SnapshotInterval:    interval,
	}, nil
}

// getEnvOrDefault returns the env value or a fallback.
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
