package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.False(t, cfg.Enabled(), "no URL means the store is disabled")
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 15*time.Minute, cfg.ConnMaxIdleTime)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SNAPSHOT_DATABASE_URL", "postgres://localhost:5432/realtime")
	t.Setenv("SNAPSHOT_DB_MAX_OPEN_CONNS", "20")
	t.Setenv("SNAPSHOT_DB_MAX_IDLE_CONNS", "8")
	t.Setenv("SNAPSHOT_DB_CONN_MAX_LIFETIME", "30m")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 8, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("SNAPSHOT_DB_MAX_OPEN_CONNS", "lots")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{MaxOpenConns: 0}
	assert.Error(t, cfg.Validate())

	cfg = Config{MaxOpenConns: 5, MaxIdleConns: -1}
	assert.Error(t, cfg.Validate())

	cfg = Config{MaxOpenConns: 5, MaxIdleConns: 10}
	assert.Error(t, cfg.Validate(), "idle cannot exceed open")

	cfg = Config{MaxOpenConns: 10, MaxIdleConns: 5}
	assert.NoError(t, cfg.Validate())
}

func TestHasEmbeddedMigrations(t *testing.T) {
	ok, err := hasEmbeddedMigrations()
	require.NoError(t, err)
	assert.True(t, ok, "migration files must be embedded in the binary")
}
