package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Reservation.PendingTTL)
	assert.Equal(t, 5, cfg.Handover.MaxAttempts)
	assert.False(t, cfg.UsesPostgres())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
handover:
  max_attempts: 3
  lockout_duration: 10m
kafka:
  brokers: ["localhost:9092", "localhost:9093"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Handover.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Handover.LockoutDuration)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
	// untouched defaults survive
	assert.Equal(t, 15*time.Minute, cfg.Handover.AttemptWindow)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "handover:\n  max_attempts: 3\n")
	t.Setenv("PETREGISTRY_HANDOVER__MAX_ATTEMPTS", "7")
	t.Setenv("PETREGISTRY_DATABASE__URL", "postgres://localhost/petregistry")
	t.Setenv("PETREGISTRY_RESERVATION__PENDING_TTL", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Handover.MaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.Reservation.PendingTTL)
	assert.True(t, cfg.UsesPostgres())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "handover:\n  max_attempts: 0\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ProdRequiresSigningKey(t *testing.T) {
	path := writeConfig(t, "env: prod\n")
	_, err := Load(path)
	require.Error(t, err)
}
