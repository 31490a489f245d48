package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	path := writeConfig(t, `
environment: test
auth:
  jwt_secret: a-very-long-test-secret
database:
  driver: sqlite
  dsn: "file::memory:?cache=shared"
queue:
  backend: badger
  badger_path: /tmp/q
server:
  read_timeout: 3s
`)
	t.Setenv("TEAMMATCH_SERVER_PORT", "9191")
	t.Setenv("TEAMMATCH_MATCHMAKING_WORKERS", "2")

	cfg, err := Load(zaptest.NewLogger(t), path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2, cfg.Matchmaking.Workers)
	assert.Equal(t, "badger", cfg.Queue.Backend)
	assert.Equal(t, "match_queue", cfg.Queue.KeyPrefix)
	assert.True(t, cfg.Notifications.HasTransport("websocket"))
	assert.False(t, cfg.Notifications.HasTransport("kafka"))
	assert.Equal(t, 10*time.Minute, cfg.Notifications.ReplayTTL)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "host=localhost"
`)
	_, err := Load(zaptest.NewLogger(t), path)
	assert.Error(t, err)
}

func TestLoadRejectsKafkaSignalsOverBadger(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: a-very-long-test-secret
database:
  dsn: "host=localhost"
queue:
  backend: badger
matchmaking:
  signal_transport: kafka
`)
	_, err := Load(zaptest.NewLogger(t), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestLoadWithoutFilesUsesEnv(t *testing.T) {
	t.Setenv("TEAMMATCH_AUTH_JWT_SECRET", "env-provided-secret-123")
	t.Setenv("TEAMMATCH_DATABASE_DSN", "host=db")

	cfg, err := Load(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-provided-secret-123", cfg.Auth.JWTSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Queue.Backend)
}
