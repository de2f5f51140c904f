package config

import (
	"log/slog"
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

func TestLoadDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
postgres:
  dsn: postgres://app@localhost/gamenight
daemon:
  reminder_interval: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "json", cfg.Log.Format, "default survives partial file")
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Daemon.ReminderInterval)
	assert.Equal(t, 30*time.Second, cfg.Daemon.StatusInterval)
	assert.Equal(t, 100, cfg.Daemon.Batch)
}

func TestLoadRequiresDSN(t *testing.T) {
	_, err := Load(writeConfig(t, "log:\n  level: info\n"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GAMENIGHT_POSTGRES_DSN", "postgres://env@localhost/db")
	t.Setenv("GAMENIGHT_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env@localhost/db", cfg.Postgres.DSN)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

// Keys without a default must still be fillable from the environment alone;
// a containerized deployment carries no config file at all.
func TestEnvOnlySecretsResolve(t *testing.T) {
	t.Setenv("GAMENIGHT_POSTGRES_DSN", "postgres://env@localhost/db")
	t.Setenv("GAMENIGHT_POSTGRES_ADMIN_DSN", "postgres://admin@localhost/db")
	t.Setenv("GAMENIGHT_REDIS_DSN", "redis://localhost:6379/0")
	t.Setenv("GAMENIGHT_AMQP_URI", "amqp://guest@localhost:5672/")
	t.Setenv("GAMENIGHT_CHAT_BOT_TOKEN", "bot-token")
	t.Setenv("GAMENIGHT_CHAT_PUBLIC_KEY", "aabbcc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://admin@localhost/db", cfg.Postgres.AdminDSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.DSN)
	assert.Equal(t, "amqp://guest@localhost:5672/", cfg.AMQP.URI)
	assert.Equal(t, "bot-token", cfg.Chat.BotToken)
	assert.Equal(t, "aabbcc", cfg.Chat.PublicKey)
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
}
