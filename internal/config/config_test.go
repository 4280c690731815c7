package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_CHANNEL_ID", "channel")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "kafka", cfg.Queue.Driver)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "shipments-topic", cfg.Kafka.Topic)
	require.Equal(t, 3, cfg.Discord.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.Discord.ServerErrorWait)
	require.Equal(t, 1100*time.Millisecond, cfg.Notifier.Throttle)
	require.Equal(t, 7*24*time.Hour, cfg.Catalog.CargoMaxAge)
	require.Equal(t, 100, cfg.Catalog.ClaimsPageSize)
	require.NoError(t, cfg.ValidateNotifier())
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  driver: rabbitmq
discord:
  channel_id: from-file
  max_retries: 5
`), 0o600))
	t.Setenv("DISCORD_MAX_RETRIES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "rabbitmq", cfg.Queue.Driver)
	require.Equal(t, "from-file", cfg.Discord.ChannelID)
	require.Equal(t, 1, cfg.Discord.MaxRetries)
}

func TestValidate(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "carrier-pigeon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateNotifier(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateNotifier())
}

func TestSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, Log{Level: "DEBUG"}.SlogLevel())
	require.Equal(t, slog.LevelInfo, Log{Level: ""}.SlogLevel())
	require.Equal(t, slog.LevelError, Log{Level: "error"}.SlogLevel())
}
