package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithRequiredEnv(t *testing.T) {
	t.Setenv("CARDSYNC_SERVER__URL", "https://sync.example.com")
	t.Setenv("CARDSYNC_SERVER__TOKEN", "secret")

	cfg, err := Load(Flags())
	require.NoError(t, err)

	assert.Equal(t, "https://sync.example.com", cfg.Server.URL)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, "cardsync.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 10, cfg.Sync.CheckpointEvery)
	assert.Equal(t, 20, cfg.Scheduler.NewCardsPerDay)
}

func TestLoad_MissingServerFails(t *testing.T) {
	cfg, err := Load(Flags())
	require.Error(t, err)
	assert.Zero(t, cfg)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
database:
  path: /tmp/other.db
server:
  url: https://sync.example.com
  token: secret
sync:
  batch_size: 25
scheduler:
  new_cards_per_day: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--config", path}))

	cfg, err := Load(flags)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, 5, cfg.Scheduler.NewCardsPerDay)
	// Untouched keys keep their defaults.
	assert.Equal(t, 7, cfg.Sync.RetentionDays)
}

func TestLoad_FlagsBeatEnv(t *testing.T) {
	t.Setenv("CARDSYNC_SERVER__URL", "https://env.example.com")
	t.Setenv("CARDSYNC_SERVER__TOKEN", "secret")

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--server.url", "https://flag.example.com"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com", cfg.Server.URL)
}

func TestLoad_InvalidSchedulerSettingsRejected(t *testing.T) {
	t.Setenv("CARDSYNC_SERVER__URL", "https://sync.example.com")
	t.Setenv("CARDSYNC_SERVER__TOKEN", "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
scheduler:
  learning_steps: []
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--config", path}))

	_, err := Load(flags)
	require.Error(t, err)
}
