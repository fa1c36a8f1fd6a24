package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadFileMissingGivesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 25*time.Minute, cfg.Timer.Focus.Std())
	assert.Equal(t, time.Hour, cfg.Reminder.Lead.Std())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"storage": {"driver": "file", "path": "/tmp/tasks.json"},
		"timer": {"focus": "50m"},
		"calendar": {"enabled": true, "name": ""}
	}`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 50*time.Minute, cfg.Timer.Focus.Std())
	assert.Equal(t, 5*time.Minute, cfg.Timer.Break.Std())
	assert.True(t, cfg.Calendar.Enabled)
	assert.Equal(t, "Tasks", cfg.Calendar.Name)
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timer": {"focus": 1500}}`), 0600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"POMODO_STORAGE_DRIVER":   "redis",
		"POMODO_REDIS_ADDR":       "localhost:6379",
		"POMODO_REDIS_DB":         "3",
		"POMODO_TELEGRAM_CHAT_ID": "-100123",
		"POMODO_FOCUS":            "1m",
		"POMODO_LOG_JSON":         "true",
		"POMODO_SERVER_ADDR":      "",
	})))
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "localhost:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, time.Minute, cfg.Timer.Focus.Std())
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	assert.Error(t, Default().ApplyEnv(env(map[string]string{"POMODO_BREAK": "soon"})))
	assert.Error(t, Default().ApplyEnv(env(map[string]string{"POMODO_REDIS_DB": "x"})))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("POMODO_HOME", t.TempDir())

	cfg := Default()
	cfg.Storage.Driver = "postgres"
	cfg.Storage.DSN = "postgres://localhost/pomodo"
	cfg.Timer.Break = Duration(10 * time.Minute)
	require.NoError(t, Save(cfg))

	path, err := GetConfigPath()
	require.NoError(t, err)
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
