package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 60*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 3*time.Minute, cfg.Presence.IdleTimeout)
	assert.Equal(t, 60*time.Second, cfg.Presence.HiddenTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Notify.CallTTL)
	assert.Equal(t, 5*time.Second, cfg.Notify.TypingTimeout)
	assert.Equal(t, "websocket", cfg.Agent.Transport)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "15s")
	t.Setenv("CALL_TTL", "10m")
	t.Setenv("EVENT_DEDUPE_SIZE", "64")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("TRANSPORT", "redis")

	cfg := Load()

	assert.Equal(t, 15*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 10*time.Minute, cfg.Notify.CallTTL)
	assert.Equal(t, 64, cfg.Notify.DedupeSize)
	assert.True(t, cfg.Redis.TLS)
	assert.Equal(t, "redis", cfg.Agent.Transport)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "soon")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")

	cfg := Load()

	assert.Equal(t, 60*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "user_id", "u1")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"user_id":"u1"`)
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
}
