package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "livetiming.formula1.com", cfg.Feed.Host)
	assert.True(t, cfg.Feed.UseTLS)
	assert.True(t, cfg.Feed.Retry)
	assert.Equal(t, 5, cfg.Feed.RetryDelaySec)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "LIVE_TIMING", cfg.NATS.Bucket)
	assert.Equal(t, "live", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 3, cfg.Debounce.WindowSec)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
feed:
  host: example.test
  use_tls: false
  retry: false
nats:
  url: nats://nats.internal:4222
  bucket: RACE
debounce:
  window_sec: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example.test", cfg.Feed.Host)
	assert.False(t, cfg.Feed.UseTLS)
	assert.False(t, cfg.Feed.Retry)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, "RACE", cfg.NATS.Bucket)
	assert.Equal(t, 2, cfg.Debounce.WindowSec)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PITWALL_FEED_HOST", "env.example.test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env.example.test", cfg.Feed.Host)
}

func TestValidateRejectsMissingHost(t *testing.T) {
	cfg := &Config{
		NATS:     NATSConfig{URL: "nats://127.0.0.1:4222", Bucket: "LIVE_TIMING"},
		Debounce: DebounceConfig{WindowSec: 3},
	}

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWindow(t *testing.T) {
	cfg := &Config{
		Feed: FeedConfig{Host: "example.test"},
		NATS: NATSConfig{URL: "nats://127.0.0.1:4222", Bucket: "LIVE_TIMING"},
	}

	assert.Error(t, cfg.Validate())
}

func TestURLDerivation(t *testing.T) {
	secure := FeedConfig{Host: "example.test", UseTLS: true}
	assert.Equal(t, "https://example.test/signalr", secure.BaseHTTPURL())
	assert.Equal(t, "wss://example.test/signalr", secure.BaseWSURL())
	assert.Equal(t, "https://example.test/static", secure.StaticURL())

	plain := FeedConfig{Host: "example.test"}
	assert.Equal(t, "http://example.test/signalr", plain.BaseHTTPURL())
	assert.Equal(t, "ws://example.test/signalr", plain.BaseWSURL())
}
