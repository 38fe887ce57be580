package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Feed        FeedConfig        `mapstructure:"feed"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Debounce    DebounceConfig    `mapstructure:"debounce"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Ops         OpsConfig         `mapstructure:"ops"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type FeedConfig struct {
	Host          string `mapstructure:"host"`
	UseTLS        bool   `mapstructure:"use_tls"`
	Retry         bool   `mapstructure:"retry"`
	RetryDelaySec int    `mapstructure:"retry_delay_sec"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Bucket        string `mapstructure:"bucket"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type DebounceConfig struct {
	WindowSec int `mapstructure:"window_sec"`
}

type TranscriberConfig struct {
	URL           string `mapstructure:"url"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelaySec int    `mapstructure:"retry_delay_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type OpsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("feed.host", "livetiming.formula1.com")
	v.SetDefault("feed.use_tls", true)
	v.SetDefault("feed.retry", true)
	v.SetDefault("feed.retry_delay_sec", 5)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.bucket", "LIVE_TIMING")
	v.SetDefault("nats.subject_prefix", "live")
	v.SetDefault("debounce.window_sec", 3)
	v.SetDefault("transcriber.timeout_sec", 120)
	v.SetDefault("transcriber.retry_count", 2)
	v.SetDefault("transcriber.retry_delay_sec", 5)
	v.SetDefault("transcriber.rate_per_second", 1)
	v.SetDefault("ops.listen_addr", "")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("PITWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("feed.host", "PITWALL_FEED_HOST")
	_ = v.BindEnv("nats.url", "PITWALL_NATS_URL")
	_ = v.BindEnv("transcriber.url", "PITWALL_TRANSCRIBER_URL")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Feed.Host == "" {
		return fmt.Errorf("feed host is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats url is required")
	}
	if c.NATS.Bucket == "" {
		return fmt.Errorf("nats bucket is required")
	}
	if c.Debounce.WindowSec < 1 {
		return fmt.Errorf("debounce window must be >= 1s")
	}
	return nil
}

// BaseHTTPURL returns the handshake endpoint base, e.g.
// "https://livetiming.formula1.com/signalr".
func (c *FeedConfig) BaseHTTPURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/signalr", scheme, c.Host)
}

// BaseWSURL returns the socket endpoint base, e.g.
// "wss://livetiming.formula1.com/signalr".
func (c *FeedConfig) BaseWSURL() string {
	scheme := "ws"
	if c.UseTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/signalr", scheme, c.Host)
}

// StaticURL returns the base URL for static assets such as team radio
// audio captures.
func (c *FeedConfig) StaticURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/static", scheme, c.Host)
}
