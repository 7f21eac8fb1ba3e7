package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "CLASSROOM_"

	// development only; override with CLASSROOM_SIGNING_KEY
	DefaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
)

type Config struct {
	Addr           string   `yaml:"addr" env:"ADDR"`
	DatabaseDSN    string   `yaml:"database_dsn" env:"DATABASE_DSN"`
	RedisURL       string   `yaml:"redis_url" env:"REDIS_URL"`
	SigningSecret  string   `yaml:"signing_key" env:"SIGNING_KEY"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	OutboundQueueSize int    `yaml:"outbound_queue_size" env:"OUTBOUND_QUEUE_SIZE"`
	DropPolicy        string `yaml:"drop_policy" env:"DROP_POLICY"`

	// durations are kept as strings and read with TTLDuration
	CacheTTL        string `yaml:"cache_ttl" env:"CACHE_TTL"`
	IdleRoomTimeout string `yaml:"idle_room_timeout" env:"IDLE_ROOM_TIMEOUT"`
	SessionTTL      string `yaml:"session_ttl" env:"SESSION_TTL"`

	// SigningKey is the decoded SigningSecret, set by Validate.
	SigningKey []byte `yaml:"-" env:"-"`
}

func Default() *Config {
	return &Config{
		Addr:              "localhost:8000",
		SigningSecret:     DefaultSigningKey,
		LogLevel:          "info",
		LogFormat:         "text",
		OutboundQueueSize: 256,
		DropPolicy:        "newest",
		CacheTTL:          "1m",
		IdleRoomTimeout:   "5s",
		SessionTTL:        "24h",
	}
}

// Load builds a config from the defaults, the YAML file at path (skipped when
// path is empty) and CLASSROOM_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseEnv overlays CLASSROOM_* environment variables on target.
func ParseEnv(target *Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the settings and decodes the signing key.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("server address cannot be empty")
	}
	if c.SigningSecret == "" {
		return errors.New("signing secret cannot be empty")
	}

	key, err := base64.StdEncoding.DecodeString(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = key

	switch c.DropPolicy {
	case "newest", "oldest":
	default:
		return fmt.Errorf("unknown drop policy %q", c.DropPolicy)
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("outbound queue size must be positive, got %d", c.OutboundQueueSize)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	return nil
}

// TTLDuration parses a duration string or returns the fallback if it is
// empty or malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
