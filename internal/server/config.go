// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `env:"SERVER_PORT"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE"`
	RateLimit       RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	HistoryLimit    int             `env:"HISTORY_LIMIT"`
	RoomRetention   string          `env:"ROOM_RETENTION"`
	DatabasePath    string          `env:"DATABASE_PATH"`
	RedisURL        string          `env:"REDIS_URL"`
	JWTSecret       string          `env:"JWT_SECRET"`
	TokenTTL        time.Duration   `env:"TOKEN_TTL"`
	RequireAuth     bool            `env:"REQUIRE_AUTH"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT"`
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 1 << 20
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
	defaultHistoryLimit    = 50
	defaultDatabasePath    = "roomchat.db"
	defaultTokenTTL        = 24 * time.Hour
	defaultShutdownTimeout = 30 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		HistoryLimit:    defaultHistoryLimit,
		RoomRetention:   RetainEmptyRooms.String(),
		DatabasePath:    defaultDatabasePath,
		TokenTTL:        defaultTokenTTL,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// sanitizeConfig replaces unusable values with defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	if _, err := ParseRetentionPolicy(cfg.RoomRetention); err != nil {
		cfg.RoomRetention = RetainEmptyRooms.String()
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset or out-of-range values fall back to defaults; values that cannot be
// parsed are reported as an error.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// Retention returns the parsed room retention policy.
func (c Config) Retention() RetentionPolicy {
	policy, err := ParseRetentionPolicy(c.RoomRetention)
	if err != nil {
		return RetainEmptyRooms
	}
	return policy
}
