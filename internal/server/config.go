// Package server provides configuration loading, defaults and validation
// for the relay process.
package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Default relay limits.
const (
	DefaultAddr           = ":9999"
	DefaultMaxClients     = 10
	DefaultMaxMessageSize = 512
	DefaultGracePeriod    = 10 * time.Second
)

// RateLimitConfig defines per-connection relay throttling. A zero Burst
// disables limiting.
type RateLimitConfig struct {
	Burst    int           `env:"RELAY_RATE_LIMIT_BURST"`
	Interval time.Duration `env:"RELAY_RATE_LIMIT_INTERVAL"`
}

// Config holds the relay settings. Capacity and message size are fixed for
// the life of the process. A zero MaxNameLength bounds names by
// MaxMessageSize.
type Config struct {
	Addr           string          `env:"RELAY_ADDR"`
	MaxClients     int             `env:"RELAY_MAX_CLIENTS"`
	MaxMessageSize int             `env:"RELAY_MAX_MESSAGE_SIZE"`
	MaxNameLength  int             `env:"RELAY_MAX_NAME_LENGTH"`
	GracePeriod    time.Duration   `env:"RELAY_GRACE_PERIOD"`
	WebSocketAddr  string          `env:"RELAY_WS_ADDR"`
	AllowedOrigins []string        `env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
	MetricsAddr    string          `env:"RELAY_METRICS_ADDR"`
	RateLimit      RateLimitConfig
	LogLevel       string          `env:"LOG_LEVEL"`
	LogFormat      string          `env:"LOG_FORMAT"`
}

func defaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		MaxClients:     DefaultMaxClients,
		MaxMessageSize: DefaultMaxMessageSize,
		GracePeriod:    DefaultGracePeriod,
		AllowedOrigins: []string{"http://localhost:8080"},
		RateLimit: RateLimitConfig{
			Interval: time.Second,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables that are not set keep their default value.
func LoadConfig(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("No .env file found (using environment variables only)")
	} else {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.MaxNameLength = cfg.NameLimit()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins, logger)
	return &cfg, nil
}

// NameLimit returns the effective display name bound.
func (c *Config) NameLimit() int {
	if c.MaxNameLength == 0 {
		return c.MaxMessageSize
	}
	return c.MaxNameLength
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("RELAY_ADDR is required")
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("RELAY_MAX_CLIENTS must be > 0, got %d", c.MaxClients)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("RELAY_MAX_MESSAGE_SIZE must be > 0, got %d", c.MaxMessageSize)
	}
	if c.MaxNameLength < 0 || c.MaxNameLength > c.MaxMessageSize {
		return fmt.Errorf("RELAY_MAX_NAME_LENGTH must be 0-%d, got %d", c.MaxMessageSize, c.MaxNameLength)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("RELAY_GRACE_PERIOD must not be negative, got %s", c.GracePeriod)
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT_BURST must not be negative, got %d", c.RateLimit.Burst)
	}
	if c.RateLimit.Burst > 0 && c.RateLimit.Interval <= 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT_INTERVAL must be > 0 when limiting is enabled, got %s", c.RateLimit.Interval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "pretty" {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the effective configuration.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Int("max_clients", c.MaxClients).
		Int("max_message_size", c.MaxMessageSize).
		Int("max_name_length", c.NameLimit()).
		Dur("grace_period", c.GracePeriod).
		Str("ws_addr", c.WebSocketAddr).
		Strs("allowed_origins", c.AllowedOrigins).
		Str("metrics_addr", c.MetricsAddr).
		Int("rate_limit_burst", c.RateLimit.Burst).
		Dur("rate_limit_interval", c.RateLimit.Interval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Relay configuration loaded")
}
