// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	MessageBacklog int
	RateLimit      RateLimitConfig
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		MessageBacklog: defaultMessageBacklog,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if backlog := os.Getenv("MESSAGE_BACKLOG"); backlog != "" {
		cfg.MessageBacklog = parseIntValue(backlog, cfg.MessageBacklog)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	return cfg
}

// sanitized returns a copy of the config with every field forced into a
// usable range, so a zero or partially filled Config still produces a
// working server.
func (cfg *Config) sanitized() Config {
	out := Config{}
	if cfg != nil {
		out = *cfg
		out.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	}

	if out.Port == "" {
		out.Port = ":8080"
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = 4096
	}
	if out.MessageBacklog <= 0 {
		out.MessageBacklog = defaultMessageBacklog
	}
	if out.RateLimit.Burst <= 0 {
		out.RateLimit.Burst = 5
	}
	if out.RateLimit.RefillInterval <= 0 {
		out.RateLimit.RefillInterval = time.Second
	}
	return out
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
