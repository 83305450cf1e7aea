// Package config reads the relay's runtime settings from the environment,
// falling back to safe defaults when a variable is missing or malformed.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the relay process.
type Config struct {
	Port              string
	LogLevel          slog.Level
	HeartbeatInterval time.Duration
	StrictValidation  bool
	MaxMessageSize    int64
}

// Default returns the built-in configuration: permissive frame validation and
// a 30 second heartbeat.
func Default() Config {
	return Config{
		Port:              "8080",
		LogLevel:          slog.LevelInfo,
		HeartbeatInterval: 30 * time.Second,
		StrictValidation:  false,
		MaxMessageSize:    4096,
	}
}

// Load builds the configuration from environment variables, keeping the
// default for any value that is unset or fails to parse.
func Load() Config {
	cfg := Default()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	cfg.LogLevel = parseLogLevel(os.Getenv("LOG_LEVEL"), cfg.LogLevel)
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		cfg.HeartbeatInterval = parseSeconds(v, cfg.HeartbeatInterval)
	}
	if v := os.Getenv("STRICT_VALIDATION"); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			cfg.StrictValidation = strict
		}
	}
	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			cfg.MaxMessageSize = size
		}
	}

	return cfg
}

func parseLogLevel(value string, fallback slog.Level) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return fallback
}

func parseSeconds(value string, fallback time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
