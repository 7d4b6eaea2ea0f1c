/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	MetricsBind   string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis backs the SWARM analysis cache (optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// NATS mirrors show events to other processes (optional)
	NATSURL     string
	NATSSubject string

	// Data collaborators
	SwarmAPIURL    string
	SwarmAPIKey    string
	SwarmTimeout   time.Duration
	PumpFunAPIURL  string
	TelegramToken  string
	TelegramGroups []string

	// Show defaults
	ShowAutoStart         bool
	ShowAutoTransition    bool
	ShowEstimatedDuration time.Duration
	ShowRotationFile      string
	ShowAdvanceFirst      bool
	ShowBroadcastOnStart  bool
	GeneratorTimeout      time.Duration

	LegacyEnvWarnings []string
}

// LoadEnvFile applies KEY=value lines from path to the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"TOKENCAST_ENV", "ENVIRONMENT"}, "development"),
		HTTPBind:      getEnvAny([]string{"TOKENCAST_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"TOKENCAST_HTTP_PORT", "PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"TOKENCAST_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"TOKENCAST_DB_DSN", "DATABASE_URL"}, "tokencast.db"),
		JWTSigningKey: getEnvAny([]string{"TOKENCAST_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"TOKENCAST_METRICS_BIND"}, "127.0.0.1:9000"),

		TracingEnabled:    getEnvBoolAny([]string{"TOKENCAST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TOKENCAST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TOKENCAST_TRACING_SAMPLE_RATE"}, 1.0),

		RedisAddr:     getEnvAny([]string{"TOKENCAST_REDIS_ADDR", "REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"TOKENCAST_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"TOKENCAST_REDIS_DB"}, 0),
		CacheTTL:      time.Duration(getEnvIntAny([]string{"TOKENCAST_CACHE_TTL_SECONDS"}, 300)) * time.Second,

		NATSURL:     getEnvAny([]string{"TOKENCAST_NATS_URL", "NATS_URL"}, ""),
		NATSSubject: getEnvAny([]string{"TOKENCAST_NATS_SUBJECT"}, "tokencast.events"),

		SwarmAPIURL:   getEnvAny([]string{"TOKENCAST_SWARM_API_URL", "SWARM_API_URL"}, ""),
		SwarmAPIKey:   getEnvAny([]string{"TOKENCAST_SWARM_API_KEY", "SWARM_API_KEY"}, ""),
		SwarmTimeout:  time.Duration(getEnvIntAny([]string{"TOKENCAST_SWARM_TIMEOUT_SECONDS"}, 30)) * time.Second,
		PumpFunAPIURL: getEnvAny([]string{"TOKENCAST_PUMPFUN_API_URL"}, "https://frontend-api.pump.fun"),
		TelegramToken: getEnvAny([]string{"TOKENCAST_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"}, ""),
		TelegramGroups: splitList(getEnvAny(
			[]string{"TOKENCAST_TELEGRAM_GROUP_IDS", "TELEGRAM_GROUP_IDS"}, "")),

		ShowAutoStart:         getEnvBoolAny([]string{"TOKENCAST_SHOW_AUTO_START"}, false),
		ShowAutoTransition:    getEnvBoolAny([]string{"TOKENCAST_SHOW_AUTO_TRANSITION"}, true),
		ShowEstimatedDuration: time.Duration(getEnvIntAny([]string{"TOKENCAST_SHOW_ESTIMATED_MINUTES"}, 60)) * time.Minute,
		ShowRotationFile:      getEnvAny([]string{"TOKENCAST_SHOW_ROTATION_FILE"}, ""),
		ShowAdvanceFirst:      getEnvBoolAny([]string{"TOKENCAST_SHOW_ADVANCE_FIRST"}, false),
		ShowBroadcastOnStart:  getEnvBoolAny([]string{"TOKENCAST_SHOW_BROADCAST_ON_START"}, true),
		GeneratorTimeout:      time.Duration(getEnvIntAny([]string{"TOKENCAST_GENERATOR_TIMEOUT_SECONDS"}, 60)) * time.Second,
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("TOKENCAST_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.GeneratorTimeout <= 0 {
		return nil, fmt.Errorf("TOKENCAST_GENERATOR_TIMEOUT_SECONDS must be positive")
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("TOKENCAST_TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("TOKENCAST_JWT_SIGNING_KEY must be provided in production")
		}
		if cfg.TelegramToken != "" && len(cfg.TelegramGroups) == 0 {
			return nil, fmt.Errorf("TOKENCAST_TELEGRAM_GROUP_IDS is required when a Telegram bot token is set in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":        "use TOKENCAST_ENV",
		"DATABASE_URL":       "use TOKENCAST_DB_DSN",
		"SWARM_API_URL":      "use TOKENCAST_SWARM_API_URL",
		"SWARM_API_KEY":      "use TOKENCAST_SWARM_API_KEY",
		"TELEGRAM_BOT_TOKEN": "use TOKENCAST_TELEGRAM_BOT_TOKEN",
		"TELEGRAM_GROUP_IDS": "use TOKENCAST_TELEGRAM_GROUP_IDS",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the bind address of the API listener.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
