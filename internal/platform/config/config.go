// Package config loads application configuration from environment variables.
// All variables use the WALK_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Graph     GraphConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Telegram  TelegramConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// GraphConfig says where questionnaires come from.
type GraphConfig struct {
	Source  string // file, directory, or http(s) URL
	Default string // questionnaire used when a user names none
	Strict  bool   // reject graphs with dangling next_node references
}

// StoreConfig selects where walkthrough sessions live.
type StoreConfig struct {
	Backend    string
	SessionTTL int // minutes, redis only
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Dragonfly/Redis connection settings.
type CacheConfig struct {
	URL string
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string
}

// WebSocketConfig holds settings for browser renderers.
type WebSocketConfig struct {
	Enabled        bool
	AllowedOrigins []string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with WALK_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("WALK_SERVER_PORT", 8080),
			Host: envStr("WALK_SERVER_HOST", "0.0.0.0"),
		},
		Graph: GraphConfig{
			Source:  envStr("WALK_GRAPH_SOURCE", "./questionnaires"),
			Default: envStr("WALK_GRAPH_DEFAULT", ""),
			Strict:  envBool("WALK_GRAPH_STRICT", false),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(envStr("WALK_STORE_BACKEND", StoreMemory)),
			SessionTTL: envInt("WALK_SESSION_TTL", 1440),
		},
		Database: DatabaseConfig{
			URL:      envStr("WALK_DATABASE_URL", ""),
			MaxConns: envInt("WALK_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("WALK_DATABASE_MIN_CONNS", 2),
		},
		Cache: CacheConfig{
			URL: envStr("WALK_CACHE_URL", "redis://localhost:6379"),
		},
		Telegram: TelegramConfig{
			BotToken: envStr("WALK_TELEGRAM_BOT_TOKEN", ""),
		},
		WebSocket: WebSocketConfig{
			Enabled:        envBool("WALK_WEBSOCKET_ENABLED", true),
			AllowedOrigins: envList("WALK_WEBSOCKET_ORIGINS"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envStr("WALK_LOG_LEVEL", "info")),
			Format: strings.ToLower(envStr("WALK_LOG_FORMAT", "json")),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Graph.Source == "" {
		return fmt.Errorf("WALK_GRAPH_SOURCE is required")
	}

	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("WALK_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("WALK_STORE_BACKEND must be 'memory', 'postgres' or 'redis', got %q", c.Store.Backend)
	}

	if c.Store.SessionTTL <= 0 {
		return fmt.Errorf("WALK_SESSION_TTL must be positive, got %d", c.Store.SessionTTL)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("WALK_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasDatabase reports whether a PostgreSQL connection is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
