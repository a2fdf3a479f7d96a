// Package config loads the service configuration.
//
// Sources, lowest priority first:
//  1. built-in defaults
//  2. an optional TOML file (AGORA_CONFIG, default ./agora.toml)
//  3. environment variables, with .env loaded first when present
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
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config carries every setting the process needs.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	JWT      JWTConfig      `koanf:"jwt"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Ledger   LedgerConfig   `koanf:"ledger"`
	Forum    ForumConfig    `koanf:"forum"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// JWTConfig verifies the access tokens issued by the authentication service.
type JWTConfig struct {
	Secret string `koanf:"secret"`
	// AccessTokenExpiry in minutes, used when this process issues dev tokens.
	AccessTokenExpiry int `koanf:"access_token_expiry"`
}

// RealtimeConfig tunes the websocket endpoint.
type RealtimeConfig struct {
	HandshakeLimit  int `koanf:"handshake_limit"`
	HandshakeWindow int `koanf:"handshake_window"` // seconds
}

// LedgerConfig tunes event recording.
type LedgerConfig struct {
	// DedupWindow in seconds: an identical notification inside the window is
	// reused instead of written again.
	DedupWindow int `koanf:"dedup_window"`
}

// ForumConfig throttles comment posting, since every comment can fan out
// mention notifications.
type ForumConfig struct {
	CommentLimit    int `koanf:"comment_limit"`
	CommentWindow   int `koanf:"comment_window"`   // seconds
	CommentCooldown int `koanf:"comment_cooldown"` // seconds
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// DedupWindowDuration converts the configured seconds.
func (c LedgerConfig) DedupWindowDuration() time.Duration {
	return time.Duration(c.DedupWindow) * time.Second
}

// HandshakeWindowDuration converts the configured seconds.
func (c RealtimeConfig) HandshakeWindowDuration() time.Duration {
	return time.Duration(c.HandshakeWindow) * time.Second
}

// CommentWindowDuration converts the configured seconds.
func (c ForumConfig) CommentWindowDuration() time.Duration {
	return time.Duration(c.CommentWindow) * time.Second
}

// CommentCooldownDuration converts the configured seconds.
func (c ForumConfig) CommentCooldownDuration() time.Duration {
	return time.Duration(c.CommentCooldown) * time.Second
}

// AccessTokenTTL converts the configured minutes.
func (c JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiry) * time.Minute
}

// Addr is the listen address ("0.0.0.0:9090").
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           9090,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{Path: "./data/agora.db"},
		JWT:      JWTConfig{AccessTokenExpiry: 15},
		Realtime: RealtimeConfig{HandshakeLimit: 30, HandshakeWindow: 60},
		Ledger:   LedgerConfig{DedupWindow: 30},
		Forum:    ForumConfig{CommentLimit: 10, CommentWindow: 60, CommentCooldown: 120},
		Log:      LogConfig{Level: "info"},
	}
}

// Load builds the configuration. A missing JWT secret is an error: without it
// no credential can be verified.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	path := getEnv("AGORA_CONFIG", "./agora.toml")
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT secret is required (JWT_SECRET or [jwt].secret)")
	}
	if cfg.Ledger.DedupWindow < 0 {
		return nil, errors.New("ledger dedup window must not be negative")
	}

	return &cfg, nil
}

// loadFile merges the TOML file over cfg. A missing file is not an error.
func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Database.Path = getEnv("DATABASE_PATH", cfg.Database.Path)
	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &cfg.Server.Port},
		{"JWT_ACCESS_EXPIRY_MINUTES", &cfg.JWT.AccessTokenExpiry},
		{"WS_HANDSHAKE_LIMIT", &cfg.Realtime.HandshakeLimit},
		{"WS_HANDSHAKE_WINDOW_SECONDS", &cfg.Realtime.HandshakeWindow},
		{"LEDGER_DEDUP_WINDOW_SECONDS", &cfg.Ledger.DedupWindow},
		{"COMMENT_RATE_LIMIT", &cfg.Forum.CommentLimit},
		{"COMMENT_RATE_WINDOW_SECONDS", &cfg.Forum.CommentWindow},
		{"COMMENT_COOLDOWN_SECONDS", &cfg.Forum.CommentCooldown},
	}
	for _, v := range ints {
		raw, ok := os.LookupEnv(v.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", v.key, err)
		}
		*v.dst = n
	}

	if raw, ok := os.LookupEnv("LOG_DEVELOPMENT"); ok {
		dev, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid LOG_DEVELOPMENT: %w", err)
		}
		cfg.Log.Development = dev
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
