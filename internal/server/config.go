// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the StreamChat service.
package server

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Tyrowin/streamchat/internal/auth"
	"github.com/Tyrowin/streamchat/internal/chat"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultBurst           = 10
	defaultRefillInterval  = time.Second
	defaultDatabasePath    = "chat.db"
	defaultShutdownTimeout = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST" envDefault:"10"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `env:"SERVER_PORT" envDefault:":8080"`
	AllowedOrigins []string        `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize int64           `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	RateLimit      RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"chat.db"`
	JWTSecret    string `env:"JWT_SECRET"`
	JWTIssuer    string `env:"JWT_ISSUER" envDefault:"streamchat"`

	BridgeTimeout   time.Duration `env:"BRIDGE_TIMEOUT" envDefault:"5s"`
	MailboxSize     int           `env:"MAILBOX_SIZE" envDefault:"256"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func defaultConfig() Config {
	session := chat.DefaultSessionConfig()
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
		DatabasePath:    defaultDatabasePath,
		JWTIssuer:       auth.DefaultConfig().Issuer,
		BridgeTimeout:   session.BridgeTimeout,
		MailboxSize:     session.MailboxSize,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Sanitized returns a copy of cfg with unusable values replaced by defaults.
func (cfg Config) Sanitized() Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	if cfg.JWTSecret == "" {
		log.Printf("JWT_SECRET is not set; using the development secret")
		cfg.JWTSecret = auth.DefaultConfig().SecretKey
	}
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = defaults.BridgeTimeout
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaults.MailboxSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
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
// Unset variables take their documented defaults.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg = cfg.Sanitized()
	return &cfg, nil
}

// SessionConfig returns the settings applied to every chat session.
func (cfg Config) SessionConfig() chat.SessionConfig {
	return chat.SessionConfig{
		MailboxSize:   cfg.MailboxSize,
		BridgeTimeout: cfg.BridgeTimeout,
	}
}

// AuthConfig returns the token settings.
func (cfg Config) AuthConfig() auth.Config {
	tokens := auth.DefaultConfig()
	tokens.SecretKey = cfg.JWTSecret
	tokens.Issuer = cfg.JWTIssuer
	return tokens
}
