package unit

import (
	"reflect"
	"testing"
	"time"

	"github.com/Tyrowin/streamchat/internal/server"
)

// TestNewConfig verifies the built-in defaults.
func TestNewConfig(t *testing.T) {
	cfg := server.NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("expected port :8080, got %s", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("expected MaxMessageSize 4096, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.BridgeTimeout != 5*time.Second || cfg.MailboxSize != 256 {
		t.Errorf("unexpected session settings: bridge %v mailbox %d", cfg.BridgeTimeout, cfg.MailboxSize)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected ShutdownTimeout 10s, got %v", cfg.ShutdownTimeout)
	}
}

// TestNewConfigFromEnv verifies that every variable is read.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("DATABASE_PATH", "/tmp/chat-test.db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_ISSUER", "issuer")
	t.Setenv("BRIDGE_TIMEOUT", "750ms")
	t.Setenv("MAILBOX_SIZE", "64")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv() error = %v", err)
	}

	if cfg.Port != ":9090" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 3 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.DatabasePath != "/tmp/chat-test.db" {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if cfg.JWTSecret != "s3cret" || cfg.JWTIssuer != "issuer" {
		t.Errorf("JWT settings = %q %q", cfg.JWTSecret, cfg.JWTIssuer)
	}

	session := cfg.SessionConfig()
	if session.BridgeTimeout != 750*time.Millisecond || session.MailboxSize != 64 {
		t.Errorf("SessionConfig() = %+v", session)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}

	tokens := cfg.AuthConfig()
	if tokens.SecretKey != "s3cret" || tokens.Issuer != "issuer" {
		t.Errorf("AuthConfig() = %+v", tokens)
	}
}

// TestNewConfigFromEnvInvalid verifies that malformed values are reported.
func TestNewConfigFromEnvInvalid(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "lots")

	if _, err := server.NewConfigFromEnv(); err == nil {
		t.Error("expected an error for a non-numeric MAX_MESSAGE_SIZE")
	}
}

// TestConfigSanitized verifies that unusable values fall back to defaults.
func TestConfigSanitized(t *testing.T) {
	cfg := server.Config{
		MaxMessageSize: -1,
		RateLimit:      server.RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		MailboxSize:    -5,
	}

	got := cfg.Sanitized()
	defaults := server.NewConfig()

	if got.Port != defaults.Port {
		t.Errorf("Port = %q", got.Port)
	}
	if got.MaxMessageSize != defaults.MaxMessageSize {
		t.Errorf("MaxMessageSize = %d", got.MaxMessageSize)
	}
	if !reflect.DeepEqual(got.RateLimit, defaults.RateLimit) {
		t.Errorf("RateLimit = %+v", got.RateLimit)
	}
	if got.MailboxSize != defaults.MailboxSize || got.BridgeTimeout != defaults.BridgeTimeout {
		t.Errorf("session settings = %d %v", got.MailboxSize, got.BridgeTimeout)
	}
	if got.JWTSecret == "" {
		t.Error("expected a development JWT secret")
	}
}
