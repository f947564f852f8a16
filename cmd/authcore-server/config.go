package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/caarlos0/env/v10"
)

// Config is read from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"AUTH_HTTP_PORT" envDefault:"3000"`

	AppURL      string `env:"AUTH_APP_URL" envDefault:"http://localhost:3000"`
	FrontendURL string `env:"AUTH_FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Empty PostgresDSN keeps users in memory.
	PostgresDSN string `env:"AUTH_POSTGRES_DSN"`
	// Empty RedisAddr disables rate limiting and keeps codes in memory.
	RedisAddr     string `env:"AUTH_REDIS_ADDR"`
	RedisPassword string `env:"AUTH_REDIS_PASSWORD"`

	// Empty KafkaBrokers logs mail, reset links included, instead of
	// publishing it. Only development may leave it unset.
	KafkaBrokers []string `env:"AUTH_KAFKA_BROKERS" envSeparator:","`
	MailTopic    string   `env:"AUTH_MAIL_TOPIC" envDefault:"auth.mail"`

	// Base64 ed25519 seeds or private keys. Development generates
	// throwaway keys when unset.
	JWTAccessKey  string        `env:"AUTH_JWT_ACCESS_KEY"`
	JWTRefreshKey string        `env:"AUTH_JWT_REFRESH_KEY"`
	AccessTTL     time.Duration `env:"AUTH_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL    time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"168h"`

	GoogleClientID     string `env:"AUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"AUTH_GOOGLE_CLIENT_SECRET"`

	MetricsEnabled bool `env:"AUTH_METRICS_ENABLED" envDefault:"true"`
	AuditEnabled   bool `env:"AUTH_AUDIT_ENABLED" envDefault:"false"`
}

// LoadConfig parses the environment and checks the combinations env tags
// cannot express.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.Environment != "development" && (cfg.JWTAccessKey == "" || cfg.JWTRefreshKey == "") {
		return nil, fmt.Errorf("AUTH_JWT_ACCESS_KEY and AUTH_JWT_REFRESH_KEY must be set in %q mode", cfg.Environment)
	}
	if cfg.Environment != "development" && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("AUTH_KAFKA_BROKERS must be set in %q mode", cfg.Environment)
	}
	if (cfg.GoogleClientID == "") != (cfg.GoogleClientSecret == "") {
		return nil, fmt.Errorf("AUTH_GOOGLE_CLIENT_ID and AUTH_GOOGLE_CLIENT_SECRET must be set together")
	}
	return cfg, nil
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func (c *Config) GoogleRedirectURL() string {
	return c.AppURL + "/api/v1/auth/google/callback"
}

// EngineConfig builds the engine configuration, decoding or generating keys.
func (c *Config) EngineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Access.TTL = c.AccessTTL
	cfg.JWT.Refresh.TTL = c.RefreshTTL
	cfg.URLs.AppURL = c.AppURL
	cfg.URLs.FrontendURL = c.FrontendURL
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	cfg.Audit.Enabled = c.AuditEnabled

	var err error
	if cfg.JWT.Access.PrivateKey, err = signingKey(c.JWTAccessKey); err != nil {
		return authcore.Config{}, fmt.Errorf("access key: %w", err)
	}
	if cfg.JWT.Refresh.PrivateKey, err = signingKey(c.JWTRefreshKey); err != nil {
		return authcore.Config{}, fmt.Errorf("refresh key: %w", err)
	}
	return cfg, nil
}

func signingKey(encoded string) (ed25519.PrivateKey, error) {
	if encoded == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("want %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}
