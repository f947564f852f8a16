package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/totp"
)

// Config is the full Engine configuration. Start from [DefaultConfig] and
// override what differs; the Builder validates it once at Build.
type Config struct {
	JWT           JWTConfig
	TOTP          TOTPConfig
	Password      PasswordConfig
	AuthCode      AuthCodeConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	URLs          URLConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// TokenConfig configures one token kind. Access and refresh tokens must not
// share key material.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
}

type JWTConfig struct {
	Access   TokenConfig
	Refresh  TokenConfig
	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int // seconds
	Algorithm string
	Skew      int // steps accepted on either side of the current one

	// A 2FA-gated Login leaves a single-use challenge that must be
	// completed within LoginChallengeTTL and LoginMaxAttempts codes.
	LoginChallengeTTL    time.Duration
	LoginMaxAttempts     int
	ChallengeRedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
AUTH CODE / RESET CONFIG
====================================
*/

type AuthCodeConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

type PasswordResetConfig struct {
	TTL     time.Duration
	Subject string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// LimitPolicy is one fixed-window budget. A zero MaxAttempts disables it.
type LimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig throttles credential guessing. It only takes effect when
// the engine has a Redis client.
type RateLimitConfig struct {
	Enabled        bool
	Login          LimitPolicy // per email
	LoginIP        LimitPolicy
	TwoFactor      LimitPolicy // per user
	ResetRequest   LimitPolicy // per email
	ResetRequestIP LimitPolicy
	CodeExchange   LimitPolicy // failed exchanges per IP
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
URL CONFIG
====================================
*/

// URLConfig holds the public base URLs used to build links handed to clients.
type URLConfig struct {
	// AppURL is this service's public base URL.
	AppURL string
	// FrontendURL is where reset links and federated-login redirects point.
	FrontendURL string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Signing keys and URLs must
// still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			Access: TokenConfig{
				TTL:           time.Hour,
				SigningMethod: "ed25519",
			},
			Refresh: TokenConfig{
				TTL:           7 * 24 * time.Hour,
				SigningMethod: "ed25519",
			},
			Issuer: "authcore",
			Leeway: 30 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:    "authcore",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,

			LoginChallengeTTL:    3 * time.Minute,
			LoginMaxAttempts:     5,
			ChallengeRedisPrefix: "amc",
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		AuthCode: AuthCodeConfig{
			TTL:         5 * time.Minute,
			RedisPrefix: "aac",
		},
		PasswordReset: PasswordResetConfig{
			TTL:     time.Hour,
			Subject: "Reset Password",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Login:          LimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute},
			LoginIP:        LimitPolicy{MaxAttempts: 50, Window: 15 * time.Minute},
			TwoFactor:      LimitPolicy{MaxAttempts: 5, Window: 5 * time.Minute},
			ResetRequest:   LimitPolicy{MaxAttempts: 3, Window: time.Hour},
			ResetRequestIP: LimitPolicy{MaxAttempts: 20, Window: time.Hour},
			CodeExchange:   LimitPolicy{MaxAttempts: 20, Window: 10 * time.Minute},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		URLs: URLConfig{
			AppURL:      "http://localhost:3000",
			FrontendURL: "http://localhost:5173",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Access.PrivateKey = cloneBytes(cfg.JWT.Access.PrivateKey)
	out.JWT.Access.PublicKey = cloneBytes(cfg.JWT.Access.PublicKey)
	out.JWT.Refresh.PrivateKey = cloneBytes(cfg.JWT.Refresh.PrivateKey)
	out.JWT.Refresh.PublicKey = cloneBytes(cfg.JWT.Refresh.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every section. Key material itself is checked when the
// token manager is built.
func (c *Config) Validate() error {
	// JWT
	for _, tc := range []struct {
		name string
		cfg  TokenConfig
	}{{"Access", c.JWT.Access}, {"Refresh", c.JWT.Refresh}} {
		if tc.cfg.TTL <= 0 {
			return fmt.Errorf("JWT %s TTL must be > 0", tc.name)
		}
		if tc.cfg.SigningMethod != "ed25519" && tc.cfg.SigningMethod != "hs256" {
			return fmt.Errorf("JWT %s uses an unsupported signing method", tc.name)
		}
		if len(tc.cfg.PrivateKey) == 0 && len(tc.cfg.PublicKey) == 0 {
			return fmt.Errorf("JWT %s requires key material", tc.name)
		}
	}
	if c.JWT.Refresh.TTL < c.JWT.Access.TTL {
		return errors.New("JWT Refresh TTL must be >= Access TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// TOTP
	if err := c.totpConfig().Validate(); err != nil {
		return err
	}
	if c.TOTP.LoginChallengeTTL <= 0 || c.TOTP.LoginChallengeTTL > 15*time.Minute {
		return errors.New("TOTP LoginChallengeTTL must be in (0, 15m]")
	}
	if c.TOTP.LoginMaxAttempts <= 0 {
		return errors.New("TOTP LoginMaxAttempts must be > 0")
	}
	if strings.ContainsAny(c.TOTP.ChallengeRedisPrefix, " :") {
		return errors.New("TOTP ChallengeRedisPrefix must not contain spaces or colons")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Auth codes
	if c.AuthCode.TTL <= 0 {
		return errors.New("AuthCode TTL must be > 0")
	}
	if c.AuthCode.TTL > time.Hour {
		return errors.New("AuthCode TTL must be <= 1h")
	}
	if strings.ContainsAny(c.AuthCode.RedisPrefix, " :") {
		return errors.New("AuthCode RedisPrefix must not contain spaces or colons")
	}

	// Password reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if strings.TrimSpace(c.PasswordReset.Subject) == "" {
		return errors.New("PasswordReset Subject must not be empty")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		for name, p := range map[string]LimitPolicy{
			"Login":          c.RateLimit.Login,
			"LoginIP":        c.RateLimit.LoginIP,
			"TwoFactor":      c.RateLimit.TwoFactor,
			"ResetRequest":   c.RateLimit.ResetRequest,
			"ResetRequestIP": c.RateLimit.ResetRequestIP,
			"CodeExchange":   c.RateLimit.CodeExchange,
		} {
			if p.MaxAttempts < 0 {
				return fmt.Errorf("RateLimit %s MaxAttempts must be >= 0", name)
			}
			if p.MaxAttempts > 0 && p.Window <= 0 {
				return fmt.Errorf("RateLimit %s Window must be > 0", name)
			}
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// URLs
	for name, raw := range map[string]string{"AppURL": c.URLs.AppURL, "FrontendURL": c.URLs.FrontendURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("URLs %s must be an absolute URL", name)
		}
	}

	return nil
}

func (c *Config) totpConfig() totp.Config {
	return totp.Config{
		Issuer:    c.TOTP.Issuer,
		Digits:    c.TOTP.Digits,
		Period:    c.TOTP.Period,
		Algorithm: c.TOTP.Algorithm,
		Skew:      c.TOTP.Skew,
	}
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) signerConfig(tc TokenConfig) jwt.SignerConfig {
	return jwt.SignerConfig{
		TTL:           tc.TTL,
		SigningMethod: jwt.SigningMethod(tc.SigningMethod),
		PrivateKey:    tc.PrivateKey,
		PublicKey:     tc.PublicKey,
		KeyID:         tc.KeyID,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
	}
}

func (c *Config) limitPolicy(prefix string, p LimitPolicy) rate.Policy {
	if !c.RateLimit.Enabled {
		return rate.Policy{Prefix: prefix}
	}
	return rate.Policy{Prefix: prefix, MaxAttempts: p.MaxAttempts, Window: p.Window}
}

func (c *Config) twoFactorEndpoint() string {
	return strings.TrimRight(c.URLs.AppURL, "/") + "/api/v1/auth/validate-2fa"
}

func (c *Config) resetLink(token string) string {
	return strings.TrimRight(c.URLs.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}
