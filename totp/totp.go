package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SecretBytes is the raw secret size recommended by RFC 4226 for HMAC-SHA1.
const SecretBytes = 20

var (
	ErrInvalidConfig = errors.New("invalid totp configuration")
	ErrInvalidSecret = errors.New("invalid totp secret")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code shape and the accepted time window.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// DefaultConfig returns 6 digit SHA1 codes over 30 second steps with one step of skew.
func DefaultConfig() Config {
	return Config{
		Issuer:    "authcore",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	}
}

// Validate checks Config bounds.
func (c Config) Validate() error {
	if c.Digits < 6 || c.Digits > 8 {
		return fmt.Errorf("%w: digits must be between 6 and 8", ErrInvalidConfig)
	}
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be > 0", ErrInvalidConfig)
	}
	if c.Skew < 0 || c.Skew > 3 {
		return fmt.Errorf("%w: skew must be between 0 and 3", ErrInvalidConfig)
	}
	if _, err := hmacFunc(c.Algorithm); err != nil {
		return err
	}
	return nil
}

// Engine generates secrets and verifies codes. It holds no mutable state.
type Engine struct {
	config Config
}

// New returns an Engine for cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{config: cfg}, nil
}

// GenerateSecret returns a fresh random secret encoded as unpadded base32.
func (e *Engine) GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI rendered as a QR code during enrollment.
func (e *Engine) ProvisioningURI(secret, account string) string {
	issuer := e.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(e.config.Period))
	v.Set("digits", strconv.Itoa(e.config.Digits))
	v.Set("algorithm", e.config.Algorithm)

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Code returns the code for the step containing t.
func (e *Engine) Code(secret string, t time.Time) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, t.Unix()/int64(e.config.Period), e.config.Digits, e.config.Algorithm)
}

// Verify reports whether code matches secret at now, within the skew window.
//
// A malformed code or an undecodable secret returns false. Every candidate
// step is evaluated, and a missing secret is checked against a zero key, so
// the work done does not depend on which of these failed.
func (e *Engine) Verify(secret, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	wellFormed := len(trimmed) == e.config.Digits && isNumeric(trimmed)

	key, err := DecodeSecret(secret)
	haveKey := err == nil
	if !haveKey {
		key = make([]byte, SecretBytes)
	}
	if !wellFormed {
		trimmed = strings.Repeat("x", e.config.Digits)
	}

	matched := 0
	baseCounter := now.Unix() / int64(e.config.Period)
	for step := -e.config.Skew; step <= e.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, e.config.Digits, e.config.Algorithm)
		if err != nil {
			return false
		}
		matched |= subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed))
	}

	return matched == 1 && haveKey && wellFormed
}

// DecodeSecret decodes a base32 secret, tolerating lowercase, spaces and padding.
func DecodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := secretEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return raw, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, algorithm)
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
