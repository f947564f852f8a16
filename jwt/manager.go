package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm for one signer.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Kind names a token kind and is carried in the "typ" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrInvalidToken covers every verification failure: signature, algorithm,
	// kind, expiry, issuer or audience.
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidConfig = errors.New("invalid jwt configuration")
)

// SignerConfig is the signing configuration for one token kind.
//
// For ed25519 a PrivateKey is needed to issue and a PublicKey to verify; a
// verify-only signer may omit the private key. Keys may be raw bytes or PEM.
type SignerConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	MaxFutureIAT  time.Duration
}

// Identity is the subject a token is minted for.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Claims is the payload of both token kinds. Subject holds the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Kind  Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Identity returns the identity the token was minted for.
func (c *Claims) Identity() Identity {
	if c == nil {
		return Identity{}
	}
	return Identity{UserID: c.Subject, Email: c.Email, Name: c.Name}
}

type signer struct {
	kind      Kind
	config    SignerConfig
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// Manager holds one signer per token kind. It is safe for concurrent use.
type Manager struct {
	access  *signer
	refresh *signer
	now     func() time.Time
}

// NewManager validates both configurations and refuses key material shared
// between the two kinds.
func NewManager(access, refresh SignerConfig) (*Manager, error) {
	a, err := newSigner(KindAccess, access)
	if err != nil {
		return nil, err
	}
	r, err := newSigner(KindRefresh, refresh)
	if err != nil {
		return nil, err
	}
	if sameKeyMaterial(access, refresh) {
		return nil, fmt.Errorf("%w: access and refresh signers must use distinct keys", ErrInvalidConfig)
	}

	return &Manager{access: a, refresh: r, now: time.Now}, nil
}

// IssueAccess signs an access token for id.
func (m *Manager) IssueAccess(id Identity) (string, time.Time, error) {
	return m.Issue(KindAccess, id)
}

// IssueRefresh signs a refresh token for id.
func (m *Manager) IssueRefresh(id Identity) (string, time.Time, error) {
	return m.Issue(KindRefresh, id)
}

// Issue signs a token of kind for id and returns it with its expiry.
func (m *Manager) Issue(kind Kind, id Identity) (string, time.Time, error) {
	s, err := m.signerFor(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	if s.signKey == nil {
		return "", time.Time{}, fmt.Errorf("%w: %s signer has no private key", ErrInvalidConfig, kind)
	}
	if strings.TrimSpace(id.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrInvalidConfig)
	}

	now := m.now()
	expiresAt := now.Add(s.config.TTL)
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(s.method, claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}

	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

// Verify parses tokenStr with the signer for kind. All failures wrap ErrInvalidToken.
func (m *Manager) Verify(tokenStr string, kind Kind) (*Claims, error) {
	s, err := m.signerFor(kind)
	if err != nil {
		return nil, err
	}
	if s.verifyKey == nil {
		return nil, fmt.Errorf("%w: %s signer has no verification key", ErrInvalidConfig, kind)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if s.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != s.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return s.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, kind, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if s.config.MaxFutureIAT > 0 && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.After(m.now().Add(s.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidToken)
		}
	}

	return claims, nil
}

// TTL returns the configured lifetime for kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	s, err := m.signerFor(kind)
	if err != nil {
		return 0
	}
	return s.config.TTL
}

func (m *Manager) signerFor(kind Kind) (*signer, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidConfig)
	}
	switch kind {
	case KindAccess:
		return m.access, nil
	case KindRefresh:
		return m.refresh, nil
	default:
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrInvalidConfig, kind)
	}
}

func newSigner(kind Kind, cfg SignerConfig) (*signer, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: %s TTL must be > 0", ErrInvalidConfig, kind)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: %s leeway must be within [0, 2m]", ErrInvalidConfig, kind)
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	s := &signer{kind: kind, config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, fmt.Errorf("%w: %s hs256 secret must be at least 32 bytes", ErrInvalidConfig, kind)
		}
		s.method = jwt.SigningMethodHS256
		s.signKey = cfg.PrivateKey
		s.verifyKey = cfg.PrivateKey
	case MethodEd25519, "":
		s.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, kind, err)
			}
			s.signKey = priv
			s.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, kind, err)
			}
			s.verifyKey = pub
		}
		if s.verifyKey == nil {
			return nil, fmt.Errorf("%w: %s ed25519 requires a key", ErrInvalidConfig, kind)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}

	return s, nil
}

func sameKeyMaterial(a, b SignerConfig) bool {
	if len(a.PrivateKey) > 0 && bytes.Equal(a.PrivateKey, b.PrivateKey) {
		return true
	}
	if len(a.PublicKey) > 0 && bytes.Equal(a.PublicKey, b.PublicKey) {
		return true
	}
	return false
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
