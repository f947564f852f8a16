package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockUserStore struct {
	mu    sync.Mutex
	users map[string]*User
	seq   int

	findErr   error
	createErr error

	createCalls           int
	updateCredentialCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]*User)}
}

func copyUser(u *User) *User {
	out := *u
	if u.PasswordResetExpiry != nil {
		expiry := *u.PasswordResetExpiry
		out.PasswordResetExpiry = &expiry
	}
	return &out
}

func (m *mockUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *mockUserStore) Create(_ context.Context, in NewUser) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, u := range m.users {
		if u.Email == in.Email {
			return nil, ErrAccountExists
		}
	}

	m.seq++
	now := time.Now()
	u := &User{
		ID:           fmt.Sprintf("u%d", m.seq),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	return copyUser(u), nil
}

func (m *mockUserStore) UpdateCredential(_ context.Context, id, hash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCredentialCalls++
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return copyUser(u), nil
}

func (m *mockUserStore) UpdateTwoFactor(_ context.Context, id, secret string, enabled bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.TwoFactorSecret = secret
	u.TwoFactorEnabled = enabled
	return copyUser(u), nil
}

func (m *mockUserStore) SetResetToken(_ context.Context, id, token string, expiry *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordResetToken = token
	u.PasswordResetExpiry = expiry
	return nil
}

func (m *mockUserStore) FindByResetToken(_ context.Context, token string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		return nil, ErrUserNotFound
	}
	for _, u := range m.users {
		if u.PasswordResetToken == token {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserStore) ResetCredential(_ context.Context, token, hash string, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		return nil, ErrUserNotFound
	}
	for _, u := range m.users {
		if u.PasswordResetToken != token {
			continue
		}
		if u.PasswordResetExpiry == nil || !now.Before(*u.PasswordResetExpiry) {
			return nil, ErrUserNotFound
		}
		u.PasswordHash = hash
		u.PasswordResetToken = ""
		u.PasswordResetExpiry = nil
		u.UpdatedAt = time.Now()
		return copyUser(u), nil
	}
	return nil, ErrUserNotFound
}

func (m *mockUserStore) get(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil
	}
	return copyUser(u)
}

// enrollingUserStore adds the conditional 2FA enable.
type enrollingUserStore struct {
	*mockUserStore
	conditionalCalls int
}

func (s *enrollingUserStore) EnableTwoFactorIfDisabled(_ context.Context, id, secret string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conditionalCalls++
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if !u.TwoFactorEnabled {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = secret
	}
	return copyUser(u), nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type mockMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	err    error
	reject bool
}

func (m *mockMailer) Send(_ context.Context, to, subject, htmlBody string) (MailResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	if m.err != nil {
		return MailResult{}, m.err
	}
	if m.reject {
		return MailResult{MessageID: "m-rejected"}, nil
	}
	return MailResult{MessageID: fmt.Sprintf("m%d", len(m.sent)), Accepted: []string{to}}, nil
}

func (m *mockMailer) last(t *testing.T) sentMail {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func testKey(t testing.TB) []byte {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return priv
}

func testConfig(t testing.TB) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.JWT.Access.PrivateKey = testKey(t)
	cfg.JWT.Refresh.PrivateKey = testKey(t)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.URLs.AppURL = "https://api.example.com"
	cfg.URLs.FrontendURL = "https://app.example.com"
	return cfg
}

type testEngineOptions struct {
	config    *Config
	store     UserStore
	mailer    MailDispatcher
	redis     redis.UniversalClient
	auditSink AuditSink
}

func newTestEngine(t testing.TB, opts testEngineOptions) *Engine {
	t.Helper()

	cfg := testConfig(t)
	if opts.config != nil {
		cfg = *opts.config
	}
	cfg.Metrics.Enabled = true

	b := New().WithConfig(cfg)
	if opts.store == nil {
		opts.store = newMockUserStore()
	}
	b.WithUserStore(opts.store)
	if opts.mailer != nil {
		b.WithMailer(opts.mailer)
	}
	if opts.redis != nil {
		b.WithRedis(opts.redis)
	}
	if opts.auditSink != nil {
		b.WithAuditSink(opts.auditSink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func mustSignup(t testing.TB, e *Engine, email, password string) *SignupResult {
	t.Helper()

	res, err := e.Signup(context.Background(), SignupInput{Email: email, Password: password, Name: "Alice"})
	if err != nil {
		t.Fatalf("Signup(%s) failed: %v", email, err)
	}
	return res
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()

	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}
