// Package memory is an in-process [authcore.UserStore] for tests, demos and
// single-instance deployments. State is lost on restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
)

// Store keeps users in maps guarded by one RWMutex. Returned users are
// copies; mutating them does not touch the store.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*authcore.User
	byEmail map[string]string
	now     func() time.Time
}

var (
	_ authcore.UserStore         = (*Store)(nil)
	_ authcore.TwoFactorEnroller = (*Store)(nil)
)

func New() *Store {
	return &Store{
		byID:    make(map[string]*authcore.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// Create rejects a second account for the same email, ignoring case.
func (s *Store) Create(ctx context.Context, input authcore.NewUser) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := emailKey(input.Email)
	if key == "" {
		return nil, authcore.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[key]; exists {
		return nil, authcore.ErrAccountExists
	}

	now := s.now()
	user := &authcore.User{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(input.Email),
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[user.ID] = user
	s.byEmail[key] = user.ID
	return cloneUser(user), nil
}

func (s *Store) UpdateCredential(ctx context.Context, id, passwordHash string) (*authcore.User, error) {
	return s.update(ctx, id, func(u *authcore.User) bool {
		u.PasswordHash = passwordHash
		return true
	})
}

func (s *Store) UpdateTwoFactor(ctx context.Context, id, secret string, enabled bool) (*authcore.User, error) {
	return s.update(ctx, id, func(u *authcore.User) bool {
		u.TwoFactorSecret = secret
		u.TwoFactorEnabled = enabled
		return true
	})
}

// EnableTwoFactorIfDisabled stores secret only while 2FA is off. Either way
// it returns the current record.
func (s *Store) EnableTwoFactorIfDisabled(ctx context.Context, id, secret string) (*authcore.User, error) {
	return s.update(ctx, id, func(u *authcore.User) bool {
		if u.TwoFactorEnabled {
			return false
		}
		u.TwoFactorSecret = secret
		u.TwoFactorEnabled = true
		return true
	})
}

// SetResetToken with an empty token clears both the token and expiry.
func (s *Store) SetResetToken(ctx context.Context, id, token string, expiry *time.Time) error {
	_, err := s.update(ctx, id, func(u *authcore.User) bool {
		if token == "" {
			u.PasswordResetToken = ""
			u.PasswordResetExpiry = nil
			return true
		}
		u.PasswordResetToken = token
		u.PasswordResetExpiry = cloneTime(expiry)
		return true
	})
	return err
}

// FindByResetToken matches the stored digest exactly. Expiry is left to the
// caller.
func (s *Store) FindByResetToken(ctx context.Context, token string) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, authcore.ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.byID {
		if user.PasswordResetToken == token {
			return cloneUser(user), nil
		}
	}
	return nil, authcore.ErrUserNotFound
}

// ResetCredential swaps the hash and clears the reset token under the write
// lock, so one live token admits exactly one reset.
func (s *Store) ResetCredential(ctx context.Context, token, passwordHash string, now time.Time) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, authcore.ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.byID {
		if user.PasswordResetToken != token {
			continue
		}
		if user.PasswordResetExpiry == nil || !now.Before(*user.PasswordResetExpiry) {
			return nil, authcore.ErrUserNotFound
		}
		user.PasswordHash = passwordHash
		user.PasswordResetToken = ""
		user.PasswordResetExpiry = nil
		user.UpdatedAt = s.now()
		return cloneUser(user), nil
	}
	return nil, authcore.ErrUserNotFound
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) update(ctx context.Context, id string, mutate func(*authcore.User) bool) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	if mutate(user) {
		user.UpdatedAt = s.now()
	}
	return cloneUser(user), nil
}

func cloneUser(u *authcore.User) *authcore.User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordResetExpiry = cloneTime(u.PasswordResetExpiry)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
