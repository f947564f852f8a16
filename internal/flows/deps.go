package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Signup        SignupDeps
	Login         LoginDeps
	TwoFactor     TwoFactorDeps
	Refresh       RefreshDeps
	AuthCode      AuthCodeDeps
	PasswordReset PasswordResetDeps
}

// UserRecord is the flow-local user model.
type UserRecord struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	TwoFactorEnabled    bool
	TwoFactorSecret     string
	PasswordResetToken  string
	PasswordResetExpiry *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuditFunc emits one audit event. metadata is only invoked when an audit
// sink is configured.
type AuditFunc func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)

// RateLimitFunc reports that scope tripped a limiter.
type RateLimitFunc func(ctx context.Context, scope string, metadata func() map[string]string)

// NormalizeEmail is the canonical form used for lookups and limiter keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopRateLimit(context.Context, string, func() map[string]string) {}

func noopMetric(int) {}

func emailMetadata(email string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"email": email,
		}
	}
}

func reasonMetadata(email, reason string) func() map[string]string {
	return func() map[string]string {
		m := map[string]string{
			"reason": reason,
		}
		if email != "" {
			m["email"] = email
		}
		return m
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
