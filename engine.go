package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	internalflows "github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/totp"
)

// Rate limiter key prefixes.
const (
	limitPrefixLogin          = "rl"
	limitPrefixLoginIP        = "rli"
	limitPrefixTwoFactor      = "rt"
	limitPrefixResetRequest   = "rr"
	limitPrefixResetRequestIP = "rri"
	limitPrefixCodeExchange   = "rc"
)

// Engine is the auth orchestrator. It is immutable after Build and safe for
// concurrent use.
type Engine struct {
	config       Config
	userStore    UserStore
	mailer       MailDispatcher
	codeStore    CodeStore
	challenges   loginChallengeBackend
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	passwordHash *password.Argon2
	totp         *totp.Engine
	jwtManager   *jwt.Manager
	flows        internalflows.Deps
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) buildFlowDeps() internalflows.Deps {
	return internalflows.Deps{
		Signup:        e.signupFlowDeps(),
		Login:         e.loginFlowDeps(),
		TwoFactor:     e.twoFactorFlowDeps(),
		Refresh:       e.refreshFlowDeps(),
		AuthCode:      e.authCodeFlowDeps(),
		PasswordReset: e.passwordResetFlowDeps(),
	}
}

/*
====================================
SHARED FLOW ADAPTERS
====================================
*/

func (e *Engine) findByEmail(ctx context.Context, email string) (internalflows.UserRecord, error) {
	user, err := e.userStore.FindByEmail(ctx, email)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user)
}

func (e *Engine) findByID(ctx context.Context, id string) (internalflows.UserRecord, error) {
	user, err := e.userStore.FindByID(ctx, id)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user)
}

func (e *Engine) createUser(ctx context.Context, email, name, passwordHash string) (internalflows.UserRecord, error) {
	user, err := e.userStore.Create(ctx, NewUser{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user)
}

func (e *Engine) issuePair(user internalflows.UserRecord) (internalflows.TokenPair, error) {
	id := jwt.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}

	access, accessExp, err := e.jwtManager.IssueAccess(id)
	if err != nil {
		return internalflows.TokenPair{}, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}
	refresh, refreshExp, err := e.jwtManager.IssueRefresh(id)
	if err != nil {
		return internalflows.TokenPair{}, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	return internalflows.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) logWarn(ctx context.Context, op, userID string, err error) {
	e.logger.WarnContext(ctx, op+" failed",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

func (e *Engine) limiterCheck(ctx context.Context, p rate.Policy, subjects ...string) error {
	if e.rateLimiter == nil {
		return nil
	}
	return e.rateLimiter.Check(ctx, p, subjects...)
}

func (e *Engine) limiterHit(ctx context.Context, p rate.Policy, subjects ...string) error {
	if e.rateLimiter == nil {
		return nil
	}
	return e.rateLimiter.Hit(ctx, p, subjects...)
}

func (e *Engine) limiterReset(ctx context.Context, p rate.Policy, subjects ...string) error {
	if e.rateLimiter == nil {
		return nil
	}
	return e.rateLimiter.Reset(ctx, p, subjects...)
}

// limiterErrorMapper maps a limiter failure to limited, or to
// ErrStoreUnavailable when Redis itself failed.
func limiterErrorMapper(limited error) func(error) error {
	return func(err error) error {
		if errors.Is(err, rate.ErrRateLimited) {
			return limited
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func isUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrNotFound)
}

// mapStoreError passes classified errors through and wraps everything else
// as ErrStoreUnavailable.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrEngineNotReady) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func toFlowUser(user *User) (internalflows.UserRecord, error) {
	if user == nil {
		return internalflows.UserRecord{}, ErrUserNotFound
	}
	return internalflows.UserRecord{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                user.Name,
		PasswordHash:        user.PasswordHash,
		TwoFactorEnabled:    user.TwoFactorEnabled,
		TwoFactorSecret:     user.TwoFactorSecret,
		PasswordResetToken:  user.PasswordResetToken,
		PasswordResetExpiry: user.PasswordResetExpiry,
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}, nil
}

func fromFlowUser(user internalflows.UserRecord) *User {
	return &User{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                user.Name,
		PasswordHash:        user.PasswordHash,
		TwoFactorEnabled:    user.TwoFactorEnabled,
		TwoFactorSecret:     user.TwoFactorSecret,
		PasswordResetToken:  user.PasswordResetToken,
		PasswordResetExpiry: user.PasswordResetExpiry,
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

func fromFlowPair(pair internalflows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
