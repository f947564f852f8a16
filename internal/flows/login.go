package flows

import (
	"context"
	"errors"
)

// LoginOutcome is the flow-local login response. When TwoFactorRequired is
// set, Tokens is empty and ChallengeID names the pending second step.
type LoginOutcome struct {
	User              UserRecord
	Tokens            TokenPair
	TwoFactorRequired bool
	ChallengeID       string
}

type LoginMetrics struct {
	LoginSuccess      int
	LoginFailure      int
	LoginRateLimited  int
	TwoFactorRequired int
	PasswordUpgraded  int
}

type LoginEvents struct {
	LoginSuccess      string
	LoginFailure      string
	LoginRateLimited  string
	TwoFactorRequired string
}

type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	LoginRateLimited   error
}

type LoginDeps struct {
	UpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string

	// Limiter closures take (email, ip).
	CheckLimiter    func(context.Context, string, string) error
	HitLimiter      func(context.Context, string, string) error
	ResetLimiter    func(context.Context, string, string) error
	MapLimiterError func(error) error

	FindByEmail   func(context.Context, string) (UserRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error

	VerifyPassword   func(plaintext, hash string) (bool, error)
	NeedsUpgrade     func(hash string) (bool, error)
	HashPassword     func(string) (string, error)
	UpdateCredential func(ctx context.Context, userID, hash string) error
	OnUpgradeFailure func(ctx context.Context, userID string, err error)

	// CreateChallenge stores a single-use 2FA challenge for userID and
	// returns its id.
	CreateChallenge func(ctx context.Context, userID string) (string, error)
	IssuePair       func(UserRecord) (TokenPair, error)

	MetricInc     func(int)
	EmitAudit     AuditFunc
	EmitRateLimit RateLimitFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates email/password. A missing account and a wrong
// password are indistinguishable to the caller.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (LoginOutcome, error) {
	normalizeLoginDeps(&deps)

	if deps.FindByEmail == nil || deps.VerifyPassword == nil || deps.IssuePair == nil {
		return LoginOutcome{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	ip := deps.ClientIPFromContext(ctx)

	if err := deps.CheckLimiter(ctx, email, ip); err != nil {
		return LoginOutcome{}, loginLimited(ctx, email, "", deps.MapLimiterError(err), deps)
	}

	fail := func(userID, reason string) (LoginOutcome, error) {
		if err := deps.HitLimiter(ctx, email, ip); err != nil {
			return LoginOutcome{}, loginLimited(ctx, email, userID, deps.MapLimiterError(err), deps)
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, deps.Errors.InvalidCredentials, reasonMetadata(email, reason))
		return LoginOutcome{}, deps.Errors.InvalidCredentials
	}

	if email == "" || password == "" {
		return fail("", "empty_field")
	}

	user, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if isContextError(err) {
			return LoginOutcome{}, err
		}
		if !deps.IsNotFound(err) {
			return LoginOutcome{}, deps.MapStoreError(err)
		}
		return fail("", "user_not_found")
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return fail(user.ID, "password_mismatch")
	}

	_ = deps.ResetLimiter(ctx, email, ip)

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdateCredential != nil {
		upgradePasswordHash(ctx, user, password, deps)
	}
	password = ""

	if user.TwoFactorEnabled && user.TwoFactorSecret != "" {
		if deps.CreateChallenge == nil {
			return LoginOutcome{}, deps.Errors.EngineNotReady
		}
		challengeID, err := deps.CreateChallenge(ctx, user.ID)
		if err != nil {
			return LoginOutcome{}, err
		}
		deps.MetricInc(deps.Metrics.TwoFactorRequired)
		deps.EmitAudit(ctx, deps.Events.TwoFactorRequired, true, user.ID, nil, emailMetadata(email))
		return LoginOutcome{User: user, TwoFactorRequired: true, ChallengeID: challengeID}, nil
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.ID, err, reasonMetadata(email, "token_issue"))
		return LoginOutcome{}, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, nil, emailMetadata(email))
	return LoginOutcome{User: user, Tokens: pair}, nil
}

func loginLimited(ctx context.Context, email, userID string, mapped error, deps LoginDeps) error {
	if errors.Is(mapped, deps.Errors.LoginRateLimited) {
		deps.MetricInc(deps.Metrics.LoginRateLimited)
		deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, userID, mapped, emailMetadata(email))
		deps.EmitRateLimit(ctx, "login", emailMetadata(email))
	}
	return mapped
}

// Rehash failures never block a successful login.
func upgradePasswordHash(ctx context.Context, user UserRecord, password string, deps LoginDeps) {
	needsUpgrade, err := deps.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := deps.HashPassword(password)
	if err != nil {
		deps.OnUpgradeFailure(ctx, user.ID, err)
		return
	}
	if err := deps.UpdateCredential(ctx, user.ID, upgraded); err != nil {
		deps.OnUpgradeFailure(ctx, user.ID, err)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordUpgraded)
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.HitLimiter == nil {
		deps.HitLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.LoginRateLimited }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.OnUpgradeFailure == nil {
		deps.OnUpgradeFailure = func(context.Context, string, error) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = noopRateLimit
	}
}
