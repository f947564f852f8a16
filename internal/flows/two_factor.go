package flows

import (
	"context"
	"errors"
	"time"
)

// TwoFactorEnrollment is the secret a user should load into an authenticator.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string

	// Existing is set when 2FA was already enabled and the stored secret was returned.
	Existing bool
}

type TwoFactorMetrics struct {
	TwoFactorEnabled     int
	TwoFactorDisabled    int
	TwoFactorSuccess     int
	TwoFactorFailure     int
	TwoFactorRateLimited int
	LoginSuccess         int
}

type TwoFactorEvents struct {
	TwoFactorEnabled     string
	TwoFactorDisabled    string
	TwoFactorSuccess     string
	TwoFactorFailure     string
	TwoFactorRateLimited string
	LoginSuccess         string
	ChallengeFailure     string
}

type TwoFactorErrors struct {
	EngineNotReady       error
	UserNotFound         error
	AlreadyDisabled      error
	TwoFactorInvalid     error
	TwoFactorRateLimited error
	Unavailable          error
	ChallengeInvalid     error
	AttemptsExceeded     error
}

type TwoFactorDeps struct {
	Now func() time.Time

	FindByID      func(context.Context, string) (UserRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error

	UpdateTwoFactor func(ctx context.Context, userID, secret string, enabled bool) (UserRecord, error)
	// EnableIfDisabled, when set, atomically stores secret only if 2FA is
	// still off and returns the record as it stands afterwards.
	EnableIfDisabled func(ctx context.Context, userID, secret string) (UserRecord, error)

	GenerateSecret  func() (string, error)
	ProvisioningURI func(secret, account string) string
	VerifyCode      func(secret, code string, now time.Time) bool

	// Limiter closures take the user id.
	CheckLimiter    func(context.Context, string) error
	HitLimiter      func(context.Context, string) error
	ResetLimiter    func(context.Context, string) error
	MapLimiterError func(error) error

	// Login challenge closures take the challenge id issued by RunLogin.
	LoadChallenge          func(ctx context.Context, challengeID string) (userID string, err error)
	RecordChallengeFailure func(ctx context.Context, challengeID string) (exceeded bool, err error)
	ConsumeChallenge       func(ctx context.Context, challengeID string) (bool, error)

	IssuePair func(UserRecord) (TokenPair, error)

	MetricInc     func(int)
	EmitAudit     AuditFunc
	EmitRateLimit RateLimitFunc

	Metrics TwoFactorMetrics
	Events  TwoFactorEvents
	Errors  TwoFactorErrors
}

// RunEnableTwoFactor is idempotent: an enabled user gets the stored secret
// back. Otherwise a new secret is persisted and the stored record is reread,
// so concurrent enables converge on whichever secret was written last (or
// first, with EnableIfDisabled).
func RunEnableTwoFactor(ctx context.Context, userID string, deps TwoFactorDeps) (TwoFactorEnrollment, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.FindByID == nil || deps.UpdateTwoFactor == nil || deps.GenerateSecret == nil {
		return TwoFactorEnrollment{}, deps.Errors.EngineNotReady
	}

	user, err := findTwoFactorUser(ctx, userID, deps)
	if err != nil {
		return TwoFactorEnrollment{}, err
	}

	if user.TwoFactorEnabled && user.TwoFactorSecret != "" {
		return TwoFactorEnrollment{
			Secret:          user.TwoFactorSecret,
			ProvisioningURI: deps.ProvisioningURI(user.TwoFactorSecret, user.Email),
			Existing:        true,
		}, nil
	}

	secret, err := deps.GenerateSecret()
	if err != nil {
		return TwoFactorEnrollment{}, errors.Join(deps.Errors.Unavailable, err)
	}

	if deps.EnableIfDisabled != nil {
		user, err = deps.EnableIfDisabled(ctx, user.ID, secret)
	} else {
		_, err = deps.UpdateTwoFactor(ctx, user.ID, secret, true)
		if err == nil {
			user, err = deps.FindByID(ctx, user.ID)
		}
	}
	if err != nil {
		if deps.IsNotFound(err) {
			return TwoFactorEnrollment{}, deps.Errors.UserNotFound
		}
		return TwoFactorEnrollment{}, deps.MapStoreError(err)
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return TwoFactorEnrollment{}, deps.Errors.Unavailable
	}

	deps.MetricInc(deps.Metrics.TwoFactorEnabled)
	deps.EmitAudit(ctx, deps.Events.TwoFactorEnabled, true, user.ID, nil, nil)
	return TwoFactorEnrollment{
		Secret:          user.TwoFactorSecret,
		ProvisioningURI: deps.ProvisioningURI(user.TwoFactorSecret, user.Email),
		Existing:        user.TwoFactorSecret != secret,
	}, nil
}

// RunDisableTwoFactor clears the flag and the secret.
func RunDisableTwoFactor(ctx context.Context, userID string, deps TwoFactorDeps) (UserRecord, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.FindByID == nil || deps.UpdateTwoFactor == nil {
		return UserRecord{}, deps.Errors.EngineNotReady
	}

	user, err := findTwoFactorUser(ctx, userID, deps)
	if err != nil {
		return UserRecord{}, err
	}
	if !user.TwoFactorEnabled {
		deps.EmitAudit(ctx, deps.Events.TwoFactorDisabled, false, user.ID, deps.Errors.AlreadyDisabled, nil)
		return UserRecord{}, deps.Errors.AlreadyDisabled
	}

	updated, err := deps.UpdateTwoFactor(ctx, user.ID, "", false)
	if err != nil {
		if deps.IsNotFound(err) {
			return UserRecord{}, deps.Errors.UserNotFound
		}
		return UserRecord{}, deps.MapStoreError(err)
	}

	deps.MetricInc(deps.Metrics.TwoFactorDisabled)
	deps.EmitAudit(ctx, deps.Events.TwoFactorDisabled, true, updated.ID, nil, nil)
	return updated, nil
}

// RunVerifyTwoFactor reports whether code matches the user's current TOTP
// window. Only user lookup and throttling produce errors; everything else
// is a plain false.
func RunVerifyTwoFactor(ctx context.Context, userID, code string, deps TwoFactorDeps) (bool, error) {
	_, verified, err := verifyTwoFactor(ctx, userID, code, deps)
	return verified, err
}

// RunCompleteTwoFactorLogin finishes a login that was held back for 2FA.
// The challenge must come from a RunLogin that checked the password. Each
// wrong code counts against the challenge, which is dropped once the cap is
// reached; a verified code consumes it, so it never issues tokens twice.
func RunCompleteTwoFactorLogin(ctx context.Context, challengeID, code string, deps TwoFactorDeps) (UserRecord, TokenPair, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.IssuePair == nil || deps.LoadChallenge == nil || deps.RecordChallengeFailure == nil || deps.ConsumeChallenge == nil {
		return UserRecord{}, TokenPair{}, deps.Errors.EngineNotReady
	}

	rejected := func(userID string, err error) (UserRecord, TokenPair, error) {
		deps.EmitAudit(ctx, deps.Events.ChallengeFailure, false, userID, err, nil)
		return UserRecord{}, TokenPair{}, err
	}

	if challengeID == "" {
		return rejected("", deps.Errors.ChallengeInvalid)
	}
	userID, err := deps.LoadChallenge(ctx, challengeID)
	if err != nil {
		return rejected("", err)
	}

	user, verified, err := verifyTwoFactor(ctx, userID, code, deps)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			_, _ = deps.ConsumeChallenge(ctx, challengeID)
		}
		return UserRecord{}, TokenPair{}, err
	}
	if !verified {
		exceeded, err := deps.RecordChallengeFailure(ctx, challengeID)
		if err != nil {
			return rejected(user.ID, err)
		}
		if exceeded {
			return rejected(user.ID, deps.Errors.AttemptsExceeded)
		}
		return UserRecord{}, TokenPair{}, deps.Errors.TwoFactorInvalid
	}

	consumed, err := deps.ConsumeChallenge(ctx, challengeID)
	if err != nil {
		return UserRecord{}, TokenPair{}, err
	}
	if !consumed {
		return rejected(user.ID, deps.Errors.ChallengeInvalid)
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		return UserRecord{}, TokenPair{}, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, nil, nil)
	return user, pair, nil
}

func verifyTwoFactor(ctx context.Context, userID, code string, deps TwoFactorDeps) (UserRecord, bool, error) {
	normalizeTwoFactorDeps(&deps)

	if deps.FindByID == nil || deps.VerifyCode == nil {
		return UserRecord{}, false, deps.Errors.EngineNotReady
	}

	if err := deps.CheckLimiter(ctx, userID); err != nil {
		return UserRecord{}, false, twoFactorLimited(ctx, userID, deps.MapLimiterError(err), deps)
	}

	user, err := findTwoFactorUser(ctx, userID, deps)
	if err != nil {
		return UserRecord{}, false, err
	}

	if user.TwoFactorSecret == "" || !deps.VerifyCode(user.TwoFactorSecret, code, deps.Now()) {
		deps.MetricInc(deps.Metrics.TwoFactorFailure)
		deps.EmitAudit(ctx, deps.Events.TwoFactorFailure, false, user.ID, deps.Errors.TwoFactorInvalid, nil)
		if err := deps.HitLimiter(ctx, user.ID); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.TwoFactorRateLimited) {
				deps.MetricInc(deps.Metrics.TwoFactorRateLimited)
				deps.EmitRateLimit(ctx, "two_factor", nil)
			}
		}
		return user, false, nil
	}

	_ = deps.ResetLimiter(ctx, user.ID)
	deps.MetricInc(deps.Metrics.TwoFactorSuccess)
	deps.EmitAudit(ctx, deps.Events.TwoFactorSuccess, true, user.ID, nil, nil)
	return user, true, nil
}

func twoFactorLimited(ctx context.Context, userID string, mapped error, deps TwoFactorDeps) error {
	if errors.Is(mapped, deps.Errors.TwoFactorRateLimited) {
		deps.MetricInc(deps.Metrics.TwoFactorRateLimited)
		deps.EmitAudit(ctx, deps.Events.TwoFactorRateLimited, false, userID, mapped, nil)
		deps.EmitRateLimit(ctx, "two_factor", nil)
	}
	return mapped
}

func findTwoFactorUser(ctx context.Context, userID string, deps TwoFactorDeps) (UserRecord, error) {
	if userID == "" {
		return UserRecord{}, deps.Errors.UserNotFound
	}
	user, err := deps.FindByID(ctx, userID)
	if err != nil {
		if isContextError(err) {
			return UserRecord{}, err
		}
		if deps.IsNotFound(err) {
			return UserRecord{}, deps.Errors.UserNotFound
		}
		return UserRecord{}, deps.MapStoreError(err)
	}
	return user, nil
}

func normalizeTwoFactorDeps(deps *TwoFactorDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.ProvisioningURI == nil {
		deps.ProvisioningURI = func(string, string) string { return "" }
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string) error { return nil }
	}
	if deps.HitLimiter == nil {
		deps.HitLimiter = func(context.Context, string) error { return nil }
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.TwoFactorRateLimited }
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
