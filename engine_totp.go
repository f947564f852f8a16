package authcore

import (
	"context"

	internalflows "github.com/MrEthical07/authcore/internal/flows"
)

// Enable2FA turns on TOTP for userID and returns the secret to enroll. It
// is idempotent: a user who already has 2FA gets the stored secret back,
// never a regenerated one.
func (e *Engine) Enable2FA(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	enrollment, err := internalflows.RunEnableTwoFactor(ctx, userID, e.flows.TwoFactor)
	if err != nil {
		return nil, err
	}
	return &TwoFactorEnrollment{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		Existing:        enrollment.Existing,
	}, nil
}

// Disable2FA clears the flag and the secret. It fails with
// ErrTwoFactorAlreadyDisabled when 2FA is not on.
func (e *Engine) Disable2FA(ctx context.Context, userID string) (*User, error) {
	user, err := internalflows.RunDisableTwoFactor(ctx, userID, e.flows.TwoFactor)
	if err != nil {
		return nil, err
	}
	return fromFlowUser(user), nil
}

// Verify2FA checks code against the user's current TOTP window (±Skew
// steps). A wrong or malformed code is {Verified: false}, not an error.
func (e *Engine) Verify2FA(ctx context.Context, userID, code string) (*VerifyResult, error) {
	verified, err := internalflows.RunVerifyTwoFactor(ctx, userID, code, e.flows.TwoFactor)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Verified: verified}, nil
}

// CompleteTwoFactorLogin issues tokens for a login that returned
// TwoFactorRequiredResult, once code verifies. challengeID is the one Login
// handed out; an unknown, expired or already used id is
// ErrTwoFactorChallengeInvalid, and the LoginMaxAttempts-th wrong code
// drops the challenge with ErrTwoFactorAttemptsExceeded.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, challengeID, code string) (*AuthenticatedResult, error) {
	user, pair, err := internalflows.RunCompleteTwoFactorLogin(ctx, challengeID, code, e.flows.TwoFactor)
	if err != nil {
		return nil, err
	}
	return &AuthenticatedResult{
		User:   fromFlowUser(user),
		Tokens: fromFlowPair(pair),
	}, nil
}

func (e *Engine) twoFactorFlowDeps() internalflows.TwoFactorDeps {
	policy := e.config.limitPolicy(limitPrefixTwoFactor, e.config.RateLimit.TwoFactor)

	deps := internalflows.TwoFactorDeps{
		FindByID:      e.findByID,
		IsNotFound:    isUserNotFound,
		MapStoreError: mapStoreError,
		UpdateTwoFactor: func(ctx context.Context, userID, secret string, enabled bool) (internalflows.UserRecord, error) {
			user, err := e.userStore.UpdateTwoFactor(ctx, userID, secret, enabled)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(user)
		},
		GenerateSecret:  e.totp.GenerateSecret,
		ProvisioningURI: e.totp.ProvisioningURI,
		VerifyCode:      e.totp.Verify,
		CheckLimiter: func(ctx context.Context, userID string) error {
			return e.limiterCheck(ctx, policy, userID)
		},
		HitLimiter: func(ctx context.Context, userID string) error {
			return e.limiterHit(ctx, policy, userID)
		},
		ResetLimiter: func(ctx context.Context, userID string) error {
			return e.limiterReset(ctx, policy, userID)
		},
		MapLimiterError:        limiterErrorMapper(ErrTwoFactorRateLimited),
		LoadChallenge:          e.loadLoginChallenge,
		RecordChallengeFailure: e.recordLoginChallengeFailure,
		ConsumeChallenge:       e.consumeLoginChallenge,
		IssuePair:              e.issuePair,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.TwoFactorMetrics{
			TwoFactorEnabled:     int(MetricTwoFactorEnabled),
			TwoFactorDisabled:    int(MetricTwoFactorDisabled),
			TwoFactorSuccess:     int(MetricTwoFactorSuccess),
			TwoFactorFailure:     int(MetricTwoFactorFailure),
			TwoFactorRateLimited: int(MetricTwoFactorRateLimited),
			LoginSuccess:         int(MetricLoginSuccess),
		},
		Events: internalflows.TwoFactorEvents{
			TwoFactorEnabled:     auditEventTwoFactorEnabled,
			TwoFactorDisabled:    auditEventTwoFactorDisabled,
			TwoFactorSuccess:     auditEventTwoFactorSuccess,
			TwoFactorFailure:     auditEventTwoFactorFailure,
			TwoFactorRateLimited: auditEventTwoFactorRateLimited,
			LoginSuccess:         auditEventTwoFactorLogin,
			ChallengeFailure:     auditEventTwoFactorChallenge,
		},
		Errors: internalflows.TwoFactorErrors{
			EngineNotReady:       ErrEngineNotReady,
			UserNotFound:         ErrUserNotFound,
			AlreadyDisabled:      ErrTwoFactorAlreadyDisabled,
			TwoFactorInvalid:     ErrTwoFactorInvalid,
			TwoFactorRateLimited: ErrTwoFactorRateLimited,
			Unavailable:          ErrStoreUnavailable,
			ChallengeInvalid:     ErrTwoFactorChallengeInvalid,
			AttemptsExceeded:     ErrTwoFactorAttemptsExceeded,
		},
	}

	if enroller, ok := e.userStore.(TwoFactorEnroller); ok {
		deps.EnableIfDisabled = func(ctx context.Context, userID, secret string) (internalflows.UserRecord, error) {
			user, err := enroller.EnableTwoFactorIfDisabled(ctx, userID, secret)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(user)
		}
	}

	return deps
}
