package authcore

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/authcore/internal/flows"
)

const twoFactorRequiredMessage = "Two-factor authentication required. Submit your authenticator code to complete login."

// Login authenticates email and password. The result is an
// *AuthenticatedResult, or a *TwoFactorRequiredResult carrying no tokens
// when the account has 2FA enabled. Its ChallengeID is single-use and is
// the only way into CompleteTwoFactorLogin. An unknown email and a wrong password
// both yield ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	outcome, err := internalflows.RunLogin(ctx, email, password, e.flows.Login)
	if err != nil {
		return nil, err
	}

	if outcome.TwoFactorRequired {
		return &TwoFactorRequiredResult{
			ChallengeID:    outcome.ChallengeID,
			ExpiresAt:      time.Now().Add(e.config.TOTP.LoginChallengeTTL),
			VerifyEndpoint: e.config.twoFactorEndpoint(),
			Message:        twoFactorRequiredMessage,
		}, nil
	}
	return &AuthenticatedResult{
		User:   fromFlowUser(outcome.User),
		Tokens: fromFlowPair(outcome.Tokens),
	}, nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	emailPolicy := e.config.limitPolicy(limitPrefixLogin, e.config.RateLimit.Login)
	ipPolicy := e.config.limitPolicy(limitPrefixLoginIP, e.config.RateLimit.LoginIP)

	return internalflows.LoginDeps{
		UpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		ClientIPFromContext: clientIPFromContext,
		CheckLimiter: func(ctx context.Context, email, ip string) error {
			if err := e.limiterCheck(ctx, emailPolicy, email); err != nil {
				return err
			}
			return e.limiterCheck(ctx, ipPolicy, ip)
		},
		HitLimiter: func(ctx context.Context, email, ip string) error {
			emailErr := e.limiterHit(ctx, emailPolicy, email)
			ipErr := e.limiterHit(ctx, ipPolicy, ip)
			if emailErr != nil {
				return emailErr
			}
			return ipErr
		},
		ResetLimiter: func(ctx context.Context, email, _ string) error {
			return e.limiterReset(ctx, emailPolicy, email)
		},
		MapLimiterError:  limiterErrorMapper(ErrLoginRateLimited),
		FindByEmail:      e.findByEmail,
		IsNotFound:       isUserNotFound,
		MapStoreError:    mapStoreError,
		VerifyPassword:   e.passwordHash.Verify,
		NeedsUpgrade:     e.passwordHash.NeedsUpgrade,
		HashPassword:     e.passwordHash.Hash,
		UpdateCredential: func(ctx context.Context, userID, hash string) error {
			_, err := e.userStore.UpdateCredential(ctx, userID, hash)
			return err
		},
		OnUpgradeFailure: func(ctx context.Context, userID string, err error) {
			e.logWarn(ctx, "password_upgrade", userID, err)
		},
		CreateChallenge: e.createLoginChallenge,
		IssuePair:       e.issuePair,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:      int(MetricLoginSuccess),
			LoginFailure:      int(MetricLoginFailure),
			LoginRateLimited:  int(MetricLoginRateLimited),
			TwoFactorRequired: int(MetricLoginTwoFactorRequired),
			PasswordUpgraded:  int(MetricPasswordUpgraded),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:      auditEventLoginSuccess,
			LoginFailure:      auditEventLoginFailure,
			LoginRateLimited:  auditEventLoginRateLimited,
			TwoFactorRequired: auditEventLoginTwoFactor,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			LoginRateLimited:   ErrLoginRateLimited,
		},
	}
}
