package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal"
	internalflows "github.com/MrEthical07/authcore/internal/flows"
)

// GenerateCode issues a single-use authorization code for user, valid for
// AuthCode.TTL.
func (e *Engine) GenerateCode(ctx context.Context, user *User) (*AuthorizationCode, error) {
	if user == nil {
		return nil, ErrInvalidInput
	}
	record, err := internalflows.RunGenerateCode(ctx, user.ID, e.flows.AuthCode)
	if err != nil {
		return nil, err
	}
	return fromFlowCode(record), nil
}

// ExchangeCodeWithToken redeems code and issues a token pair for the user
// it was bound to. Absent, expired and already redeemed codes all fail with
// ErrCodeInvalid.
func (e *Engine) ExchangeCodeWithToken(ctx context.Context, code string) (*TokenPair, error) {
	_, pair, err := internalflows.RunExchangeCode(ctx, code, e.flows.AuthCode)
	if err != nil {
		return nil, err
	}
	tokens := fromFlowPair(pair)
	return &tokens, nil
}

// FederatedLogin finds or creates the account for a provider-verified
// profile and returns a code for the client to exchange. Accounts created
// here have a password nobody knows.
func (e *Engine) FederatedLogin(ctx context.Context, profile FederatedProfile) (*AuthorizationCode, error) {
	_, record, err := internalflows.RunFederatedLogin(ctx, profile.Email, profile.Name, e.flows.AuthCode)
	if err != nil {
		return nil, err
	}
	return fromFlowCode(record), nil
}

func (e *Engine) authCodeFlowDeps() internalflows.AuthCodeDeps {
	policy := e.config.limitPolicy(limitPrefixCodeExchange, e.config.RateLimit.CodeExchange)

	return internalflows.AuthCodeDeps{
		CodeTTL:             e.config.AuthCode.TTL,
		ClientIPFromContext: clientIPFromContext,
		IssueCode: func(ctx context.Context, userID string, ttl time.Duration) (internalflows.CodeRecord, error) {
			code, err := e.codeStore.Issue(ctx, userID, ttl)
			if err != nil {
				return internalflows.CodeRecord{}, err
			}
			return internalflows.CodeRecord{
				Code:      code.Code,
				UserID:    code.UserID,
				ExpiresAt: code.ExpiresAt,
				CreatedAt: code.CreatedAt,
			}, nil
		},
		RedeemCode: e.codeStore.Redeem,
		IsCodeInvalid: func(err error) bool {
			return errors.Is(err, ErrCodeInvalid)
		},
		FindByID:      e.findByID,
		FindByEmail:   e.findByEmail,
		IsNotFound:    isUserNotFound,
		MapStoreError: mapStoreError,
		CreateUser:    e.createUser,
		UnusablePasswordHash: func() (string, error) {
			secret, err := internal.NewOpaqueSecret()
			if err != nil {
				return "", err
			}
			return e.passwordHash.Hash(secret)
		},
		CheckLimiter: func(ctx context.Context, ip string) error {
			return e.limiterCheck(ctx, policy, ip)
		},
		HitLimiter: func(ctx context.Context, ip string) error {
			return e.limiterHit(ctx, policy, ip)
		},
		MapLimiterError: limiterErrorMapper(ErrCodeRateLimited),
		IssuePair:       e.issuePair,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.AuthCodeMetrics{
			CodeIssued:      int(MetricCodeIssued),
			CodeExchanged:   int(MetricCodeExchanged),
			CodeInvalid:     int(MetricCodeInvalid),
			CodeRateLimited: int(MetricCodeRateLimited),
			FederatedSignup: int(MetricFederatedSignup),
		},
		Events: internalflows.AuthCodeEvents{
			CodeIssued:      auditEventCodeIssued,
			CodeExchanged:   auditEventCodeExchanged,
			CodeInvalid:     auditEventCodeInvalid,
			FederatedSignup: auditEventFederatedSignup,
		},
		Errors: internalflows.AuthCodeErrors{
			EngineNotReady:  ErrEngineNotReady,
			InvalidInput:    ErrInvalidInput,
			CodeInvalid:     ErrCodeInvalid,
			CodeRateLimited: ErrCodeRateLimited,
			UserNotFound:    ErrUserNotFound,
			AccountExists:   ErrAccountExists,
		},
	}
}

func fromFlowCode(record internalflows.CodeRecord) *AuthorizationCode {
	return &AuthorizationCode{
		Code:      record.Code,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	}
}
