package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CodeRecord is the flow-local view of an issued authorization code.
type CodeRecord struct {
	Code      string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type AuthCodeMetrics struct {
	CodeIssued      int
	CodeExchanged   int
	CodeInvalid     int
	CodeRateLimited int
	FederatedSignup int
}

type AuthCodeEvents struct {
	CodeIssued      string
	CodeExchanged   string
	CodeInvalid     string
	FederatedSignup string
}

type AuthCodeErrors struct {
	EngineNotReady  error
	InvalidInput    error
	CodeInvalid     error
	CodeRateLimited error
	UserNotFound    error
	AccountExists   error
}

type AuthCodeDeps struct {
	CodeTTL time.Duration

	ClientIPFromContext func(context.Context) string

	IssueCode     func(ctx context.Context, userID string, ttl time.Duration) (CodeRecord, error)
	RedeemCode    func(ctx context.Context, code string) (string, error)
	IsCodeInvalid func(error) bool

	FindByID      func(context.Context, string) (UserRecord, error)
	FindByEmail   func(context.Context, string) (UserRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error
	CreateUser    func(ctx context.Context, email, name, passwordHash string) (UserRecord, error)
	// UnusablePasswordHash yields a hash no plaintext will match, for
	// accounts created through a federated provider.
	UnusablePasswordHash func() (string, error)

	// Limiter closures take the client IP.
	CheckLimiter    func(context.Context, string) error
	HitLimiter      func(context.Context, string) error
	MapLimiterError func(error) error

	IssuePair func(UserRecord) (TokenPair, error)

	MetricInc     func(int)
	EmitAudit     AuditFunc
	EmitRateLimit RateLimitFunc

	Metrics AuthCodeMetrics
	Events  AuthCodeEvents
	Errors  AuthCodeErrors
}

// RunGenerateCode mints a single-use code bound to userID.
func RunGenerateCode(ctx context.Context, userID string, deps AuthCodeDeps) (CodeRecord, error) {
	normalizeAuthCodeDeps(&deps)

	if deps.IssueCode == nil {
		return CodeRecord{}, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return CodeRecord{}, deps.Errors.InvalidInput
	}

	record, err := deps.IssueCode(ctx, userID, deps.CodeTTL)
	if err != nil {
		return CodeRecord{}, deps.MapStoreError(err)
	}

	deps.MetricInc(deps.Metrics.CodeIssued)
	deps.EmitAudit(ctx, deps.Events.CodeIssued, true, userID, nil, nil)
	return record, nil
}

// RunExchangeCode redeems code and issues tokens for its user. Absent,
// expired and already-used codes all fail with the same error.
func RunExchangeCode(ctx context.Context, code string, deps AuthCodeDeps) (UserRecord, TokenPair, error) {
	normalizeAuthCodeDeps(&deps)

	if deps.RedeemCode == nil || deps.FindByID == nil || deps.IssuePair == nil {
		return UserRecord{}, TokenPair{}, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	if err := deps.CheckLimiter(ctx, ip); err != nil {
		mapped := deps.MapLimiterError(err)
		if errors.Is(mapped, deps.Errors.CodeRateLimited) {
			deps.MetricInc(deps.Metrics.CodeRateLimited)
			deps.EmitRateLimit(ctx, "code_exchange", nil)
		}
		return UserRecord{}, TokenPair{}, mapped
	}

	invalid := func(reason string) (UserRecord, TokenPair, error) {
		_ = deps.HitLimiter(ctx, ip)
		deps.MetricInc(deps.Metrics.CodeInvalid)
		deps.EmitAudit(ctx, deps.Events.CodeInvalid, false, "", deps.Errors.CodeInvalid, reasonMetadata("", reason))
		return UserRecord{}, TokenPair{}, deps.Errors.CodeInvalid
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return invalid("empty_code")
	}

	userID, err := deps.RedeemCode(ctx, code)
	if err != nil {
		if deps.IsCodeInvalid(err) {
			return invalid("redeem_rejected")
		}
		return UserRecord{}, TokenPair{}, deps.MapStoreError(err)
	}

	user, err := deps.FindByID(ctx, userID)
	if err != nil {
		if deps.IsNotFound(err) {
			return UserRecord{}, TokenPair{}, deps.Errors.UserNotFound
		}
		return UserRecord{}, TokenPair{}, deps.MapStoreError(err)
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		return UserRecord{}, TokenPair{}, err
	}

	deps.MetricInc(deps.Metrics.CodeExchanged)
	deps.EmitAudit(ctx, deps.Events.CodeExchanged, true, user.ID, nil, nil)
	return user, pair, nil
}

// RunFederatedLogin finds or creates the account for a provider-verified
// email and hands back a code for the client to exchange.
func RunFederatedLogin(ctx context.Context, email, name string, deps AuthCodeDeps) (UserRecord, CodeRecord, error) {
	normalizeAuthCodeDeps(&deps)

	if deps.FindByEmail == nil || deps.CreateUser == nil || deps.UnusablePasswordHash == nil {
		return UserRecord{}, CodeRecord{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" {
		return UserRecord{}, CodeRecord{}, deps.Errors.InvalidInput
	}

	user, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return UserRecord{}, CodeRecord{}, deps.MapStoreError(err)
		}
		user, err = createFederatedUser(ctx, email, strings.TrimSpace(name), deps)
		if err != nil {
			return UserRecord{}, CodeRecord{}, err
		}
	}

	record, err := RunGenerateCode(ctx, user.ID, deps)
	if err != nil {
		return UserRecord{}, CodeRecord{}, err
	}
	return user, record, nil
}

func createFederatedUser(ctx context.Context, email, name string, deps AuthCodeDeps) (UserRecord, error) {
	hash, err := deps.UnusablePasswordHash()
	if err != nil {
		return UserRecord{}, err
	}

	user, err := deps.CreateUser(ctx, email, name, hash)
	if err == nil {
		deps.MetricInc(deps.Metrics.FederatedSignup)
		deps.EmitAudit(ctx, deps.Events.FederatedSignup, true, user.ID, nil, emailMetadata(email))
		return user, nil
	}
	if !errors.Is(err, deps.Errors.AccountExists) {
		return UserRecord{}, deps.MapStoreError(err)
	}

	// A concurrent callback created it first.
	user, err = deps.FindByEmail(ctx, email)
	if err != nil {
		return UserRecord{}, deps.MapStoreError(err)
	}
	return user, nil
}

func normalizeAuthCodeDeps(deps *AuthCodeDeps) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsCodeInvalid == nil {
		deps.IsCodeInvalid = func(err error) bool { return errors.Is(err, deps.Errors.CodeInvalid) }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.CheckLimiter == nil {
		deps.CheckLimiter = func(context.Context, string) error { return nil }
	}
	if deps.HitLimiter == nil {
		deps.HitLimiter = func(context.Context, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.CodeRateLimited }
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
