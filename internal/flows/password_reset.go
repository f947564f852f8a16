package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"
)

// ResetRequestOutcome reports whether the reset mail went out. The reset
// token is persisted either way.
type ResetRequestOutcome struct {
	Sent    bool
	Message string
}

// ResetMessages are the caller-facing outcomes of a reset request.
type ResetMessages struct {
	Sent      string
	NotSent   string
	SendError string
}

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetMailFailure    int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	PasswordResetRateLimited    int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady           error
	InvalidInput             error
	UserNotFound             error
	PasswordResetInvalid     error
	PasswordResetRateLimited error
}

type PasswordResetDeps struct {
	ResetTTL time.Duration
	Subject  string
	Messages ResetMessages

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string

	// RequestLimiter consumes one request for (email, ip).
	RequestLimiter  func(context.Context, string, string) error
	MapLimiterError func(error) error

	FindByEmail      func(context.Context, string) (UserRecord, error)
	FindByResetToken func(context.Context, string) (UserRecord, error)
	IsNotFound       func(error) bool
	MapStoreError    func(error) error
	SetResetToken    func(ctx context.Context, userID, digest string, expiry *time.Time) error
	// ResetCredential stores hash and clears the token in one conditional
	// write that only matches a live digest. A losing caller gets not-found.
	ResetCredential func(ctx context.Context, digest, hash string, now time.Time) (UserRecord, error)
	HashPassword    func(string) (string, error)

	// GenerateToken returns the token to mail and the digest to store.
	GenerateToken func() (token string, digest string, err error)
	HashToken     func(token string) string
	BuildMail     func(name, token string) (htmlBody string)
	// SendMail reports whether the dispatcher accepted the message.
	SendMail      func(ctx context.Context, to, subject, htmlBody string) (bool, error)
	OnMailFailure func(ctx context.Context, userID string, err error)

	MetricInc     func(int)
	EmitAudit     AuditFunc
	EmitRateLimit RateLimitFunc

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset stores a fresh reset token digest for email and
// mails the raw token. Mail failure is reported in the outcome, not as an
// error.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) (ResetRequestOutcome, error) {
	normalizePasswordResetDeps(&deps)

	if deps.FindByEmail == nil || deps.SetResetToken == nil || deps.GenerateToken == nil || deps.SendMail == nil {
		return ResetRequestOutcome{}, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", deps.Errors.InvalidInput, reasonMetadata("", "empty_email"))
		return ResetRequestOutcome{}, deps.Errors.InvalidInput
	}

	if err := deps.RequestLimiter(ctx, email, deps.ClientIPFromContext(ctx)); err != nil {
		mapped := deps.MapLimiterError(err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", mapped, emailMetadata(email))
		if errors.Is(mapped, deps.Errors.PasswordResetRateLimited) {
			deps.MetricInc(deps.Metrics.PasswordResetRateLimited)
			deps.EmitRateLimit(ctx, "password_reset_request", emailMetadata(email))
		}
		return ResetRequestOutcome{}, mapped
	}

	user, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if isContextError(err) {
			return ResetRequestOutcome{}, err
		}
		if !deps.IsNotFound(err) {
			return ResetRequestOutcome{}, deps.MapStoreError(err)
		}
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", deps.Errors.UserNotFound, emailMetadata(email))
		return ResetRequestOutcome{}, deps.Errors.UserNotFound
	}

	token, digest, err := deps.GenerateToken()
	if err != nil {
		return ResetRequestOutcome{}, err
	}
	expiry := deps.Now().Add(deps.ResetTTL)
	if err := deps.SetResetToken(ctx, user.ID, digest, &expiry); err != nil {
		return ResetRequestOutcome{}, deps.MapStoreError(err)
	}
	deps.MetricInc(deps.Metrics.PasswordResetRequest)

	accepted, err := deps.SendMail(ctx, user.Email, deps.Subject, deps.BuildMail(user.Name, token))
	token = ""
	switch {
	case err != nil:
		deps.OnMailFailure(ctx, user.ID, err)
		deps.MetricInc(deps.Metrics.PasswordResetMailFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.ID, err, reasonMetadata(email, "mail_error"))
		return ResetRequestOutcome{Sent: false, Message: deps.Messages.SendError}, nil
	case !accepted:
		deps.MetricInc(deps.Metrics.PasswordResetMailFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.ID, nil, reasonMetadata(email, "mail_rejected"))
		return ResetRequestOutcome{Sent: false, Message: deps.Messages.NotSent}, nil
	}

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, user.ID, nil, emailMetadata(email))
	return ResetRequestOutcome{Sent: true, Message: deps.Messages.Sent}, nil
}

// RunResetPassword swaps the credential for the holder of a live reset
// token and clears the token. An unknown, mismatched or expired token
// leaves the credential untouched. Of concurrent calls presenting the same
// token, only one gets past ResetCredential.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) (UserRecord, error) {
	normalizePasswordResetDeps(&deps)

	if deps.FindByResetToken == nil || deps.HashToken == nil || deps.HashPassword == nil || deps.ResetCredential == nil {
		return UserRecord{}, deps.Errors.EngineNotReady
	}

	invalid := func(userID, reason string) (UserRecord, error) {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, userID, deps.Errors.PasswordResetInvalid, reasonMetadata("", reason))
		return UserRecord{}, deps.Errors.PasswordResetInvalid
	}

	if token == "" {
		return invalid("", "empty_token")
	}
	if newPassword == "" {
		return UserRecord{}, deps.Errors.InvalidInput
	}

	digest := deps.HashToken(token)
	user, err := deps.FindByResetToken(ctx, digest)
	if err != nil {
		if isContextError(err) {
			return UserRecord{}, err
		}
		if !deps.IsNotFound(err) {
			return UserRecord{}, deps.MapStoreError(err)
		}
		return invalid("", "unknown_token")
	}

	if subtle.ConstantTimeCompare([]byte(user.PasswordResetToken), []byte(digest)) != 1 {
		return invalid(user.ID, "token_mismatch")
	}
	if user.PasswordResetExpiry == nil || !deps.Now().Before(*user.PasswordResetExpiry) {
		return invalid(user.ID, "token_expired")
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return UserRecord{}, err
	}
	updated, err := deps.ResetCredential(ctx, digest, hash, deps.Now())
	if err != nil {
		if isContextError(err) {
			return UserRecord{}, err
		}
		if deps.IsNotFound(err) {
			return invalid(user.ID, "token_consumed")
		}
		return UserRecord{}, deps.MapStoreError(err)
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, updated.ID, nil, nil)
	return updated, nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.RequestLimiter == nil {
		deps.RequestLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.PasswordResetRateLimited }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.BuildMail == nil {
		deps.BuildMail = func(_, token string) string { return token }
	}
	if deps.OnMailFailure == nil {
		deps.OnMailFailure = func(context.Context, string, error) {}
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
