package authcore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/MrEthical07/authcore/internal"
	internalflows "github.com/MrEthical07/authcore/internal/flows"
)

var errMailDispatch = errors.New("mail dispatch failed")

var resetMessages = internalflows.ResetMessages{
	Sent:      "Reset password email sent successfully.",
	NotSent:   "Failed to send reset password email.",
	SendError: "An error occurred while sending the reset password email.",
}

var resetMailTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid for {{.Validity}}.</p>
<p><a href="{{.ResetURL}}">Reset your password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>
</body>
</html>
`))

// ForgetPassword stores a fresh reset token for email and mails the link.
// A mail failure is not an error: the token is already stored and the
// result says the mail did not go out.
func (e *Engine) ForgetPassword(ctx context.Context, email string) (*ResetRequestResult, error) {
	outcome, err := internalflows.RunRequestPasswordReset(ctx, email, e.flows.PasswordReset)
	if err != nil {
		return nil, err
	}
	return &ResetRequestResult{Sent: outcome.Sent, Message: outcome.Message}, nil
}

// ResetPassword sets newPassword for the holder of a live reset token and
// clears the token in the same store write, so it works once even under
// concurrent use.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (*User, error) {
	user, err := internalflows.RunResetPassword(ctx, token, newPassword, e.flows.PasswordReset)
	if err != nil {
		return nil, err
	}
	return fromFlowUser(user), nil
}

func (e *Engine) renderResetMail(name, token string) string {
	data := struct {
		Name     string
		ResetURL string
		Validity time.Duration
	}{
		Name:     name,
		ResetURL: e.config.resetLink(token),
		Validity: e.config.PasswordReset.TTL,
	}
	if data.Name == "" {
		data.Name = "there"
	}

	var buf bytes.Buffer
	if err := resetMailTemplate.Execute(&buf, data); err != nil {
		// Only a broken writer fails here; fall back to the bare link.
		return data.ResetURL
	}
	return buf.String()
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	emailPolicy := e.config.limitPolicy(limitPrefixResetRequest, e.config.RateLimit.ResetRequest)
	ipPolicy := e.config.limitPolicy(limitPrefixResetRequestIP, e.config.RateLimit.ResetRequestIP)

	deps := internalflows.PasswordResetDeps{
		ResetTTL:            e.config.PasswordReset.TTL,
		Subject:             e.config.PasswordReset.Subject,
		Messages:            resetMessages,
		ClientIPFromContext: clientIPFromContext,
		RequestLimiter: func(ctx context.Context, email, ip string) error {
			emailErr := e.limiterHit(ctx, emailPolicy, email)
			ipErr := e.limiterHit(ctx, ipPolicy, ip)
			if emailErr != nil {
				return emailErr
			}
			return ipErr
		},
		MapLimiterError: limiterErrorMapper(ErrResetRateLimited),
		FindByEmail:     e.findByEmail,
		FindByResetToken: func(ctx context.Context, digest string) (internalflows.UserRecord, error) {
			user, err := e.userStore.FindByResetToken(ctx, digest)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(user)
		},
		IsNotFound:    isUserNotFound,
		MapStoreError: mapStoreError,
		SetResetToken: e.userStore.SetResetToken,
		ResetCredential: func(ctx context.Context, digest, hash string, now time.Time) (internalflows.UserRecord, error) {
			user, err := e.userStore.ResetCredential(ctx, digest, hash, now)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(user)
		},
		HashPassword:  e.passwordHash.Hash,
		GenerateToken: internal.NewResetToken,
		HashToken:     internal.HashResetToken,
		BuildMail:     e.renderResetMail,
		OnMailFailure: func(ctx context.Context, userID string, err error) {
			e.logWarn(ctx, "password_reset_mail", userID, err)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetMailFailure:    int(MetricPasswordResetMailFailure),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			PasswordResetRateLimited:    int(MetricPasswordResetRateLimited),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:           ErrEngineNotReady,
			InvalidInput:             ErrInvalidInput,
			UserNotFound:             ErrUserNotFound,
			PasswordResetInvalid:     ErrResetTokenInvalid,
			PasswordResetRateLimited: ErrResetRateLimited,
		},
	}

	if e.mailer != nil {
		deps.SendMail = func(ctx context.Context, to, subject, htmlBody string) (bool, error) {
			result, err := e.mailer.Send(ctx, to, subject, htmlBody)
			if err != nil {
				return false, fmt.Errorf("%w: %v", errMailDispatch, err)
			}
			return result.Delivered(), nil
		}
	}

	return deps
}
