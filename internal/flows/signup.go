package flows

import (
	"context"
	"errors"
	"strings"
)

type SignupInput struct {
	Email    string
	Password string
	Name     string
}

type SignupMetrics struct {
	SignupSuccess   int
	SignupFailure   int
	SignupDuplicate int
}

type SignupEvents struct {
	SignupSuccess   string
	SignupFailure   string
	SignupDuplicate string
}

type SignupErrors struct {
	EngineNotReady error
	InvalidInput   error
	AccountExists  error
}

type SignupDeps struct {
	FindByEmail   func(context.Context, string) (UserRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error
	HashPassword  func(string) (string, error)
	CreateUser    func(ctx context.Context, email, name, passwordHash string) (UserRecord, error)
	IssuePair     func(UserRecord) (TokenPair, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics SignupMetrics
	Events  SignupEvents
	Errors  SignupErrors
}

// RunSignup creates an account for an unused email and issues its first
// token pair. An existing account is never touched.
func RunSignup(ctx context.Context, in SignupInput, deps SignupDeps) (UserRecord, TokenPair, error) {
	normalizeSignupDeps(&deps)

	if deps.FindByEmail == nil || deps.HashPassword == nil || deps.CreateUser == nil || deps.IssuePair == nil {
		return UserRecord{}, TokenPair{}, deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		deps.MetricInc(deps.Metrics.SignupFailure)
		deps.EmitAudit(ctx, deps.Events.SignupFailure, false, "", deps.Errors.InvalidInput, reasonMetadata(email, "empty_field"))
		return UserRecord{}, TokenPair{}, deps.Errors.InvalidInput
	}

	existing, err := deps.FindByEmail(ctx, email)
	switch {
	case err == nil:
		deps.MetricInc(deps.Metrics.SignupDuplicate)
		deps.EmitAudit(ctx, deps.Events.SignupDuplicate, false, existing.ID, deps.Errors.AccountExists, emailMetadata(email))
		return UserRecord{}, TokenPair{}, deps.Errors.AccountExists
	case isContextError(err):
		return UserRecord{}, TokenPair{}, err
	case !deps.IsNotFound(err):
		return UserRecord{}, TokenPair{}, deps.MapStoreError(err)
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignupFailure)
		deps.EmitAudit(ctx, deps.Events.SignupFailure, false, "", err, reasonMetadata(email, "hash_failed"))
		return UserRecord{}, TokenPair{}, err
	}

	user, err := deps.CreateUser(ctx, email, strings.TrimSpace(in.Name), hash)
	if err != nil {
		// Lost a race with a concurrent signup for the same email.
		if errors.Is(err, deps.Errors.AccountExists) {
			deps.MetricInc(deps.Metrics.SignupDuplicate)
			deps.EmitAudit(ctx, deps.Events.SignupDuplicate, false, "", deps.Errors.AccountExists, emailMetadata(email))
			return UserRecord{}, TokenPair{}, deps.Errors.AccountExists
		}
		deps.MetricInc(deps.Metrics.SignupFailure)
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.SignupFailure, false, "", mapped, reasonMetadata(email, "create_failed"))
		return UserRecord{}, TokenPair{}, mapped
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignupFailure)
		deps.EmitAudit(ctx, deps.Events.SignupFailure, false, user.ID, err, reasonMetadata(email, "token_issue"))
		return UserRecord{}, TokenPair{}, err
	}

	deps.MetricInc(deps.Metrics.SignupSuccess)
	deps.EmitAudit(ctx, deps.Events.SignupSuccess, true, user.ID, nil, emailMetadata(email))
	return user, pair, nil
}

func normalizeSignupDeps(deps *SignupDeps) {
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
