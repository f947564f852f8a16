package authcore

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{ErrUserNotFound, ErrNotFound},
		{ErrInvalidCredentials, ErrUnauthorized},
		{ErrInvalidToken, ErrUnauthorized},
		{ErrCodeInvalid, ErrUnauthorized},
		{ErrResetTokenInvalid, ErrUnauthorized},
		{ErrTwoFactorInvalid, ErrUnauthorized},
		{ErrTwoFactorChallengeInvalid, ErrUnauthorized},
		{ErrTwoFactorAttemptsExceeded, ErrUnauthorized},
		{ErrLoginRateLimited, ErrUnauthorized},
		{ErrCodeRateLimited, ErrUnauthorized},
		{ErrAccountExists, ErrConflict},
		{ErrTwoFactorAlreadyDisabled, ErrAlreadyInState},
		{ErrInvalidInput, ErrValidationFailed},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.kind)
		}
		wrapped := fmt.Errorf("handler: %w", tc.err)
		if KindOf(wrapped) != tc.kind || !errors.Is(wrapped, tc.err) {
			t.Fatalf("expected wrapped %v to keep its kind", tc.err)
		}
	}
}

func TestRateLimitedErrorsCarryMarker(t *testing.T) {
	for _, err := range []error{ErrLoginRateLimited, ErrTwoFactorRateLimited, ErrTwoFactorAttemptsExceeded, ErrResetRateLimited, ErrCodeRateLimited} {
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected %v to be rate limited", err)
		}
	}
	if errors.Is(ErrInvalidCredentials, ErrRateLimited) {
		t.Fatal("plain credential failures are not rate limited")
	}
}

func TestInfrastructureErrorsHaveNoKind(t *testing.T) {
	for _, err := range []error{ErrStoreUnavailable, ErrEngineNotReady, errors.New("boom"), nil} {
		if kind := KindOf(err); kind != nil {
			t.Fatalf("KindOf(%v) = %v, want nil", err, kind)
		}
	}
}

func TestAuditErrorCodes(t *testing.T) {
	cases := map[error]AuditErrorCode{
		ErrLoginRateLimited:          auditErrRateLimited,
		ErrInvalidCredentials:        auditErrInvalidCredentials,
		ErrCodeInvalid:               auditErrCodeInvalid,
		ErrTwoFactorChallengeInvalid: auditErrTwoFactorInvalid,
		ErrAccountExists:             auditErrDuplicate,
		ErrTwoFactorAlreadyDisabled:  auditErrAlreadyInState,
		fmt.Errorf("%w: smtp", errMailDispatch): auditErrMailFailed,
		errors.New("boom"):                      auditErrInternal,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
	if auditErrorCode(nil) != "" {
		t.Fatal("expected empty code for nil")
	}
}
