package authcore

import "errors"

// Error kinds. Every error the Engine returns for an expected outcome wraps
// exactly one of these, so callers can classify with errors.Is or [KindOf].
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyInState   = errors.New("already in requested state")
	ErrValidationFailed = errors.New("validation failed")
)

// ErrRateLimited is additionally wrapped by every throttling error. It is
// not a kind; throttled requests are Unauthorized.
var ErrRateLimited = errors.New("rate limited")

var (
	ErrUserNotFound = kindError(ErrNotFound, "user not found")

	ErrInvalidCredentials = kindError(ErrUnauthorized, "invalid credentials")
	ErrInvalidToken       = kindError(ErrUnauthorized, "invalid token")
	// ErrCodeInvalid covers absent, expired and already redeemed codes alike.
	ErrCodeInvalid       = kindError(ErrUnauthorized, "auth code expired or invalid")
	ErrResetTokenInvalid = kindError(ErrUnauthorized, "reset token invalid or expired")
	ErrTwoFactorInvalid  = kindError(ErrUnauthorized, "invalid two-factor code")
	// ErrTwoFactorChallengeInvalid covers absent, expired and completed
	// login challenges.
	ErrTwoFactorChallengeInvalid = kindError(ErrUnauthorized, "2FA challenge expired or invalid")

	ErrLoginRateLimited     = limitedError("login rate limited")
	ErrTwoFactorRateLimited = limitedError("two-factor attempts rate limited")
	ErrResetRateLimited     = limitedError("password reset rate limited")
	ErrCodeRateLimited      = limitedError("code exchange rate limited")
	// ErrTwoFactorAttemptsExceeded means the login challenge was discarded
	// after too many wrong codes; the client must sign in again.
	ErrTwoFactorAttemptsExceeded = limitedError("too many 2FA attempts, sign in again")

	ErrAccountExists = kindError(ErrConflict, "account already exists")

	ErrTwoFactorAlreadyDisabled = kindError(ErrAlreadyInState, "2FA is already disabled")

	ErrInvalidInput = kindError(ErrValidationFailed, "invalid input")
)

var (
	// ErrStoreUnavailable wraps infrastructure failures from the user store,
	// code store or Redis.
	ErrStoreUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady means a required collaborator was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type classifiedError struct {
	msg     string
	parents []error
}

func kindError(kind error, msg string) error {
	return &classifiedError{msg: msg, parents: []error{kind}}
}

func limitedError(msg string) error {
	return &classifiedError{msg: msg, parents: []error{ErrUnauthorized, ErrRateLimited}}
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() []error { return e.parents }

// KindOf returns the kind sentinel err belongs to, or nil for
// infrastructure and unexpected errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrConflict, ErrAlreadyInState, ErrValidationFailed} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
