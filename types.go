package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// User is the account record owned by a [UserStore].
//
// Invariant: TwoFactorEnabled implies TwoFactorSecret != "".
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string

	TwoFactorEnabled bool
	TwoFactorSecret  string

	// PasswordResetToken holds the SHA-256 hex digest of the mailed token,
	// never the token itself.
	PasswordResetToken  string
	PasswordResetExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser is the input to [UserStore.Create].
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// UserStore persists accounts. Lookups return [ErrUserNotFound] when
// nothing matches; Create returns [ErrAccountExists] for a taken email.
// Other errors are treated as infrastructure failures.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, input NewUser) (*User, error)
	UpdateCredential(ctx context.Context, id, passwordHash string) (*User, error)
	UpdateTwoFactor(ctx context.Context, id, secret string, enabled bool) (*User, error)
	SetResetToken(ctx context.Context, id, token string, expiry *time.Time) error
	FindByResetToken(ctx context.Context, token string) (*User, error)
	// ResetCredential sets passwordHash and clears the reset token in one
	// conditional write that matches only while token is stored and its
	// expiry is after now. No match is ErrUserNotFound.
	ResetCredential(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
}

// TwoFactorEnroller is an optional [UserStore] extension. When implemented,
// Enable2FA stores the secret only if 2FA is still disabled, so concurrent
// enrollments agree on the first secret written.
type TwoFactorEnroller interface {
	EnableTwoFactorIfDisabled(ctx context.Context, id, secret string) (*User, error)
}

// MailResult is what a [MailDispatcher] reports back.
type MailResult struct {
	MessageID string
	Accepted  []string
}

// Delivered reports whether at least one recipient was accepted.
func (r MailResult) Delivered() bool {
	return len(r.Accepted) > 0
}

// MailDispatcher sends one HTML mail.
type MailDispatcher interface {
	Send(ctx context.Context, to, subject, htmlBody string) (MailResult, error)
}

// AuthorizationCode is a short-lived single-use credential bridging a
// federated login callback to a token exchange.
type AuthorizationCode struct {
	Code      string
	UserID    string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// CodeStore issues and redeems authorization codes. Redeem must be atomic:
// of any number of concurrent calls for one code, at most one succeeds.
// Absent, expired and used codes fail with [ErrCodeInvalid].
type CodeStore interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (AuthorizationCode, error)
	Redeem(ctx context.Context, code string) (string, error)
}

// Claims are the verified contents of an access or refresh token.
type Claims = jwt.Claims

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
}

type SignupResult struct {
	User    *User
	Tokens  TokenPair
	Message string
}

// LoginResult is either *AuthenticatedResult or *TwoFactorRequiredResult.
//
//	switch r := result.(type) {
//	case *authcore.AuthenticatedResult:
//	case *authcore.TwoFactorRequiredResult:
//	}
type LoginResult interface {
	loginResult()
}

// AuthenticatedResult carries the tokens of a completed login.
type AuthenticatedResult struct {
	User   *User
	Tokens TokenPair
}

// TwoFactorRequiredResult means the password was correct but no tokens
// were issued; the client must post ChallengeID and a TOTP code to
// VerifyEndpoint before ExpiresAt.
type TwoFactorRequiredResult struct {
	ChallengeID    string
	ExpiresAt      time.Time
	VerifyEndpoint string
	Message        string
}

func (*AuthenticatedResult) loginResult()     {}
func (*TwoFactorRequiredResult) loginResult() {}

type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string

	// Existing is set when 2FA was already on and the stored secret came back.
	Existing bool
}

type VerifyResult struct {
	Verified bool
}

type RefreshResult struct {
	User   *User
	Tokens TokenPair
}

// FederatedProfile is the identity an external provider vouched for.
type FederatedProfile struct {
	Email string
	Name  string
}

type ResetRequestResult struct {
	Sent    bool
	Message string
}
