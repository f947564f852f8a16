package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
)

// loginChallengeBackend holds the pending second step of 2FA-gated logins.
type loginChallengeBackend interface {
	Save(ctx context.Context, id string, record *stores.LoginChallengeRecord, ttl time.Duration) error
	Get(ctx context.Context, id string) (*stores.LoginChallengeRecord, error)
	Consume(ctx context.Context, id string) (bool, error)
	RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error)
}

// createLoginChallenge records that userID passed the password check and
// returns the opaque id the client presents with its code.
func (e *Engine) createLoginChallenge(ctx context.Context, userID string) (string, error) {
	if e.challenges == nil {
		return "", ErrEngineNotReady
	}
	id, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ttl := e.config.TOTP.LoginChallengeTTL
	record := &stores.LoginChallengeRecord{
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	if err := e.challenges.Save(ctx, id, record, ttl); err != nil {
		return "", mapChallengeError(err)
	}
	return id, nil
}

func (e *Engine) loadLoginChallenge(ctx context.Context, id string) (string, error) {
	record, err := e.challenges.Get(ctx, id)
	if err != nil {
		return "", mapChallengeError(err)
	}
	return record.UserID, nil
}

func (e *Engine) recordLoginChallengeFailure(ctx context.Context, id string) (bool, error) {
	exceeded, err := e.challenges.RecordFailure(ctx, id, e.config.TOTP.LoginMaxAttempts)
	if err != nil {
		return false, mapChallengeError(err)
	}
	return exceeded, nil
}

func (e *Engine) consumeLoginChallenge(ctx context.Context, id string) (bool, error) {
	consumed, err := e.challenges.Consume(ctx, id)
	if err != nil {
		return false, mapChallengeError(err)
	}
	return consumed, nil
}

func mapChallengeError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
		return ErrTwoFactorChallengeInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
