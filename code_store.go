package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type authCodeBackend interface {
	Save(ctx context.Context, code string, record *stores.AuthCodeRecord, ttl time.Duration) error
	Redeem(ctx context.Context, code string) (*stores.AuthCodeRecord, error)
}

type codeStore struct {
	backend authCodeBackend
	now     func() time.Time
}

// NewRedisCodeStore keeps codes in Redis under "<prefix>:<code>" and
// redeems them inside WATCH/MULTI, so redemption is exactly-once across
// processes.
func NewRedisCodeStore(client redis.UniversalClient, prefix string) CodeStore {
	return &codeStore{backend: stores.NewAuthCodeStore(client, prefix), now: time.Now}
}

// NewMemoryCodeStore is exactly-once within a single process only.
func NewMemoryCodeStore() CodeStore {
	return &codeStore{backend: stores.NewMemoryAuthCodeStore(), now: time.Now}
}

func (s *codeStore) Issue(ctx context.Context, userID string, ttl time.Duration) (AuthorizationCode, error) {
	if userID == "" || ttl <= 0 {
		return AuthorizationCode{}, ErrInvalidInput
	}

	now := s.now()
	code := AuthorizationCode{
		Code:      uuid.NewString() + userID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := s.backend.Save(ctx, code.Code, &stores.AuthCodeRecord{
		UserID:    userID,
		CreatedAt: code.CreatedAt.UnixMilli(),
		ExpiresAt: code.ExpiresAt.UnixMilli(),
	}, ttl)
	if err != nil {
		return AuthorizationCode{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return code, nil
}

func (s *codeStore) Redeem(ctx context.Context, code string) (string, error) {
	record, err := s.backend.Redeem(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrCodeNotFound),
			errors.Is(err, stores.ErrCodeExpired),
			errors.Is(err, stores.ErrCodeUsed):
			return "", ErrCodeInvalid
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record.UserID, nil
}
