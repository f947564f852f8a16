package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", Name: "Alice", PasswordHash: "h1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byEmail, err := s.FindByEmail(ctx, "A@X.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Name)
	assert.Equal(t, "h1", byID.PasswordHash)
}

func TestCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = s.Create(ctx, authcore.NewUser{Email: "A@x.com ", PasswordHash: "h"})
	assert.ErrorIs(t, err, authcore.ErrAccountExists)
	assert.Equal(t, 1, s.Len())
}

func TestCreateConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, authcore.NewUser{Email: "race@x.com", PasswordHash: "h"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len())
}

func TestMissingUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.FindByEmail(ctx, "none@x.com")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	_, err = s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	_, err = s.UpdateCredential(ctx, "nope", "h")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.ErrorIs(t, s.SetResetToken(ctx, "nope", "t", nil), authcore.ErrUserNotFound)
	_, err = s.FindByResetToken(ctx, "")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
}

func TestReturnedUserIsACopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	created.PasswordHash = "tampered"

	stored, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", stored.PasswordHash)
}

func TestTwoFactorUpdates(t *testing.T) {
	ctx := context.Background()
	s := New()
	user, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	first, err := s.EnableTwoFactorIfDisabled(ctx, user.ID, "SECRET1")
	require.NoError(t, err)
	assert.True(t, first.TwoFactorEnabled)
	assert.Equal(t, "SECRET1", first.TwoFactorSecret)

	second, err := s.EnableTwoFactorIfDisabled(ctx, user.ID, "SECRET2")
	require.NoError(t, err)
	assert.Equal(t, "SECRET1", second.TwoFactorSecret)

	cleared, err := s.UpdateTwoFactor(ctx, user.ID, "", false)
	require.NoError(t, err)
	assert.False(t, cleared.TwoFactorEnabled)
	assert.Empty(t, cleared.TwoFactorSecret)
}

func TestResetTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	user, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, s.SetResetToken(ctx, user.ID, "digest", &expiry))

	found, err := s.FindByResetToken(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	require.NotNil(t, found.PasswordResetExpiry)
	assert.True(t, found.PasswordResetExpiry.Equal(expiry))

	require.NoError(t, s.SetResetToken(ctx, user.ID, "", nil))
	_, err = s.FindByResetToken(ctx, "digest")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)

	cleared, err := s.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.PasswordResetExpiry)
}

func TestResetCredential(t *testing.T) {
	ctx := context.Background()
	s := New()
	user, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", PasswordHash: "old"})
	require.NoError(t, err)

	now := time.Now()
	expiry := now.Add(time.Hour)
	require.NoError(t, s.SetResetToken(ctx, user.ID, "digest", &expiry))

	_, err = s.ResetCredential(ctx, "digest", "new", expiry)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound, "token must be live at now")

	updated, err := s.ResetCredential(ctx, "digest", "new", now)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.PasswordHash)
	assert.Empty(t, updated.PasswordResetToken)
	assert.Nil(t, updated.PasswordResetExpiry)

	_, err = s.ResetCredential(ctx, "digest", "newer", now)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	_, err = s.ResetCredential(ctx, "", "newer", now)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
}

func TestResetCredentialConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	user, err := s.Create(ctx, authcore.NewUser{Email: "a@x.com", PasswordHash: "old"})
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, s.SetResetToken(ctx, user.ID, "digest", &expiry))

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.ResetCredential(ctx, "digest", "new", time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().FindByEmail(ctx, "a@x.com")
	assert.True(t, errors.Is(err, context.Canceled))
}
