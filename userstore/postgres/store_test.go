package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleID = "3f1b8a52-6c1e-4f7a-9d0b-2a5e8c7d9f10"

func newStoreFixture(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func sampleUser() *authcore.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &authcore.User{
		ID:           sampleID,
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: "hash-abc",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func columns() []string {
	return []string{
		"id", "email", "name", "password_hash", "two_factor_enabled", "two_factor_secret",
		"password_reset_token", "password_reset_expiry", "created_at", "updated_at",
	}
}

func userRow(u *authcore.User) *pgxmock.Rows {
	var expiry any
	if u.PasswordResetExpiry != nil {
		expiry = u.PasswordResetExpiry
	}
	return pgxmock.NewRows(columns()).AddRow(
		u.ID, u.Email, u.Name, u.PasswordHash, u.TwoFactorEnabled, u.TwoFactorSecret,
		u.PasswordResetToken, expiry, u.CreatedAt, u.UpdatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestStore_Create_Success(t *testing.T) {
	store, mock := newStoreFixture(t)
	u := sampleUser()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), u.Email, u.Name, u.PasswordHash, pgxmock.AnyArg()).
		WillReturnRows(userRow(u))

	got, err := store.Create(context.Background(), authcore.NewUser{Email: " alice@example.com ", Name: "Alice", PasswordHash: "hash-abc"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.Nil(t, got.PasswordResetExpiry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	store, mock := newStoreFixture(t)
	u := sampleUser()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), u.Email, u.Name, u.PasswordHash, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := store.Create(context.Background(), authcore.NewUser{Email: u.Email, Name: u.Name, PasswordHash: u.PasswordHash})
	assert.ErrorIs(t, err, authcore.ErrAccountExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_DBError(t *testing.T) {
	store, mock := newStoreFixture(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(fmt.Errorf("connection refused"))

	_, err := store.Create(context.Background(), authcore.NewUser{Email: "a@x.com", PasswordHash: "h"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, authcore.ErrAccountExists))
	assert.Contains(t, err.Error(), "insert user")
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestStore_FindByEmail(t *testing.T) {
	store, mock := newStoreFixture(t)
	u := sampleUser()
	u.TwoFactorEnabled = true
	u.TwoFactorSecret = "JBSWY3DPEHPK3PXP"

	mock.ExpectQuery(`SELECT .+ FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("Alice@Example.com").
		WillReturnRows(userRow(u))

	got, err := store.FindByEmail(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.True(t, got.TwoFactorEnabled)
	assert.Equal(t, u.TwoFactorSecret, got.TwoFactorSecret)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindByEmail_NotFound(t *testing.T) {
	store, mock := newStoreFixture(t)

	mock.ExpectQuery("SELECT .+ FROM users").
		WithArgs("none@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "none@example.com")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindByID_MalformedIDSkipsQuery(t *testing.T) {
	store, mock := newStoreFixture(t)

	_, err := store.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindByResetToken(t *testing.T) {
	store, mock := newStoreFixture(t)
	u := sampleUser()
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	u.PasswordResetToken = "digest"
	u.PasswordResetExpiry = &expiry

	mock.ExpectQuery("SELECT .+ FROM users WHERE password_reset_token =").
		WithArgs("digest").
		WillReturnRows(userRow(u))

	got, err := store.FindByResetToken(context.Background(), "digest")
	require.NoError(t, err)
	require.NotNil(t, got.PasswordResetExpiry)
	assert.True(t, got.PasswordResetExpiry.Equal(expiry))

	_, err = store.FindByResetToken(context.Background(), "")
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Updates
// ---------------------------------------------------------------------------

func TestStore_UpdateCredential(t *testing.T) {
	store, mock := newStoreFixture(t)
	u := sampleUser()
	u.PasswordHash = "new-hash"

	mock.ExpectQuery("UPDATE users SET password_hash").
		WithArgs("new-hash", u.ID).
		WillReturnRows(userRow(u))

	got, err := store.UpdateCredential(context.Background(), u.ID, "new-hash")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateTwoFactor_NotFound(t *testing.T) {
	store, mock := newStoreFixture(t)

	mock.ExpectQuery("UPDATE users SET two_factor_secret").
		WithArgs("", false, sampleID).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.UpdateTwoFactor(context.Background(), sampleID, "", false)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnableTwoFactorIfDisabled_FirstWriterWins(t *testing.T) {
	store, mock := newStoreFixture(t)
	existing := sampleUser()
	existing.TwoFactorEnabled = true
	existing.TwoFactorSecret = "FIRSTSECRET"

	mock.ExpectQuery(`WHERE id = \$2 AND two_factor_enabled = FALSE`).
		WithArgs("SECONDSECRET", sampleID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(sampleID).
		WillReturnRows(userRow(existing))

	got, err := store.EnableTwoFactorIfDisabled(context.Background(), sampleID, "SECONDSECRET")
	require.NoError(t, err)
	assert.Equal(t, "FIRSTSECRET", got.TwoFactorSecret)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetResetToken(t *testing.T) {
	store, mock := newStoreFixture(t)
	expiry := time.Now().Add(time.Hour)

	mock.ExpectExec("UPDATE users SET password_reset_token").
		WithArgs("digest", &expiry, sampleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetResetToken(context.Background(), sampleID, "digest", &expiry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetResetToken_ClearAndMissing(t *testing.T) {
	store, mock := newStoreFixture(t)
	expiry := time.Now()

	mock.ExpectExec("UPDATE users SET password_reset_token").
		WithArgs("", (*time.Time)(nil), sampleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetResetToken(context.Background(), sampleID, "", &expiry)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResetCredential(t *testing.T) {
	store, mock := newStoreFixture(t)
	u := sampleUser()
	u.PasswordHash = "new-hash"
	now := time.Now()

	mock.ExpectQuery(`WHERE password_reset_token = \$2 AND password_reset_expiry > \$3`).
		WithArgs("new-hash", "digest", now).
		WillReturnRows(userRow(u))

	got, err := store.ResetCredential(context.Background(), "digest", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Empty(t, got.PasswordResetToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResetCredential_AlreadyConsumed(t *testing.T) {
	store, mock := newStoreFixture(t)
	now := time.Now()

	mock.ExpectQuery("UPDATE users SET password_hash = .+, password_reset_token = ''").
		WithArgs("new-hash", "digest", now).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.ResetCredential(context.Background(), "digest", "new-hash", now)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)

	_, err = store.ResetCredential(context.Background(), "", "new-hash", now)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Migrations
// ---------------------------------------------------------------------------

func TestMigrate(t *testing.T) {
	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), nil))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
