// Package postgres is an [authcore.UserStore] backed by PostgreSQL through
// pgx. The schema ships as embedded goose migrations; see [Migrate].
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, name, password_hash, two_factor_enabled, two_factor_secret, password_reset_token, password_reset_expiry, created_at, updated_at`

// Store implements authcore.UserStore and authcore.TwoFactorEnroller.
type Store struct {
	db DB
}

var (
	_ authcore.UserStore         = (*Store)(nil)
	_ authcore.TwoFactorEnroller = (*Store)(nil)
)

func New(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return s.scanUser(ctx, "find user by email", query, strings.TrimSpace(email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// Not a UUID, so it cannot match a row.
		return nil, authcore.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(ctx, "find user by id", query, id)
}

// Create relies on the unique index over LOWER(email) for duplicates.
func (s *Store) Create(ctx context.Context, input authcore.NewUser) (*authcore.User, error) {
	query := `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + userColumns

	now := time.Now().UTC()
	user, err := s.scanUser(ctx, "insert user", query,
		uuid.NewString(),
		strings.TrimSpace(input.Email),
		input.Name,
		input.PasswordHash,
		now,
	)
	if err != nil && isUniqueViolation(err) {
		return nil, authcore.ErrAccountExists
	}
	return user, err
}

func (s *Store) UpdateCredential(ctx context.Context, id, passwordHash string) (*authcore.User, error) {
	query := `
		UPDATE users SET password_hash = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns
	return s.scanUser(ctx, "update credential", query, passwordHash, id)
}

func (s *Store) UpdateTwoFactor(ctx context.Context, id, secret string, enabled bool) (*authcore.User, error) {
	query := `
		UPDATE users SET two_factor_secret = $1, two_factor_enabled = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING ` + userColumns
	return s.scanUser(ctx, "update two factor", query, secret, enabled, id)
}

// EnableTwoFactorIfDisabled only writes while two_factor_enabled is false.
// When the guarded update matches nothing the current row is returned.
func (s *Store) EnableTwoFactorIfDisabled(ctx context.Context, id, secret string) (*authcore.User, error) {
	query := `
		UPDATE users SET two_factor_secret = $1, two_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $2 AND two_factor_enabled = FALSE
		RETURNING ` + userColumns

	user, err := s.scanUser(ctx, "enable two factor", query, secret, id)
	if errors.Is(err, authcore.ErrUserNotFound) {
		return s.FindByID(ctx, id)
	}
	return user, err
}

// SetResetToken stores token (a digest) and expiry. An empty token clears
// both.
func (s *Store) SetResetToken(ctx context.Context, id, token string, expiry *time.Time) error {
	if token == "" {
		expiry = nil
	}
	query := `
		UPDATE users SET password_reset_token = $1, password_reset_expiry = $2, updated_at = NOW()
		WHERE id = $3`

	ct, err := s.db.Exec(ctx, query, token, expiry, id)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *Store) FindByResetToken(ctx context.Context, token string) (*authcore.User, error) {
	if token == "" {
		return nil, authcore.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = $1`
	return s.scanUser(ctx, "find user by reset token", query, token)
}

// ResetCredential is a single guarded UPDATE. Concurrent callers serialize
// on the row lock and the losers no longer match the WHERE clause.
func (s *Store) ResetCredential(ctx context.Context, token, passwordHash string, now time.Time) (*authcore.User, error) {
	if token == "" {
		return nil, authcore.ErrUserNotFound
	}
	query := `
		UPDATE users SET password_hash = $1, password_reset_token = '', password_reset_expiry = NULL, updated_at = NOW()
		WHERE password_reset_token = $2 AND password_reset_expiry > $3
		RETURNING ` + userColumns
	return s.scanUser(ctx, "reset credential", query, passwordHash, token, now)
}

// scanUser runs a query expected to return a single user row.
func (s *Store) scanUser(ctx context.Context, op, query string, args ...any) (*authcore.User, error) {
	var u authcore.User

	err := s.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.TwoFactorEnabled,
		&u.TwoFactorSecret,
		&u.PasswordResetToken,
		&u.PasswordResetExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
