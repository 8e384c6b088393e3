// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

// Package postgres provides the PostgreSQL implementation of the auth
// user repository.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/credkeeper/credkeeper/internal/auth"
)

// Querier is the subset of pgxpool.Pool the repository needs. It is
// satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Querier) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, username, password_hash,
       reset_token_hash, reset_token_expires_at, created_at, updated_at`

// Create stores a new user. Email uniqueness is enforced by the
// database; a unique violation wraps auth.ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, username, password_hash,
			reset_token_hash, reset_token_expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Email,
		user.Username,
		user.PasswordHash,
		user.ResetTokenHash,
		user.ResetTokenExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_DUPLICATE_EMAIL").
				With("email", user.Email).
				Wrap(auth.ErrAlreadyExists)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// SetResetToken records a pending password reset, replacing any prior
// pending token for the user.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			reset_token_hash = $2,
			reset_token_expires_at = $3,
			updated_at = $4
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt, time.Now())
	if err != nil {
		return oops.Code("USER_SET_RESET_TOKEN_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeResetToken spends a reset token as one conditional update.
// The row must hold an unexpired matching token hash; the update swaps
// the password and clears both reset columns in the same statement, so
// concurrent spends of the same token cannot both match.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			reset_token_hash = NULL,
			reset_token_expires_at = NULL,
			updated_at = $3
		WHERE reset_token_hash = $1
		  AND reset_token_expires_at > $3
		RETURNING `+userColumns+`
	`, tokenHash, newPasswordHash, time.Now())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_RESET_TOKEN_INVALID").
			Wrap(auth.ErrInvalidOrExpired)
	}
	if err != nil {
		return nil, oops.Code("USER_CONSUME_RESET_TOKEN_FAILED").
			With("operation", "consume reset token").
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		username       string
		passwordHash   string
		resetTokenHash *string
		resetExpiresAt *time.Time
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&username,
		&passwordHash,
		&resetTokenHash,
		&resetExpiresAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:                  id,
		Email:               email,
		Username:            username,
		PasswordHash:        passwordHash,
		ResetTokenHash:      resetTokenHash,
		ResetTokenExpiresAt: resetExpiresAt,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
