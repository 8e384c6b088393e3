// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 1
	MaxUsernameLength = 64
)

// emailRegex is a light structural check: one @, non-empty local part
// and domain with at least one dot. Full RFC 5322 validation is not the
// goal; the mail provider is the final arbiter.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User is an identity record.
//
// ResetTokenHash holds the SHA-256 hex digest of the outstanding reset
// token; the raw token is never persisted. ResetTokenHash and
// ResetTokenExpiresAt are either both set or both nil.
type User struct {
	ID                  ulid.ULID
	Email               string // stored lowercase
	Username            string
	PasswordHash        string // never empty once the User exists
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPendingReset reports whether a reset request is outstanding,
// regardless of expiry.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiresAt != nil
}

// NormalizeEmail applies the fixed case policy: trim surrounding
// whitespace and lowercase. Every lookup and insert goes through this,
// so an email can never be registered twice with different casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the structural shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Errorf("email is not a valid address")
	}
	return nil
}

// ValidateUsername validates a display username.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// NewUser creates a validated User with a fresh ULID. The email is
// normalized; passwordHash must already be a PHC-encoded hash.
func NewUser(username, email, passwordHash string) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_EMPTY_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository is the credential store collaborator.
type UserRepository interface {
	// Create stores a new user. The store enforces email uniqueness;
	// a duplicate wraps ErrAlreadyExists. Pre-checking and then
	// inserting would race, so implementations must rely on a
	// store-level constraint.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Wraps ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email. Wraps
	// ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// SetResetToken records a pending password reset, overwriting any
	// prior pending token for the user. Wraps ErrNotFound if the user
	// does not exist.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken atomically finds the user whose unexpired reset
	// token hash equals tokenHash, swaps in newPasswordHash, and clears
	// the reset columns. The match-and-clear MUST be a single
	// conditional operation so a token can never be spent twice.
	// Wraps ErrInvalidOrExpired when no matching row exists.
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (*User, error)
}
