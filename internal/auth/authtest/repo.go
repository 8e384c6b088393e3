// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

// Package authtest provides an in-memory UserRepository for tests.
// It mirrors the atomicity guarantees of the postgres implementation:
// unique email on create, conditional single-use reset consume.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/credkeeper/credkeeper/internal/auth"
)

// UserRepository is a mutex-guarded in-memory store. The zero value is
// not usable; construct with NewUserRepository.
type UserRepository struct {
	mu   sync.Mutex
	byID map[ulid.ULID]*auth.User
	now  func() time.Time
}

// NewUserRepository creates an empty in-memory repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID: make(map[ulid.ULID]*auth.User),
		now:  time.Now,
	}
}

var _ auth.UserRepository = (*UserRepository)(nil)

// SetClock overrides the repository clock. Tests use this to expire
// reset tokens without sleeping.
func (r *UserRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Create stores a new user, enforcing email uniqueness under the lock.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Email == user.Email {
			return oops.Code("STORE_DUPLICATE_EMAIL").
				Wrap(auth.ErrAlreadyExists)
		}
	}

	clone := *user
	r.byID[user.ID] = &clone
	return nil
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("STORE_USER_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	clone := *user
	return &clone, nil
}

// GetByEmail returns the user with the given (already normalized) email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.byID {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, oops.Code("STORE_USER_NOT_FOUND").
		Wrap(auth.ErrNotFound)
}

// SetResetToken records a pending reset, replacing any previous one.
func (r *UserRepository) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return oops.Code("STORE_USER_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}

	user.ResetTokenHash = &tokenHash
	user.ResetTokenExpiresAt = &expiresAt
	user.UpdatedAt = r.now()
	return nil
}

// ConsumeResetToken performs the check-swap-clear as one step under
// the lock, so concurrent attempts with the same token cannot both
// succeed.
func (r *UserRepository) ConsumeResetToken(_ context.Context, tokenHash, newPasswordHash string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, user := range r.byID {
		if user.ResetTokenHash == nil || *user.ResetTokenHash != tokenHash {
			continue
		}
		if user.ResetTokenExpiresAt == nil || !user.ResetTokenExpiresAt.After(now) {
			break
		}

		user.PasswordHash = newPasswordHash
		user.ResetTokenHash = nil
		user.ResetTokenExpiresAt = nil
		user.UpdatedAt = now

		clone := *user
		return &clone, nil
	}

	return nil, oops.Code("STORE_RESET_TOKEN_INVALID").
		Wrap(auth.ErrInvalidOrExpired)
}
