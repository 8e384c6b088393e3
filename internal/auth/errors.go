// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth

import "errors"

// Sentinel errors forming the external error taxonomy. Callers match
// them with errors.Is; the oops codes attached at each boundary carry
// the internal context.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when registering an email that is
	// already taken.
	ErrAlreadyExists = errors.New("account already exists")

	// ErrInvalidCredentials is returned for a failed login. It is
	// deliberately identical for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrExpired is returned for any session or reset token
	// that fails verification. It deliberately does not distinguish a
	// bad signature from an expired or already-consumed token.
	ErrInvalidOrExpired = errors.New("invalid or expired token")

	// ErrInputTooLarge is returned when a password exceeds MaxPasswordBytes.
	ErrInputTooLarge = errors.New("input too large")

	// ErrDeliveryFailed is returned when the reset email could not be
	// sent. The persisted reset token is NOT rolled back; the caller may
	// ask the user to retry.
	ErrDeliveryFailed = errors.New("email delivery failed")

	// ErrStoreUnavailable is returned for transient credential-store
	// failures. The core never retries internally.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
