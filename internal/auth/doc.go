// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

// Package auth implements the credential-management core for CredKeeper.
//
// # Domain Types
//
// User is the identity record. Create one with NewUser, which validates
// the email, username, and password hash. Direct struct initialization
// bypasses validation and may create invalid state; repository
// implementations receive pre-validated values from the constructor.
//
// # Components
//
//   - PasswordHasher / Argon2idHasher - salted one-way hashing and
//     constant-time verification
//   - TokenIssuer - stateless signed session tokens with a fixed TTL
//   - GenerateResetToken / HashResetToken - single-use password-reset
//     tokens; only the SHA-256 hash of a token is ever persisted
//   - Service - the orchestrator exposing register, login, logout,
//     forgot-password, and reset-password
//
// The Service depends on a UserRepository (credential store) and a
// Mailer (out-of-band token delivery); both are collaborators behind
// interfaces so the core stays storage- and transport-agnostic.
package auth
