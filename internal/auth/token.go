// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenTTL is the fixed lifetime of a session token.
const SessionTokenTTL = time.Hour

// MinSigningKeyBytes is the minimum accepted HMAC key length.
const MinSigningKeyBytes = 32

// TokenIssuer signs and verifies stateless session tokens.
//
// A session token is a self-contained HS256 JWT carrying the user ID as
// subject plus issued-at and expiry claims. There is no server-side
// session record: a token is "destroyed" only by the client discarding
// it or by expiry. Rotating the signing key invalidates every
// outstanding token; that trade-off is accepted.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. The key is read-only after
// construction and safe to share across concurrent verifications.
func NewTokenIssuer(key []byte) (*TokenIssuer, error) {
	if len(key) < MinSigningKeyBytes {
		return nil, oops.Code("TOKEN_KEY_TOO_SHORT").
			With("min_bytes", MinSigningKeyBytes).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	return &TokenIssuer{
		key: key,
		ttl: SessionTokenTTL,
		now: time.Now,
	}, nil
}

// Issue produces a signed session token for the given subject.
func (t *TokenIssuer) Issue(subject ulid.ULID) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks signature integrity and expiry and returns the subject.
//
// Every failure - malformed structure, wrong algorithm, bad signature,
// expired claim, unparsable subject - collapses into the single
// ErrInvalidOrExpired category so callers cannot build an oracle from
// the distinction.
func (t *TokenIssuer) Verify(token string) (ulid.ULID, error) {
	claims := &jwt.RegisteredClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidOrExpired)
	}

	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidOrExpired)
	}
	return subject, nil
}
