// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/pkg/errutil"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func TestNewTokenIssuer(t *testing.T) {
	t.Run("accepts 32-byte key", func(t *testing.T) {
		issuer, err := auth.NewTokenIssuer(testSigningKey)
		require.NoError(t, err)
		assert.NotNil(t, issuer)
	})

	t.Run("rejects short key", func(t *testing.T) {
		issuer, err := auth.NewTokenIssuer([]byte("too-short"))
		require.Error(t, err)
		assert.Nil(t, issuer)
		errutil.AssertErrorCode(t, err, "TOKEN_KEY_TOO_SHORT")
	})
}

func TestTokenIssuer_IssueVerify(t *testing.T) {
	issuer, err := auth.NewTokenIssuer(testSigningKey)
	require.NoError(t, err)

	t.Run("round-trips the subject", func(t *testing.T) {
		userID := ulid.Make()

		token, err := issuer.Issue(userID)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		subject, err := issuer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, subject)
	})

	t.Run("token is well-formed JWT", func(t *testing.T) {
		token, err := issuer.Issue(ulid.Make())
		require.NoError(t, err)
		assert.Len(t, strings.Split(token, "."), 3)
	})

	t.Run("rejects token just past expiry", func(t *testing.T) {
		issued := time.Now()
		issuer.SetClock(func() time.Time { return issued })

		token, err := issuer.Issue(ulid.Make())
		require.NoError(t, err)

		issuer.SetClock(func() time.Time { return issued.Add(auth.SessionTokenTTL + time.Second) })
		defer issuer.SetClock(time.Now)

		_, err = issuer.Verify(token)
		errutil.AssertErrorIs(t, err, auth.ErrInvalidOrExpired)
	})

	t.Run("accepts token just before expiry", func(t *testing.T) {
		issued := time.Now()
		issuer.SetClock(func() time.Time { return issued })

		token, err := issuer.Issue(ulid.Make())
		require.NoError(t, err)

		issuer.SetClock(func() time.Time { return issued.Add(auth.SessionTokenTTL - time.Second) })
		defer issuer.SetClock(time.Now)

		_, err = issuer.Verify(token)
		assert.NoError(t, err)
	})
}

func TestTokenIssuer_VerifyRejections(t *testing.T) {
	issuer, err := auth.NewTokenIssuer(testSigningKey)
	require.NoError(t, err)

	assertOpaqueFailure := func(t *testing.T, token string) {
		t.Helper()
		_, err := issuer.Verify(token)
		errutil.AssertErrorIs(t, err, auth.ErrInvalidOrExpired)
		errutil.AssertErrorCode(t, err, "TOKEN_INVALID")
	}

	t.Run("empty token", func(t *testing.T) {
		assertOpaqueFailure(t, "")
	})

	t.Run("garbage token", func(t *testing.T) {
		assertOpaqueFailure(t, "not.a.jwt")
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := issuer.Issue(ulid.Make())
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		parts[1] = "eyJzdWIiOiJmb3JnZWQifQ"
		assertOpaqueFailure(t, strings.Join(parts, "."))
	})

	t.Run("token signed with a different key", func(t *testing.T) {
		other, err := auth.NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)

		token, err := other.Issue(ulid.Make())
		require.NoError(t, err)

		assertOpaqueFailure(t, token)
	})

	t.Run("alg none is rejected", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   ulid.Make().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		assertOpaqueFailure(t, unsigned)
	})

	t.Run("missing expiry claim is rejected", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:  ulid.Make().String(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
		require.NoError(t, err)

		assertOpaqueFailure(t, token)
	})

	t.Run("non-ULID subject is rejected", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
		require.NoError(t, err)

		assertOpaqueFailure(t, token)
	})
}
