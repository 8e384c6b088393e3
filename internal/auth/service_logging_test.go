// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/auth/mocks"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestService_ForgotPassword_UnknownEmailLogging(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	users := mocks.NewMockUserRepository(t)
	svc, err := auth.NewServiceWithLogger(
		users,
		mocks.NewMockPasswordHasher(t),
		newTestIssuer(t),
		mocks.NewMockMailer(t),
		logger,
	)
	require.NoError(t, err)

	users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)

	require.NoError(t, svc.ForgotPassword(ctx, "ghost@example.com"))

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "password reset requested for unknown email", entries[0]["msg"])
}

func TestService_Login_SuccessLogging(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := auth.NewServiceWithLogger(users, hasher, newTestIssuer(t), mocks.NewMockMailer(t), logger)
	require.NoError(t, err)

	user := &auth.User{
		ID:           ulid.Make(),
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "$argon2id$real-hash",
	}
	users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	hasher.On("Verify", "hunter22", user.PasswordHash).Return(true)

	_, _, err = svc.Login(ctx, user.Email, "hunter22")
	require.NoError(t, err)

	entries := decodeLogLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "user logged in", entries[0]["msg"])
	assert.Equal(t, user.ID.String(), entries[0]["user_id"])
}
