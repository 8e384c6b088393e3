// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Mailer delivers password reset messages. Implementations live in
// internal/mail; the interface is declared here so the service depends
// only on behavior.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service provides registration, authentication, and password reset
// operations over a UserRepository.
type Service struct {
	users        UserRepository
	hasher       PasswordHasher
	tokens       *TokenIssuer
	mailer       Mailer
	logger       *slog.Logger
	resetBaseURL string
	now          func() time.Time
}

// ServiceOption configures optional Service behavior.
type ServiceOption func(*Service)

// WithResetBaseURL sets the externally reachable root used to build
// reset links in mail bodies. Without it, mails carry the bare token.
func WithResetBaseURL(baseURL string) ServiceOption {
	return func(s *Service) {
		s.resetBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewService creates a new Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenIssuer, mailer Mailer, opts ...ServiceOption) (*Service, error) {
	return NewServiceWithLogger(users, hasher, tokens, mailer, slog.Default(), opts...)
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, hasher PasswordHasher, tokens *TokenIssuer, mailer Mailer, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository cannot be nil")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher cannot be nil")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer cannot be nil")
	}
	if mailer == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new user account. The email is normalized to
// lower-case before storage. Duplicate emails surface as
// ErrAlreadyExists; the unique constraint lives in the store, so there
// is no check-then-insert race and no partial user on failure.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := NewUser(username, email, passwordHash)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").
				With("email", email).
				Wrap(err)
		}
		return nil, s.storeErr("AUTH_REGISTER_FAILED", "create user", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
	)

	return user, nil
}

// Login authenticates a user by email and password and issues a
// session token. Unknown email and wrong password produce the same
// ErrInvalidCredentials; a dummy hash is verified on miss so the two
// paths take comparable time.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = NormalizeEmail(email)

	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return "", nil, s.storeErr("AUTH_LOGIN_FAILED", "get user by email", lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify so miss and mismatch are indistinguishable by timing.
	valid := s.hasher.Verify(password, targetHash)

	if !userExists || !valid {
		return "", nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrap(ErrInvalidCredentials)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session token").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
	)

	return token, user, nil
}

// Logout is advisory: session tokens are stateless and remain valid
// until expiry, so the server only acknowledges. Clients discard the
// token; this is not a revocation control.
func (s *Service) Logout(ctx context.Context) error {
	s.logger.InfoContext(ctx, "logout acknowledged")
	return nil
}

// ForgotPassword starts a password reset. The response is identical
// whether or not the email is registered, so callers cannot enumerate
// accounts. For a known user a fresh token replaces any pending one,
// and the plaintext token is delivered via the mailer. Delivery
// failures surface as ErrDeliveryFailed; the stored token is kept so a
// retried request can succeed.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Uniform ack: log the miss internally, tell the caller nothing.
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return s.storeErr("RESET_REQUEST_FAILED", "get user by email", err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	expiresAt := s.now().Add(ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return s.storeErr("RESET_REQUEST_FAILED", "store reset token", err)
	}

	if err := s.mailer.Send(ctx, user.Email, resetMailSubject, resetMailBody(s.resetBaseURL, token)); err != nil {
		// Token state stays in place; a retried request supersedes it.
		return oops.Code("RESET_DELIVERY_FAILED").
			With("user_id", user.ID.String()).
			Wrap(errors.Join(ErrDeliveryFailed, err))
	}

	s.logger.InfoContext(ctx, "password reset token issued",
		"user_id", user.ID.String(),
	)

	return nil
}

// ResetPassword completes a password reset. The presented token is
// hashed and consumed in a single conditional update, so a token can
// only ever be spent once even under concurrent attempts. Invalid,
// expired, and already-used tokens all surface as ErrInvalidOrExpired.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return oops.Code("RESET_TOKEN_INVALID").
			Wrap(ErrInvalidOrExpired)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user, err := s.users.ConsumeResetToken(ctx, HashResetToken(token), newHash)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return oops.Code("RESET_TOKEN_INVALID").
				Wrap(err)
		}
		return s.storeErr("RESET_PASSWORD_FAILED", "consume reset token", err)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		"user_id", user.ID.String(),
	)

	return nil
}

// storeErr wraps repository failures that are not part of the domain
// taxonomy into ErrStoreUnavailable so callers never see raw driver
// internals.
func (s *Service) storeErr(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(errors.Join(ErrStoreUnavailable, err))
}

const resetMailSubject = "Password reset request"

// resetMailBody renders the plaintext reset message. The token is the
// raw value; only its hash is stored server-side.
func resetMailBody(baseURL, token string) string {
	body := "You requested a password reset.\n\n"
	if baseURL != "" {
		body += "Reset link: " + baseURL + "/v1/auth/reset-password/" + token + "\n\n"
	} else {
		body += "Your reset token is: " + token + "\n\n"
	}
	return body + "It expires in one hour. If you did not request this, ignore this message."
}
