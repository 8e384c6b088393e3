// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

// Package mail delivers password reset messages. The SendGrid provider
// posts to the v3 mail-send API; the log provider writes messages to
// the structured log for development.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/credkeeper/credkeeper/internal/auth"
)

var (
	_ auth.Mailer = (*SendGridMailer)(nil)
	_ auth.Mailer = (*LogMailer)(nil)
)

// DefaultEndpoint is the SendGrid v3 mail-send URL.
const DefaultEndpoint = "https://api.sendgrid.com/v3/mail/send"

const requestTimeout = 10 * time.Second

// SendGridMailer sends mail through the SendGrid HTTP API.
type SendGridMailer struct {
	apiKey      string
	fromAddress string
	fromName    string
	endpoint    string
	client      *http.Client
}

// Option configures a SendGridMailer.
type Option func(*SendGridMailer)

// WithEndpoint overrides the API endpoint. Tests point it at a local
// httptest server.
func WithEndpoint(endpoint string) Option {
	return func(m *SendGridMailer) { m.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *SendGridMailer) { m.client = client }
}

// NewSendGridMailer creates a SendGridMailer.
func NewSendGridMailer(apiKey, fromAddress, fromName string, opts ...Option) *SendGridMailer {
	m := &SendGridMailer{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		endpoint:    DefaultEndpoint,
		client:      &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send posts a plaintext message to the SendGrid API. Any non-2xx
// response is a delivery failure.
func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	payload := sgMailPayload{
		Personalizations: []sgPersonalization{{
			To: []sgAddress{{Email: to}},
		}},
		From:    sgAddress{Email: m.fromAddress, Name: m.fromName},
		Subject: subject,
		Content: []sgContent{{Type: "text/plain", Value: body}},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return oops.Code("MAIL_ENCODE_FAILED").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return oops.Code("MAIL_REQUEST_FAILED").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "post mail").
			Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort for diagnostics
		return oops.Code("MAIL_SEND_REJECTED").
			With("status", resp.StatusCode).
			Errorf("mail provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// SendGrid v3 Mail Send API payload types.
type sgMailPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// LogMailer writes messages to the log instead of sending them. It is
// the development default so the reset flow works without credentials.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message. The body carries the raw reset token, so this
// provider must never be enabled in production.
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "mail delivery (log provider)",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
