// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/observability"
	"github.com/credkeeper/credkeeper/pkg/errutil"
)

// sessionCookieName is the HttpOnly cookie carrying the session token.
const sessionCookieName = "token"

// minPasswordLength is the public API's password floor. The size
// ceiling is enforced by the hasher.
const minPasswordLength = 6

type handlers struct {
	svc     *auth.Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

func (h *handlers) register(e *echo.Echo) {
	v1 := e.Group("/v1/auth")
	v1.POST("/register", h.handleRegister)
	v1.POST("/login", h.handleLogin)
	v1.POST("/logout", h.handleLogout)
	v1.POST("/forgot-password", h.handleForgotPassword)
	v1.POST("/reset-password/:token", h.handleResetPassword)
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordReq struct {
	Email string `json:"email"`
}

type resetPasswordReq struct {
	Password string `json:"password"`
}

// userResp is the public projection of a user. The password hash never
// leaves the service.
type userResp struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResp(u *auth.User) userResp {
	return userResp{
		ID:        u.ID.String(),
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

type loginResp struct {
	Token string   `json:"token"`
	User  userResp `json:"user"`
}

type messageResp struct {
	Message string `json:"message"`
}

type errorResp struct {
	Error string `json:"error"`
}

// ----- Handlers -----

func (h *handlers) handleRegister(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "invalid request body"})
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "username, email, and password are required"})
	}
	if len(req.Password) < minPasswordLength {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "password must be at least 6 characters"})
	}

	user, err := h.svc.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.countRegistration(err)
		return h.writeError(c, err)
	}
	h.countRegistration(nil)

	return c.JSON(http.StatusCreated, toUserResp(user))
}

func (h *handlers) handleLogin(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "invalid request body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "email and password are required"})
	}

	token, user, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		h.countLogin(err)
		return h.writeError(c, err)
	}
	h.countLogin(nil)

	c.SetCookie(sessionCookie(token, auth.SessionTokenTTL))

	return c.JSON(http.StatusOK, loginResp{
		Token: token,
		User:  toUserResp(user),
	})
}

func (h *handlers) handleLogout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context()); err != nil {
		return h.writeError(c, err)
	}

	// Expire the cookie; the stateless token itself lives until expiry.
	c.SetCookie(sessionCookie("", -time.Hour))

	return c.JSON(http.StatusOK, messageResp{Message: "logged out"})
}

// forgotPasswordAck is the uniform response body whether or not the
// email is registered.
const forgotPasswordAck = "if the email is registered, a reset link has been sent"

func (h *handlers) handleForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "invalid request body"})
	}
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "email is required"})
	}

	err := h.svc.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		h.countResetRequest(err)
		return h.writeError(c, err)
	}
	h.countResetRequest(nil)

	return c.JSON(http.StatusOK, messageResp{Message: forgotPasswordAck})
}

func (h *handlers) handleResetPassword(c echo.Context) error {
	token := c.Param("token")

	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "invalid request body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "password is required"})
	}
	if len(req.Password) < minPasswordLength {
		return c.JSON(http.StatusBadRequest, errorResp{Error: "password must be at least 6 characters"})
	}

	if err := h.svc.ResetPassword(c.Request().Context(), token, req.Password); err != nil {
		h.countResetCompletion(err)
		return h.writeError(c, err)
	}
	h.countResetCompletion(nil)

	return c.JSON(http.StatusOK, messageResp{Message: "password has been reset"})
}

// writeError maps the service error taxonomy to fixed status codes and
// messages. Internal details are logged, never returned to the client.
func (h *handlers) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, errorResp{Error: "email already registered"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, errorResp{Error: "invalid email or password"})
	case errors.Is(err, auth.ErrInvalidOrExpired):
		return c.JSON(http.StatusBadRequest, errorResp{Error: "invalid or expired token"})
	case errors.Is(err, auth.ErrInputTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, errorResp{Error: "input too large"})
	case errors.Is(err, auth.ErrDeliveryFailed):
		errutil.LogError(h.logger, "reset email delivery failed", err)
		return c.JSON(http.StatusBadGateway, errorResp{Error: "could not send reset email"})
	case errors.Is(err, auth.ErrStoreUnavailable):
		errutil.LogError(h.logger, "credential store unavailable", err)
		return c.JSON(http.StatusServiceUnavailable, errorResp{Error: "service temporarily unavailable"})
	default:
		// Validation errors from the service (email shape, username
		// bounds) land here.
		return c.JSON(http.StatusBadRequest, errorResp{Error: "invalid request"})
	}
}

// sessionCookie builds the HttpOnly session cookie. A non-positive
// maxAge expires it.
func sessionCookie(token string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ----- Metrics -----

func (h *handlers) countRegistration(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case err == nil:
		h.metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, auth.ErrAlreadyExists):
		h.metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
	default:
		h.metrics.RegistrationsTotal.WithLabelValues("failure").Inc()
	}
}

func (h *handlers) countLogin(err error) {
	if h.metrics == nil {
		return
	}
	if err == nil {
		h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	} else {
		h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
	}
}

func (h *handlers) countResetRequest(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case err == nil:
		h.metrics.ResetRequestsTotal.WithLabelValues("sent").Inc()
	case errors.Is(err, auth.ErrDeliveryFailed):
		h.metrics.ResetRequestsTotal.WithLabelValues("delivery_failed").Inc()
	default:
		h.metrics.ResetRequestsTotal.WithLabelValues("failure").Inc()
	}
}

func (h *handlers) countResetCompletion(err error) {
	if h.metrics == nil {
		return
	}
	if err == nil {
		h.metrics.ResetCompletionsTotal.WithLabelValues("success").Inc()
	} else {
		h.metrics.ResetCompletionsTotal.WithLabelValues("rejected").Inc()
	}
}
