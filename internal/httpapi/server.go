// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

// Package httpapi exposes the authentication service over HTTP. The
// layer is deliberately thin: it binds and validates request bodies,
// calls the service, and maps the error taxonomy to status codes.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/observability"
)

// Server serves the public authentication API.
type Server struct {
	addr     string
	echo     *echo.Echo
	listener net.Listener
	running  atomic.Bool
}

// NewServer creates a Server with all routes registered. metrics may
// be nil; counters are then skipped.
func NewServer(addr string, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))

	h := &handlers{svc: svc, metrics: metrics, logger: logger}
	h.register(e)

	return &Server{
		addr: addr,
		echo: e,
	}
}

// Handler returns the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving. It returns an error channel that receives any
// serve error; the channel is closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.echo.Listener = listener

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.echo.Start(""); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}

	slog.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" when not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
