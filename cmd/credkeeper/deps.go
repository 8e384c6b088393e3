// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/credkeeper/credkeeper/internal/auth"
	authpg "github.com/credkeeper/credkeeper/internal/auth/postgres"
	"github.com/credkeeper/credkeeper/internal/config"
	"github.com/credkeeper/credkeeper/internal/httpapi"
	"github.com/credkeeper/credkeeper/internal/mail"
	"github.com/credkeeper/credkeeper/internal/observability"
	"github.com/credkeeper/credkeeper/internal/store"
)

// APIServer abstracts the public HTTP server for testing.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer abstracts the metrics/health server for testing.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator abstracts schema migration for testing.
type Migrator interface {
	Up() error
	Close() error
}

// ServeDeps holds injectable dependencies for the serve command.
// Nil fields fall back to production implementations.
type ServeDeps struct {
	ConfigLoader               func(path string, flags *pflag.FlagSet) (*config.Config, error)
	MigratorFactory            func(databaseURL string) (Migrator, error)
	RepoFactory                func(ctx context.Context, databaseURL string) (auth.UserRepository, func(), error)
	MailerFactory              func(cfg config.MailConfig) auth.Mailer
	APIServerFactory           func(addr string, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) APIServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// applyDefaults fills nil fields with production implementations.
func (d *ServeDeps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.RepoFactory == nil {
		d.RepoFactory = func(ctx context.Context, databaseURL string) (auth.UserRepository, func(), error) {
			pool, err := store.Connect(ctx, databaseURL)
			if err != nil {
				return nil, nil, err
			}
			return authpg.NewUserRepository(pool), pool.Close, nil
		}
	}
	if d.MailerFactory == nil {
		d.MailerFactory = func(cfg config.MailConfig) auth.Mailer {
			if cfg.Provider == "sendgrid" {
				return mail.NewSendGridMailer(cfg.SendGridKey, cfg.FromAddress, cfg.FromName)
			}
			return mail.NewLogMailer(slog.Default())
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(addr string, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) APIServer {
			return httpapi.NewServer(addr, svc, metrics, logger)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
}
