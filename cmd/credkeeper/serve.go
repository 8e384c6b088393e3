// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/logging"
	"github.com/credkeeper/credkeeper/internal/observability"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential service",
		Long: `Start the credential service: the public authentication API and
the metrics/health endpoint. Configuration is merged from defaults, the
config file, CREDKEEPER_* environment variables, and flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, autoMigrate, nil)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "run pending schema migrations on startup")

	// Dotted names map straight onto config keys.
	cmd.Flags().String("server.addr", "", "public API listen address")
	cmd.Flags().String("observability.addr", "", "metrics/health listen address (empty = disabled)")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", "", "log format (json or text)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, autoMigrate bool, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("credkeeper", version, cfg.Log.Level, cfg.Log.Format)

	if autoMigrate {
		migrator, err := deps.MigratorFactory(cfg.Database.URL)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return err
		}
		if err := migrator.Close(); err != nil {
			return err
		}
		slog.Info("schema migrations applied")
	}

	repo, closeRepo, err := deps.RepoFactory(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeRepo()

	slog.Info("connected to credential store")

	issuer, err := auth.NewTokenIssuer([]byte(cfg.Auth.SigningKey))
	if err != nil {
		return err
	}

	mailer := deps.MailerFactory(cfg.Mail)

	svc, err := auth.NewServiceWithLogger(repo, auth.NewArgon2idHasher(), issuer, mailer, slog.Default(),
		auth.WithResetBaseURL(cfg.Server.BaseURL))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observability comes up before the API so the readiness probe is
	// available while the API binds.
	var obsServer ObservabilityServer
	if cfg.Observability.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Observability.Addr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer := deps.APIServerFactory(cfg.Server.Addr, svc, obsMetrics(obsServer), slog.Default())
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServer(obsServer, "observability")
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	cmd.Println("CredKeeper started")
	slog.Info("service ready", "api_addr", apiServer.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	stopServer(apiServer, "api")
	stopServer(obsServer, "observability")

	slog.Info("shutdown complete")
	return nil
}

// stoppable is the subset of server behavior shutdown needs.
type stoppable interface {
	Stop(ctx context.Context) error
}

// stopServer stops a server with a bounded timeout. A nil server is
// skipped.
func stopServer(s stoppable, name string) {
	if s == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// obsMetrics returns the metrics registry when observability is
// enabled, nil otherwise.
func obsMetrics(s ObservabilityServer) *observability.Metrics {
	if s == nil {
		return nil
	}
	return s.Metrics()
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a failed server shuts the whole process down. It
// exits when an error arrives, the channel closes, or the context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
