// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/accounts"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/logging"
	"github.com/parleychat/parley/internal/observability"
	"github.com/parleychat/parley/internal/signup"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/internal/web"
	"github.com/parleychat/parley/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// serveConfig holds flags for the serve command.
type serveConfig struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account-intake API server",
		Long: `Start the HTTP server for signup checks, registration, login,
and password resets, plus the metrics/health endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.autoMigrate, "auto-migrate", false, "apply pending database migrations on startup")
	cmd.Flags().String("listen_addr", "", "public API listen address")
	cmd.Flags().String("metrics_addr", "", "metrics/health listen address")
	cmd.Flags().String("database_url", "", "PostgreSQL connection string")
	cmd.Flags().String("external_host", "", "canonical external host")

	return cmd
}

func runServe(cmd *cobra.Command, serveCfg *serveConfig) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("parley", version, cfg.LogFormat)
	logger := slog.Default()

	// Stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveCfg.autoMigrate {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	hasher := accounts.NewArgon2idHasher()
	mailing := signup.NewMailingListChecker(cfg.MailingListZone)

	signupSvc := signup.NewService(st.Realms(), st.Users(), mailing, hasher,
		cfg.SupportEmail, cfg.PasswordAuthEnabled, cfg.TermsOfService)
	authSvc := accounts.NewAuthService(st.Users(), st.Realms(), st.Sessions(), hasher,
		cfg.SupportEmail, cfg.PasswordAuthEnabled)
	if !cfg.RealmSubdomains {
		signupSvc.UseShortNameWording()
		authSvc.DisableSubdomainRouting()
	}
	resetSvc, err := accounts.NewPasswordResetServiceWithLogger(st.Users(), st.PasswordResets(),
		hasher, cfg.PasswordAuthEnabled, logger)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	var obsServer *observability.Server
	var obsErrCh <-chan error
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			return st.Ready(context.Background())
		})
		metrics = obsServer.Metrics()
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return err
		}
	}

	handler := web.NewHandler(signupSvc, authSvc, resetSvc, logger, metrics, cfg.ExternalHost)
	if cfg.OpenRealmCreation {
		handler.AllowRealmCreation()
	}

	webServer := web.NewServer(cfg.ListenAddr, handler)
	webErrCh, err := webServer.Start()
	if err != nil {
		if obsServer != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = obsServer.Stop(stopCtx)
		}
		return err
	}

	logger.Info("parley intake server running",
		"listen_addr", webServer.Addr(),
		"external_host", cfg.ExternalHost)

	// Block until a signal arrives or a server fails
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-webErrCh:
		if serveErr != nil {
			errutil.LogError(logger, "web server failed", serveErr)
		}
	case serveErr := <-obsErrCh:
		if serveErr != nil {
			errutil.LogError(logger, "observability server failed", serveErr)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var stopErr error
	if err := webServer.Stop(stopCtx); err != nil {
		stopErr = err
	}
	if obsServer != nil {
		if err := obsServer.Stop(stopCtx); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	if stopErr != nil {
		return oops.With("operation", "shutdown").Wrap(stopErr)
	}

	logger.Info("shutdown complete")
	return nil
}
