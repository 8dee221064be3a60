// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpress/quillpress/internal/auth"
	authpg "github.com/quillpress/quillpress/internal/auth/postgres"
	"github.com/quillpress/quillpress/internal/config"
	"github.com/quillpress/quillpress/internal/logging"
	"github.com/quillpress/quillpress/internal/observability"
	"github.com/quillpress/quillpress/internal/store"
	"github.com/quillpress/quillpress/pkg/errutil"
)

const (
	purgeInterval    = time.Hour
	readinessTimeout = 2 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth service",
		Long: `Run the auth service: serve metrics and health probes and purge
expired tokens on a schedule. API processes embed the auth service as a
library against the same database.`,
		RunE: runServe,
	}

	cmd.Flags().String("log.level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", "json", "log format (json or text)")
	cmd.Flags().String("observability.listen_addr", ":9090", "metrics/health listen address")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("quillpress", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		errutil.LogError(logger, "database connection failed", err)
		return err
	}
	defer pool.Close()

	obs := observability.NewServer(cfg.Observability.ListenAddr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	metrics := auth.NewMetrics(obs.Registry())

	svc, err := buildService(pool, cfg, logger, metrics)
	if err != nil {
		errutil.LogError(logger, "service construction failed", err)
		return err
	}

	errCh, err := obs.Start()
	if err != nil {
		errutil.LogError(logger, "observability server failed to start", err)
		return err
	}

	go purgeLoop(ctx, svc, logger)

	logger.Info("auth service running",
		"metrics_addr", obs.Addr(),
		"require_email_verification", cfg.Auth.RequireEmailVerification)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			errutil.LogError(logger, "observability server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obs.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "observability server shutdown failed", err)
		return err
	}
	return nil
}

// buildService wires the repositories, hasher, issuer, and guard into an
// auth.Service from the loaded configuration.
func buildService(db authpg.DB, cfg *config.Config, logger *slog.Logger, metrics *auth.Metrics) (*auth.Service, error) {
	params := auth.DefaultHashParams()
	params.Memory = cfg.Hash.Memory
	params.Time = cfg.Hash.Time
	params.Parallelism = cfg.Hash.Parallelism

	hasher := auth.NewGatedHasher(auth.NewArgon2idHasher(params), cfg.Auth.MaxConcurrentHashes)

	issuer, err := auth.NewTokenIssuer(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.Issuer,
		cfg.Auth.Audience,
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
	)
	if err != nil {
		return nil, err
	}

	guard := auth.NewGuard(cfg.Auth.LockoutThreshold, cfg.LockoutWindow())

	return auth.NewService(
		auth.SecretStore{
			Accounts:        authpg.NewAccountRepository(db),
			RefreshTokens:   authpg.NewRefreshTokenRepository(db),
			SingleUseTokens: authpg.NewSingleUseTokenRepository(db),
		},
		hasher,
		issuer,
		guard,
		auth.ServiceConfig{
			RequireEmailVerification: cfg.Auth.RequireEmailVerification,
			PasswordPolicy:           auth.NewPasswordPolicy(cfg.Auth.MinPasswordLength),
			ResetTokenTTL:            cfg.ResetTTL(),
			VerificationTokenTTL:     cfg.VerificationTTL(),
			Logger:                   logger,
			Metrics:                  metrics,
		},
	)
}

// purgeLoop removes expired refresh and single-use tokens on a fixed
// interval until the context is canceled.
func purgeLoop(ctx context.Context, svc *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh, singleUse, err := svc.PurgeExpired(ctx)
			if err != nil {
				errutil.LogError(logger, "token purge failed", err)
				continue
			}
			if refresh > 0 || singleUse > 0 {
				logger.Info("purged expired tokens",
					"refresh_tokens", refresh,
					"single_use_tokens", singleUse)
			}
		}
	}
}
