// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package main

import (
	"github.com/spf13/cobra"

	authpg "github.com/quillpress/quillpress/internal/auth/postgres"
	"github.com/quillpress/quillpress/internal/config"
	"github.com/quillpress/quillpress/internal/store"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh and single-use tokens",
		Long: `One-shot retention cleanup: delete refresh token records and
single-use tokens that are past their expiry. The serve command runs the
same cleanup on a schedule.`,
		RunE: runPurge,
	}
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigFile(), nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	refresh, err := authpg.NewRefreshTokenRepository(pool).DeleteExpired(ctx)
	if err != nil {
		return err
	}
	singleUse, err := authpg.NewSingleUseTokenRepository(pool).DeleteExpired(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Deleted %d refresh token(s), %d single-use token(s)\n", refresh, singleUse)
	return nil
}
