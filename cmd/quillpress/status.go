// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpress/quillpress/internal/config"
	"github.com/quillpress/quillpress/internal/store"
)

// databaseCheckTimeout bounds the connectivity probe so status stays
// responsive when the database is down.
const databaseCheckTimeout = 3 * time.Second

// Status holds the service status information.
type Status struct {
	Issuer            string `json:"issuer"`
	Audience          string `json:"audience"`
	MetricsAddr       string `json:"metrics_addr"`
	Database          string `json:"database"`
	MigrationVersion  uint   `json:"migration_version"`
	MigrationDirty    bool   `json:"migration_dirty,omitempty"`
	PendingMigrations []uint `json:"pending_migrations,omitempty"`
	Error             string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service configuration and database status",
		Long: `Show the effective token configuration, database reachability, and
schema migration state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	svcCfg, err := config.Load(resolveConfigFile(), nil)
	if err != nil {
		return err
	}

	status := collectStatus(cmd.Context(), svcCfg)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// collectStatus gathers the service status. Database and migration failures
// are reported in the result rather than returned, so a down database still
// produces a readable status.
func collectStatus(ctx context.Context, cfg *config.Config) Status {
	status := Status{
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
		MetricsAddr: cfg.Observability.ListenAddr,
		Database:    "unreachable",
	}

	checkCtx, cancel := context.WithTimeout(ctx, databaseCheckTimeout)
	defer cancel()

	pool, err := store.Connect(checkCtx, cfg.Database.URL)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	pool.Close()
	status.Database = "ok"

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		status.Error = fmt.Sprintf("failed to inspect migrations: %v", err)
		return status
	}
	defer func() { _ = migrator.Close() }()

	version, dirty, err := migrator.Version()
	if err != nil {
		status.Error = fmt.Sprintf("failed to read migration version: %v", err)
		return status
	}
	status.MigrationVersion = version
	status.MigrationDirty = dirty

	pending, err := migrator.PendingMigrations()
	if err != nil {
		status.Error = fmt.Sprintf("failed to list pending migrations: %v", err)
		return status
	}
	status.PendingMigrations = pending

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status Status) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Issuer:\t%s\n", status.Issuer)
	_, _ = fmt.Fprintf(w, "Audience:\t%s\n", status.Audience)
	_, _ = fmt.Fprintf(w, "Metrics:\t%s\n", status.MetricsAddr)
	_, _ = fmt.Fprintf(w, "Database:\t%s\n", status.Database)

	if status.Database == "ok" {
		schema := fmt.Sprintf("version %d", status.MigrationVersion)
		if status.MigrationDirty {
			schema += " (dirty)"
		}
		if n := len(status.PendingMigrations); n > 0 {
			schema += fmt.Sprintf(", %d pending", n)
		}
		_, _ = fmt.Fprintf(w, "Schema:\t%s\n", schema)
	}
	if status.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", status.Error)
	}

	_ = w.Flush()
	return sb.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status Status) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}
