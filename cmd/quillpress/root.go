// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/quillpress/quillpress/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the QuillPress auth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quillpress",
		Short: "QuillPress authentication service",
		Long: `QuillPress auth manages accounts, credentials, and tokens for the
QuillPress publishing platform: argon2id password hashing, JWT access
tokens, rotated refresh tokens, and single-use reset/verification tokens.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (default: "+xdg.ConfigDir()+"/config.yaml when present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// resolveConfigFile returns the --config value, falling back to the XDG
// default location when a config file exists there.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}
