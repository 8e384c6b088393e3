// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the CredKeeper CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credkeeper",
		Short: "CredKeeper - credential management service",
		Long: `CredKeeper is a credential management service providing password
registration, stateless session tokens, and time-boxed password resets.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
