// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CredKeeper Contributors

package main

import (
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/credkeeper/credkeeper/internal/store"
)

// schemaMigrator is the migration surface the CLI drives.
type schemaMigrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
}

// migratorFactory opens a migrator against a database URL.
type migratorFactory func(databaseURL string) (schemaMigrator, error)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithFactory(func(databaseURL string) (schemaMigrator, error) {
		return store.NewMigrator(databaseURL)
	})
}

func newMigrateCmdWithFactory(factory migratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long:  `Apply, roll back, or inspect schema migrations against the PostgreSQL database.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m schemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m schemaMigrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m schemaMigrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				cmd.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("MIGRATE_INVALID_VERSION").
					With("arg", args[0]).
					Wrap(err)
			}
			return withMigrator(cmd, factory, func(m schemaMigrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator resolves the database URL, opens a migrator, runs fn,
// and closes the migrator.
func withMigrator(cmd *cobra.Command, factory migratorFactory, fn func(schemaMigrator) error) error {
	databaseURL := databaseURLFromEnv()
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("CREDKEEPER_DATABASE_URL environment variable is required")
	}

	cmd.Println("Connecting to database...")
	migrator, err := factory(databaseURL)
	if err != nil {
		return err
	}

	if err := fn(migrator); err != nil {
		_ = migrator.Close()
		return err
	}
	return migrator.Close()
}

// databaseURLFromEnv reads the database URL, accepting the bare
// DATABASE_URL spelling as a fallback.
func databaseURLFromEnv() string {
	if url := os.Getenv("CREDKEEPER_DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}
