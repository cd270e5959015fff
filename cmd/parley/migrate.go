// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				databaseURL, err := getDatabaseURL()
				if err != nil {
					return err
				}
				if err := migrateUp(databaseURL); err != nil {
					return err
				}
				cmd.Println("Migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations (destructive)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				databaseURL, err := getDatabaseURL()
				if err != nil {
					return err
				}
				migrator, err := store.NewMigrator(databaseURL)
				if err != nil {
					return err
				}
				defer migrator.Close() //nolint:errcheck // best-effort cleanup
				if err := migrator.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				databaseURL, err := getDatabaseURL()
				if err != nil {
					return err
				}
				migrator, err := store.NewMigrator(databaseURL)
				if err != nil {
					return err
				}
				defer migrator.Close() //nolint:errcheck // best-effort cleanup

				version, dirty, err := migrator.Version()
				if err != nil {
					return err
				}
				name, err := store.MigrationName(version)
				if err != nil {
					return err
				}
				if name == "" {
					cmd.Printf("Version: %d (dirty: %v)\n", version, dirty)
				} else {
					cmd.Printf("Version: %d %s (dirty: %v)\n", version, name, dirty)
				}

				pending, err := migrator.PendingMigrations()
				if err != nil {
					return err
				}
				cmd.Printf("Pending: %d\n", len(pending))
				return nil
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the migration version without running migrations",
			Long: `Set the migration version without running migrations.
Use only to recover from a dirty state after manually fixing the database.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				databaseURL, err := getDatabaseURL()
				if err != nil {
					return err
				}
				migrator, err := store.NewMigrator(databaseURL)
				if err != nil {
					return err
				}
				defer migrator.Close() //nolint:errcheck // best-effort cleanup
				if err := migrator.Force(version); err != nil {
					return err
				}
				cmd.Printf("Version forced to %d\n", version)
				return nil
			},
		},
	)

	return cmd
}

// migrateUp applies all pending migrations.
func migrateUp(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // best-effort cleanup
	return migrator.Up()
}

// getDatabaseURL resolves the database connection string: the DATABASE_URL
// environment variable wins, then the config file named by --config.
func getDatabaseURL() (string, error) {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL, nil
	}
	if configFile != "" {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return "", err
		}
		return cfg.DatabaseURL, nil
	}
	return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable or --config file is required")
}

// parseForceVersion parses the version argument for migrate force.
// Negative values are allowed through so the store layer can report them.
func parseForceVersion(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
