// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/accounts"
	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout   time.Duration
	subdomain string
	email     string
	password  string
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo organization and account",
		Long: `Creates a completely open demo organization with one account.
This command is idempotent - it will not create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().StringVar(&cfg.subdomain, "subdomain", "demo-org", "subdomain of the seeded organization")
	cmd.Flags().StringVar(&cfg.email, "email", "admin@demo-org.example", "email of the seeded account")
	cmd.Flags().StringVar(&cfg.password, "password", "change me soon", "password of the seeded account")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig) error {
	if err := accounts.ValidateEmail(cfg.email); err != nil {
		return err
	}
	// The seeded organization claims the account's email domain.
	domain, ok := realm.DomainOfEmail(cfg.email)
	if !ok {
		return oops.Code("SEED_INVALID_EMAIL").
			With("email", cfg.email).
			Errorf("cannot derive an organization domain from the email")
	}

	databaseURL, err := getDatabaseURL()
	if err != nil {
		return err
	}

	// Add timeout to prevent indefinite hangs
	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	st, err := store.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	cmd.Println("Running migrations...")
	if err := migrateUp(databaseURL); err != nil {
		return err
	}

	now := time.Now().UTC()

	demo, err := realm.New("Demo", cfg.subdomain, domain, realm.OrgTypeCommunity, now)
	if err != nil {
		return err
	}

	if err := st.Realms().Create(ctx, demo); err != nil {
		if !errors.Is(err, realm.ErrAlreadyExists) {
			return err
		}
		cmd.Println("Demo organization already exists, reusing it")
		existing, getErr := st.Realms().GetBySubdomain(ctx, cfg.subdomain)
		if getErr != nil {
			return getErr
		}
		if existing.Deactivated {
			slog.Warn("seeded organization is deactivated",
				"subdomain", cfg.subdomain,
				"realm_id", existing.ID.String())
		}
		demo = existing
	}

	if err := accounts.ValidatePassword(cfg.password); err != nil {
		return err
	}
	hash, err := accounts.NewArgon2idHasher().Hash(cfg.password)
	if err != nil {
		return err
	}

	user, err := accounts.NewUser(demo.ID, cfg.email, "Demo Admin", hash, now)
	if err != nil {
		return err
	}

	if err := st.Users().Create(ctx, user); err != nil {
		if !errors.Is(err, accounts.ErrAlreadyExists) {
			return err
		}
		cmd.Println("Demo account already exists, skipping")
		return nil
	}

	cmd.Printf("Seeded organization %q with account %s\n", cfg.subdomain, cfg.email)
	return nil
}
