// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package store provides PostgreSQL connection and schema management.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/parleychat/parley/internal/accounts"
	accountspg "github.com/parleychat/parley/internal/accounts/postgres"
	"github.com/parleychat/parley/internal/realm"
	realmpg "github.com/parleychat/parley/internal/realm/postgres"
)

// Store owns the PostgreSQL connection pool and hands out repositories.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and verifies the connection.
// Startup races the database in most deployments, so the initial ping is
// retried with fibonacci backoff before giving up.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
	}

	return &Store{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ready reports whether the database answers a ping. Used as the
// observability server's readiness check.
func (s *Store) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx) == nil
}

// Realms returns the realm repository.
func (s *Store) Realms() realm.Repository {
	return realmpg.NewRealmRepository(s.pool)
}

// Users returns the user repository.
func (s *Store) Users() accounts.UserRepository {
	return accountspg.NewUserRepository(s.pool)
}

// Sessions returns the web session repository.
func (s *Store) Sessions() accounts.WebSessionRepository {
	return accountspg.NewWebSessionRepository(s.pool)
}

// PasswordResets returns the password reset repository.
func (s *Store) PasswordResets() accounts.PasswordResetRepository {
	return accountspg.NewPasswordResetRepository(s.pool)
}
