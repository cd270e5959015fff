// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/accounts"
	"github.com/parleychat/parley/internal/accounts/postgres"
	"github.com/parleychat/parley/pkg/errutil"
)

var userColumns = []string{
	"id", "realm_id", "email", "full_name", "password_hash",
	"is_active", "is_bot", "failed_attempts", "locked_until",
	"created_at", "updated_at",
}

func userRow(u *accounts.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns).AddRow(
		u.ID.String(), u.RealmID.String(), u.Email, u.FullName, u.PasswordHash,
		u.IsActive, u.IsBot, u.FailedAttempts, u.LockedUntil,
		u.CreatedAt, u.UpdatedAt,
	)
}

func testUser() *accounts.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &accounts.User{
		ID:           ulid.Make(),
		RealmID:      ulid.Make(),
		Email:        "hamlet@example.com",
		FullName:     "Hamlet",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$salt$hash",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		u := testUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(u.ID.String(), u.RealmID.String(), u.Email, u.FullName, u.PasswordHash,
				u.IsActive, u.IsBot, u.FailedAttempts, u.LockedUntil,
				u.CreatedAt, u.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.Create(ctx, u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to USER_ALREADY_EXISTS", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		u := testUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(u.ID.String(), u.RealmID.String(), u.Email, u.FullName, u.PasswordHash,
				u.IsActive, u.IsBot, u.FailedAttempts, u.LockedUntil,
				u.CreatedAt, u.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		repo := postgres.NewUserRepository(mock)
		err = repo.Create(ctx, u)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_ALREADY_EXISTS")
		assert.ErrorIs(t, err, accounts.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("matches case-insensitively", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		u := testUser()
		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("HAMLET@example.com").
			WillReturnRows(userRow(u))

		repo := postgres.NewUserRepository(mock)
		got, err := repo.GetByEmail(ctx, "HAMLET@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.RealmID, got.RealmID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps ErrNotFound for missing user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM users`).
			WithArgs("ghost@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns))

		repo := postgres.NewUserRepository(mock)
		_, err = repo.GetByEmail(ctx, "ghost@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, accounts.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_ExistsActiveByEmail(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("hamlet@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := postgres.NewUserRepository(mock)
	exists, err := repo.ExistsActiveByEmail(ctx, "hamlet@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ListActiveNonBotByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("returns matching users", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		u1 := testUser()
		u2 := testUser()
		rows := pgxmock.NewRows(userColumns).
			AddRow(u1.ID.String(), u1.RealmID.String(), u1.Email, u1.FullName, u1.PasswordHash,
				u1.IsActive, u1.IsBot, u1.FailedAttempts, u1.LockedUntil, u1.CreatedAt, u1.UpdatedAt).
			AddRow(u2.ID.String(), u2.RealmID.String(), u2.Email, u2.FullName, u2.PasswordHash,
				u2.IsActive, u2.IsBot, u2.FailedAttempts, u2.LockedUntil, u2.CreatedAt, u2.UpdatedAt)

		mock.ExpectQuery(`SELECT (.+) FROM users\s+WHERE LOWER\(email\) = LOWER\(\$1\) AND is_active AND NOT is_bot`).
			WithArgs("hamlet@example.com").
			WillReturnRows(rows)

		repo := postgres.NewUserRepository(mock)
		users, err := repo.ListActiveNonBotByEmail(ctx, "hamlet@example.com")
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT (.+) FROM users`).
			WithArgs("ghost@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns))

		repo := postgres.NewUserRepository(mock)
		users, err := repo.ListActiveNonBotByEmail(ctx, "ghost@example.com")
		require.NoError(t, err)
		assert.Empty(t, users)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("updates hash", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
			WithArgs(id.String(), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.UpdatePassword(ctx, id, "$argon2id$new"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
			WithArgs(id.String(), "$argon2id$new", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewUserRepository(mock)
		err = repo.UpdatePassword(ctx, id, "$argon2id$new")
		require.Error(t, err)
		assert.ErrorIs(t, err, accounts.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
