// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package postgres implements realm persistence on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleychat/parley/internal/realm"
)

const realmColumns = `id, name, subdomain, domain, org_type,
	       restricted_to_domain, invite_required, deactivated, mirror_mode,
	       allow_subdomains, created_at, updated_at`

// DB is the pgx query surface the repository needs. Both *pgxpool.Pool and
// pgxmock satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RealmRepository implements realm.Repository using PostgreSQL.
type RealmRepository struct {
	db DB
}

// NewRealmRepository creates a new RealmRepository.
func NewRealmRepository(db DB) *RealmRepository {
	return &RealmRepository{db: db}
}

// Create stores a new realm.
func (r *RealmRepository) Create(ctx context.Context, rm *realm.Realm) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO realms (
			id, name, subdomain, domain, org_type,
			restricted_to_domain, invite_required, deactivated, mirror_mode,
			allow_subdomains, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rm.ID.String(),
		rm.Name,
		rm.Subdomain,
		rm.Domain,
		string(rm.OrgType),
		rm.RestrictedToDomain,
		rm.InviteRequired,
		rm.Deactivated,
		rm.MirrorMode,
		rm.AllowSubdomains,
		rm.CreatedAt,
		rm.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("REALM_ALREADY_EXISTS").
				With("subdomain", rm.Subdomain).
				Wrap(realm.ErrAlreadyExists)
		}
		return oops.Code("REALM_CREATE_FAILED").
			With("operation", "insert realm").
			With("subdomain", rm.Subdomain).
			Wrap(err)
	}
	return nil
}

// Get retrieves a realm by ID.
func (r *RealmRepository) Get(ctx context.Context, id ulid.ULID) (*realm.Realm, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+realmColumns+`
		FROM realms
		WHERE id = $1
	`, id.String())

	rm, err := scanRealm(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REALM_NOT_FOUND").
			With("id", id.String()).
			Wrap(realm.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REALM_GET_FAILED").
			With("operation", "get realm by id").
			With("id", id.String()).
			Wrap(err)
	}
	return rm, nil
}

// GetBySubdomain retrieves a realm by subdomain (case-insensitive).
func (r *RealmRepository) GetBySubdomain(ctx context.Context, subdomain string) (*realm.Realm, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+realmColumns+`
		FROM realms
		WHERE LOWER(subdomain) = LOWER($1)
	`, subdomain)

	rm, err := scanRealm(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REALM_NOT_FOUND").
			With("subdomain", subdomain).
			Wrap(realm.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REALM_GET_BY_SUBDOMAIN_FAILED").
			With("operation", "get realm by subdomain").
			With("subdomain", subdomain).
			Wrap(err)
	}
	return rm, nil
}

// GetByDomain retrieves a realm by email domain (case-insensitive).
func (r *RealmRepository) GetByDomain(ctx context.Context, domain string) (*realm.Realm, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+realmColumns+`
		FROM realms
		WHERE LOWER(domain) = LOWER($1)
	`, domain)

	rm, err := scanRealm(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REALM_NOT_FOUND").
			With("domain", domain).
			Wrap(realm.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REALM_GET_BY_DOMAIN_FAILED").
			With("operation", "get realm by domain").
			With("domain", domain).
			Wrap(err)
	}
	return rm, nil
}

// ExistsBySubdomain checks whether a realm claims the subdomain.
func (r *RealmRepository) ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM realms WHERE LOWER(subdomain) = LOWER($1))
	`, subdomain).Scan(&exists)
	if err != nil {
		return false, oops.Code("REALM_EXISTS_FAILED").
			With("operation", "check subdomain exists").
			With("subdomain", subdomain).
			Wrap(err)
	}
	return exists, nil
}

// UniqueOpenRealm returns the server's only realm iff exactly one realm
// exists and it is completely open.
func (r *RealmRepository) UniqueOpenRealm(ctx context.Context) (*realm.Realm, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+realmColumns+`
		FROM realms
		LIMIT 2
	`)
	if err != nil {
		return nil, oops.Code("REALM_UNIQUE_OPEN_FAILED").
			With("operation", "query realms").
			Wrap(err)
	}
	defer rows.Close()

	var realms []*realm.Realm
	for rows.Next() {
		rm, scanErr := scanRealm(rows)
		if scanErr != nil {
			return nil, oops.Code("REALM_UNIQUE_OPEN_FAILED").
				With("operation", "scan realm").
				Wrap(scanErr)
		}
		realms = append(realms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("REALM_UNIQUE_OPEN_FAILED").
			With("operation", "iterate realms").
			Wrap(err)
	}

	if len(realms) != 1 || !realms[0].CompletelyOpen() || realms[0].Deactivated {
		return nil, oops.Code("REALM_NOT_FOUND").Wrap(realm.ErrNotFound)
	}
	return realms[0], nil
}

// Update updates an existing realm.
func (r *RealmRepository) Update(ctx context.Context, rm *realm.Realm) error {
	result, err := r.db.Exec(ctx, `
		UPDATE realms SET
			name = $2,
			subdomain = $3,
			domain = $4,
			org_type = $5,
			restricted_to_domain = $6,
			invite_required = $7,
			deactivated = $8,
			mirror_mode = $9,
			allow_subdomains = $10,
			updated_at = $11
		WHERE id = $1
	`,
		rm.ID.String(),
		rm.Name,
		rm.Subdomain,
		rm.Domain,
		string(rm.OrgType),
		rm.RestrictedToDomain,
		rm.InviteRequired,
		rm.Deactivated,
		rm.MirrorMode,
		rm.AllowSubdomains,
		rm.UpdatedAt,
	)
	if err != nil {
		return oops.Code("REALM_UPDATE_FAILED").
			With("operation", "update realm").
			With("id", rm.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REALM_NOT_FOUND").
			With("id", rm.ID.String()).
			Wrap(realm.ErrNotFound)
	}
	return nil
}

// scanRealm scans a single row into a Realm.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRealm(row pgx.Row) (*realm.Realm, error) {
	var (
		rm      realm.Realm
		idStr   string
		orgType string
	)

	err := row.Scan(
		&idStr,
		&rm.Name,
		&rm.Subdomain,
		&rm.Domain,
		&orgType,
		&rm.RestrictedToDomain,
		&rm.InviteRequired,
		&rm.Deactivated,
		&rm.MirrorMode,
		&rm.AllowSubdomains,
		&rm.CreatedAt,
		&rm.UpdatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("REALM_SCAN_FAILED").
			With("operation", "scan realm").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("REALM_INVALID_ID").
			With("operation", "parse realm id").
			With("id", idStr).
			Wrap(err)
	}
	rm.ID = id
	rm.OrgType = realm.OrgType(orgType)

	return &rm, nil
}

// Compile-time interface check.
var _ realm.Repository = (*RealmRepository)(nil)
