// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package realm

import (
	"context"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxNameLength bounds realm display names.
const MaxNameLength = 100

// OrgType classifies a realm at creation time.
type OrgType string

// Valid organization types.
const (
	OrgTypeCommunity OrgType = "community"
	OrgTypeCorporate OrgType = "corporate"
)

// Valid reports whether t is a known organization type.
func (t OrgType) Valid() bool {
	return t == OrgTypeCommunity || t == OrgTypeCorporate
}

// Realm is a tenant organization.
//
// A realm is addressed by its Subdomain and claims the email Domain its
// members sign up with. Signup gating reads three flags:
//   - RestrictedToDomain: only addresses under Domain may join
//   - InviteRequired: members must be invited
//   - MirrorMode: the realm mirrors an external user directory; signups are
//     verified against that directory's DNS allow-list
//
// A realm with neither RestrictedToDomain nor InviteRequired is completely
// open: anyone may join regardless of email domain.
type Realm struct {
	ID                 ulid.ULID
	Name               string
	Subdomain          string
	Domain             string
	OrgType            OrgType
	RestrictedToDomain bool
	InviteRequired     bool
	Deactivated        bool
	MirrorMode         bool

	// AllowSubdomains extends Domain matching to addresses under it
	// (e.g. "eng.example.com" matches a realm with Domain "example.com").
	AllowSubdomains bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompletelyOpen reports whether anyone may join the realm.
func (r *Realm) CompletelyOpen() bool {
	return !r.RestrictedToDomain && !r.InviteRequired
}

// DomainMatches reports whether an email domain belongs to this realm.
func (r *Realm) DomainMatches(domain string) bool {
	domain = strings.ToLower(domain)
	if domain == r.Domain {
		return true
	}
	if !r.AllowSubdomains {
		return false
	}
	g, err := glob.Compile("*."+r.Domain, '.')
	if err != nil {
		return false
	}
	return g.Match(domain)
}

// New creates a Realm with validated name, subdomain, and domain.
func New(name, subdomain, domain string, orgType OrgType, now time.Time) (*Realm, error) {
	if name == "" {
		return nil, oops.Code("REALM_INVALID_NAME").Errorf("realm name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return nil, oops.Code("REALM_INVALID_NAME").
			With("max", MaxNameLength).
			Errorf("realm name must be at most %d characters", MaxNameLength)
	}
	if err := ValidateSubdomain(subdomain); err != nil {
		return nil, err
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || !strings.Contains(domain, ".") {
		return nil, oops.Code("REALM_INVALID_DOMAIN").
			With("domain", domain).
			Errorf("realm domain must be a dotted hostname")
	}
	if !orgType.Valid() {
		orgType = OrgTypeCommunity
	}
	return &Realm{
		ID:        ulid.Make(),
		Name:      name,
		Subdomain: subdomain,
		Domain:    domain,
		OrgType:   orgType,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Repository manages realm persistence.
type Repository interface {
	// Create stores a new realm.
	Create(ctx context.Context, r *Realm) error

	// Get retrieves a realm by ID.
	Get(ctx context.Context, id ulid.ULID) (*Realm, error)

	// GetBySubdomain retrieves a realm by subdomain (case-insensitive).
	GetBySubdomain(ctx context.Context, subdomain string) (*Realm, error)

	// GetByDomain retrieves a realm by email domain (case-insensitive).
	GetByDomain(ctx context.Context, domain string) (*Realm, error)

	// ExistsBySubdomain checks whether a realm claims the subdomain.
	ExistsBySubdomain(ctx context.Context, subdomain string) (bool, error)

	// UniqueOpenRealm returns the server's only realm iff exactly one realm
	// exists and it is completely open. Returns ErrNotFound otherwise.
	UniqueOpenRealm(ctx context.Context) (*Realm, error)

	// Update updates an existing realm.
	Update(ctx context.Context, r *Realm) error
}
