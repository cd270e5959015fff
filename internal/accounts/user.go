// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package accounts

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleychat/parley/pkg/fielderr"
)

// MaxFullNameLength bounds user display names.
const MaxFullNameLength = 100

// User is a member of a realm.
//
// A user with an empty PasswordHash has no usable password (accounts
// provisioned through external auth). Such users may still reset their
// password; they may not log in with one.
type User struct {
	ID             ulid.ULID
	RealmID        ulid.ULID
	Email          string
	FullName       string
	PasswordHash   string
	IsActive       bool
	IsBot          bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLocked returns true if the user is currently locked out.
func (u *User) IsLocked() bool {
	return IsLockedOut(u.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if threshold reached.
func (u *User) RecordFailure() {
	u.FailedAttempts++
	u.LockedUntil = ComputeLockoutTime(u.FailedAttempts)
	u.UpdatedAt = time.Now()
}

// RecordSuccess resets failure counter and lockout.
func (u *User) RecordSuccess() {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = time.Now()
}

// HasUsablePassword reports whether password login is possible for the user.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

// ValidateFullName checks a user's display name.
// Required, at most MaxFullNameLength bytes, valid UTF-8, no control characters.
func ValidateFullName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fielderr.New("full_name", "This field is required.")
	}
	if !utf8.ValidString(name) {
		return fielderr.New("full_name", "Name must be valid UTF-8.")
	}
	if len(name) > MaxFullNameLength {
		return fielderr.New("full_name", "Name is too long; 100 characters maximum.")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fielderr.New("full_name", "Name cannot contain control characters.")
		}
	}
	return nil
}

// ValidateEmail is a light structural check: non-empty local part, a domain
// with a dot. Deliverability is the mail system's problem.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fielderr.New("email", "Enter a valid email address.")
	}
	if !strings.Contains(email[at+1:], ".") {
		return fielderr.New("email", "Enter a valid email address.")
	}
	return nil
}

// NewUser creates a User with validated email and full name.
func NewUser(realmID ulid.ULID, email, fullName, passwordHash string, now time.Time) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateFullName(fullName); err != nil {
		return nil, err
	}
	if realmID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("USER_INVALID_REALM").Errorf("user must belong to a realm")
	}
	return &User{
		ID:           ulid.Make(),
		RealmID:      realmID,
		Email:        strings.TrimSpace(email),
		FullName:     fullName,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ExistsActiveByEmail checks whether an active user has the email
	// (case-insensitive).
	ExistsActiveByEmail(ctx context.Context, email string) (bool, error)

	// ListActiveNonBotByEmail returns active, non-bot users matching the
	// email case-insensitively. Users without a usable password are included.
	ListActiveNonBotByEmail(ctx context.Context, email string) ([]*User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
