// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/pkg/fielderr"
)

// User-facing login rejection messages.
const (
	deactivatedRealmMessage   = "Sorry for the trouble, but %s has been deactivated.\n\nPlease contact %s to reactivate this group."
	wrongSubdomainMessage     = "Your account is not a member of the organization associated with this subdomain. Please contact %s with any questions!"
	passwordAuthDisabledMsg   = "Password authentication is disabled on this server."
	invalidCredentialsMessage = "Please enter a correct email and password."
	accountLockedMessage      = "Too many failed login attempts. Please try again shortly."
)

// AuthService provides login, logout, and session validation.
type AuthService struct {
	users    UserRepository
	realms   realm.Repository
	sessions WebSessionRepository
	hasher   PasswordHasher

	supportEmail        string
	passwordAuthEnabled bool
	subdomainRouting    bool
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserRepository, realms realm.Repository, sessions WebSessionRepository, hasher PasswordHasher, supportEmail string, passwordAuthEnabled bool) *AuthService {
	return &AuthService{
		users:               users,
		realms:              realms,
		sessions:            sessions,
		hasher:              hasher,
		supportEmail:        supportEmail,
		passwordAuthEnabled: passwordAuthEnabled,
		subdomainRouting:    true,
	}
}

// DisableSubdomainRouting turns off the subdomain membership gate, for
// deployments where organizations are not addressed by subdomain.
func (s *AuthService) DisableSubdomainRouting() {
	s.subdomainRouting = false
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CheckLoginEmail applies the organization-level gates for a login attempt
// against the given subdomain. An email with no matching account passes
// untouched so the credential check can fail it uniformly.
//
// Gates, in order:
//  1. The account's organization must not be deactivated.
//  2. With subdomain routing enabled, the account must belong to the
//     organization served at this subdomain.
func (s *AuthService) CheckLoginEmail(ctx context.Context, email, subdomain string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_CHECK_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	userRealm, err := s.realms.Get(ctx, user.RealmID)
	if err != nil {
		return oops.Code("AUTH_CHECK_FAILED").
			With("operation", "get realm for user").
			Wrap(err)
	}

	if userRealm.Deactivated {
		return fielderr.New("username",
			fmt.Sprintf(deactivatedRealmMessage, userRealm.Name, s.supportEmail))
	}

	if s.subdomainRouting && userRealm.Subdomain != subdomain {
		return fielderr.New("username",
			fmt.Sprintf(wrongSubdomainMessage, s.supportEmail))
	}

	return nil
}

// Login authenticates a user against the organization at the given subdomain
// and creates a web session. Returns the session, plaintext token, and any
// error. Uses constant-time operations to prevent timing-based email
// enumeration once the organization gates have passed.
func (s *AuthService) Login(ctx context.Context, email, password, subdomain, userAgent, ipAddress string) (*WebSession, string, error) {
	if !s.passwordAuthEnabled {
		return nil, "", fielderr.New("username", passwordAuthDisabledMsg)
	}

	if err := s.CheckLoginEmail(ctx, email, subdomain); err != nil {
		return nil, "", err
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			// Use dummy hash - still perform verification to maintain constant time
			targetHash = dummyPasswordHash
			userExists = false
		} else {
			return nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
		if !user.HasUsablePassword() || !user.IsActive || user.IsBot {
			targetHash = dummyPasswordHash
			userExists = false
		}
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// For dummy hash verification errors, just treat as invalid
		if !userExists {
			return nil, "", fielderr.New("username", invalidCredentialsMessage)
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	// If user doesn't exist OR password invalid, return same rejection
	if !userExists || !valid {
		if userExists {
			// Record failure only for existing users
			user.RecordFailure()
			_ = s.users.Update(ctx, user) //nolint:errcheck // Best effort
		}
		return nil, "", fielderr.New("username", invalidCredentialsMessage)
	}

	// Check lockout AFTER password verification to maintain constant time
	if user.IsLocked() {
		return nil, "", fielderr.New("username", accountLockedMessage)
	}

	// Success - reset failure counter
	user.RecordSuccess()

	// Check if password needs upgrade (e.g., from bcrypt to argon2id)
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		newHash, hashErr := s.hasher.Hash(password)
		if hashErr == nil {
			user.PasswordHash = newHash
		}
	}

	// Update user with reset failure count (and possibly upgraded hash)
	// Ignore errors - login should succeed even if update fails
	_ = s.users.Update(ctx, user) //nolint:errcheck // Best effort, login succeeds regardless

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	expiresAt := time.Now().Add(SessionTokenExpiry)
	session, err := NewWebSession(user.ID, user.RealmID, tokenHash, userAgent, ipAddress, expiresAt)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create web session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}

// Logout invalidates a web session.
func (s *AuthService) Logout(ctx context.Context, sessionID ulid.ULID) error {
	err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// ValidateSession validates a session token and returns the session if valid.
// Also updates the LastSeenAt timestamp.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*WebSession, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	tokenHash := HashSessionToken(token)

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		return nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	// Update last seen timestamp (non-blocking, ignore errors)
	now := time.Now()
	_ = s.sessions.UpdateLastSeen(ctx, session.ID, now) //nolint:errcheck // Best effort, validation succeeds regardless

	return session, nil
}
