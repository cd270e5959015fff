// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	users  UserRepository
	resets PasswordResetRepository
	hasher PasswordHasher
	logger *slog.Logger

	passwordAuthEnabled bool
}

// NewPasswordResetService creates a new PasswordResetService using the
// default logger.
func NewPasswordResetService(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	passwordAuthEnabled bool,
) *PasswordResetService {
	svc, _ := NewPasswordResetServiceWithLogger(users, resets, hasher, passwordAuthEnabled, slog.Default())
	return svc
}

// NewPasswordResetServiceWithLogger creates a new PasswordResetService with
// an explicit logger.
func NewPasswordResetServiceWithLogger(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	passwordAuthEnabled bool,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if logger == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("logger cannot be nil")
	}
	return &PasswordResetService{
		users:               users,
		resets:              resets,
		hasher:              hasher,
		logger:              logger,
		passwordAuthEnabled: passwordAuthEnabled,
	}, nil
}

// ResetGrant pairs an eligible user with the plaintext token generated for them.
// Sending the token by email is the caller's job.
type ResetGrant struct {
	User  *User
	Token string
}

// EligibleUsers returns the accounts that may receive a reset email for the
// given address: active, non-bot, matched case-insensitively. Accounts
// without a usable password are included; a reset is how they get one.
// Returns an empty slice when password auth is disabled on this server.
func (s *PasswordResetService) EligibleUsers(ctx context.Context, email string) ([]*User, error) {
	if !s.passwordAuthEnabled {
		s.logger.Info("password reset attempted even though password auth is disabled",
			"email", email)
		return nil, nil
	}

	users, err := s.users.ListActiveNonBotByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "ListActiveNonBotByEmail").
			Wrap(err)
	}
	return users, nil
}

// RequestReset generates reset tokens for every eligible account matching
// the email. Returns the grants for sending via email (email sending is NOT
// this service's job). If no account is eligible, returns an empty slice and
// no error to prevent email enumeration.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) ([]ResetGrant, error) {
	eligible, err := s.EligibleUsers(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		s.logger.Info("password reset attempted for email with no eligible account",
			"email", email)
		return nil, nil
	}

	grants := make([]ResetGrant, 0, len(eligible))
	for _, user := range eligible {
		token, hash, err := GenerateResetToken()
		if err != nil {
			return nil, oops.Code("RESET_REQUEST_FAILED").
				With("operation", "GenerateResetToken").
				Wrap(err)
		}

		reset, err := NewPasswordReset(user.ID, hash, time.Now().Add(ResetTokenExpiry))
		if err != nil {
			return nil, oops.Code("RESET_REQUEST_FAILED").
				With("operation", "NewPasswordReset").
				Wrap(err)
		}

		if err := s.resets.Create(ctx, reset); err != nil {
			return nil, oops.Code("RESET_REQUEST_FAILED").
				With("operation", "Create").
				Wrap(err)
		}

		grants = append(grants, ResetGrant{User: user, Token: token})
	}

	return grants, nil
}

// ValidateToken validates a reset token and returns the associated user ID.
// Returns an error if the token is invalid, expired, or not found.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("RESET_TOKEN_EMPTY").Errorf("reset token cannot be empty")
	}

	hash := hashResetToken(token)

	reset, err := s.resets.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
		}
		return ulid.ULID{}, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "GetByTokenHash").
			Wrap(err)
	}

	if reset.IsExpired() {
		return ulid.ULID{}, oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
	}

	return reset.UserID, nil
}

// ResetPassword resets a user's password using a valid reset token.
// Validates the token, hashes the new password, updates the user's password,
// and deletes all reset tokens for the user.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err // Already has appropriate error code
	}

	hashedPassword, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "Hash").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "UpdatePassword").
			Wrap(err)
	}

	// Cleanup - if it fails, the password was still updated successfully.
	if err := s.resets.DeleteByUser(ctx, userID); err != nil {
		s.logger.Warn("best-effort reset token cleanup failed",
			"operation", "delete_tokens",
			"error", err.Error())
	}

	return nil
}
