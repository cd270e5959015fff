// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package accounts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/parleychat/parley/pkg/fielderr"
)

// PasswordService handles authenticated password changes.
type PasswordService struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewPasswordService creates a new PasswordService.
func NewPasswordService(users UserRepository, hasher PasswordHasher, logger *slog.Logger) *PasswordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// ChangePassword changes a user's password after verifying the old one.
func (s *PasswordService) ChangePassword(ctx context.Context, userID ulid.ULID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("PASSWORD_CHANGE_FAILED").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "GetByID").
			Wrap(err)
	}

	if !user.HasUsablePassword() {
		return fielderr.New("old_password", "Your account does not have a password set.")
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "Verify").
			Wrap(err)
	}
	if !valid {
		return fielderr.New("old_password", "Wrong password.")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "Hash").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "UpdatePassword").
			Wrap(err)
	}

	s.logger.Info("password changed",
		"user_id", userID.String())

	return nil
}
