// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package accounts provides user accounts and authentication for Parley.
//
// # Domain Types
//
// Domain types (User, WebSession, PasswordReset) should be created using
// their respective constructors:
//   - NewUser - creates a User with validated email and full name
//   - NewWebSession - creates a WebSession with validated user and expiry
//   - NewPasswordReset - creates a PasswordReset with validated user and expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - AuthService - login gates (deactivated realm, subdomain mismatch),
//     credential verification, session management
//   - PasswordResetService - reset eligibility and the token flow
//   - PasswordService - password changes with audit logging
//
// Services are created with New*Service constructors that validate
// dependencies.
package accounts
