// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package signup decides who may create accounts and organizations.
//
// The Service wires three gates:
//   - CheckSignupEmail: may this address join an organization on this server
//   - CheckRealmCreationEmail: may this address found a new organization
//   - ValidateRegistration: is the submitted registration form acceptable
//
// Rejections meant for the person filling in the form are fielderr values
// carrying the form field and message; anything else is an infrastructure
// error with an oops code.
package signup
