// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package accounts

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a user claims a taken email in a realm.
var ErrAlreadyExists = errors.New("already exists")
