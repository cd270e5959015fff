// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package realm

import "errors"

// ErrNotFound is returned when a requested realm does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a realm claims a taken subdomain or domain.
var ErrAlreadyExists = errors.New("already exists")
