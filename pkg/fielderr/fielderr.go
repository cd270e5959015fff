// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package fielderr defines the validation error attached to a form field.
//
// A *Error is a user-facing rejection: the submission is refused and the
// message is shown next to the named field. Anything else that goes wrong
// during validation (database, DNS) is an infrastructure error and is
// reported with an oops code instead.
package fielderr

import (
	"errors"
	"fmt"
)

// Error is a validation failure for a single form field.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// New returns a field validation error.
func New(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// As unwraps err into a *Error if it is one.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
