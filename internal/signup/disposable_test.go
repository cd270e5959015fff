// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package signup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDisposableEmail(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		disposable bool
	}{
		{"known provider", "throwaway@mailinator.com", true},
		{"case-insensitive", "throwaway@Mailinator.COM", true},
		{"subdomain of blocked domain", "throwaway@mx.mailinator.com", true},
		{"regular provider", "hamlet@example.com", false},
		{"blocked domain as suffix only", "hamlet@notmailinator.com", false},
		{"invalid address", "not-an-email", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.disposable, IsDisposableEmail(tt.email))
		})
	}
}
