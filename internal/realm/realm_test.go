// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package realm_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/pkg/errutil"
)

func TestNew(t *testing.T) {
	now := time.Now().UTC()

	t.Run("creates realm with defaults", func(t *testing.T) {
		r, err := realm.New("Acme Corp", "acme", "Acme.COM", realm.OrgTypeCorporate, now)
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", r.Name)
		assert.Equal(t, "acme", r.Subdomain)
		assert.Equal(t, "acme.com", r.Domain)
		assert.Equal(t, realm.OrgTypeCorporate, r.OrgType)
		assert.False(t, r.Deactivated)
		assert.True(t, r.CompletelyOpen())
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := realm.New("", "acme", "acme.com", realm.OrgTypeCommunity, now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REALM_INVALID_NAME")
	})

	t.Run("overlong name rejected", func(t *testing.T) {
		_, err := realm.New(strings.Repeat("x", realm.MaxNameLength+1), "acme", "acme.com", realm.OrgTypeCommunity, now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REALM_INVALID_NAME")
	})

	t.Run("undotted domain rejected", func(t *testing.T) {
		_, err := realm.New("Acme", "acme", "localhost", realm.OrgTypeCommunity, now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REALM_INVALID_DOMAIN")
	})

	t.Run("unknown org type falls back to community", func(t *testing.T) {
		r, err := realm.New("Acme", "acme", "acme.com", realm.OrgType("cooperative"), now)
		require.NoError(t, err)
		assert.Equal(t, realm.OrgTypeCommunity, r.OrgType)
	})
}

func TestRealm_CompletelyOpen(t *testing.T) {
	r := &realm.Realm{}
	assert.True(t, r.CompletelyOpen())

	r.InviteRequired = true
	assert.False(t, r.CompletelyOpen())

	r.InviteRequired = false
	r.RestrictedToDomain = true
	assert.False(t, r.CompletelyOpen())
}

func TestRealm_DomainMatches(t *testing.T) {
	r := &realm.Realm{Domain: "example.com"}

	assert.True(t, r.DomainMatches("example.com"))
	assert.True(t, r.DomainMatches("EXAMPLE.com"))
	assert.False(t, r.DomainMatches("eng.example.com"))
	assert.False(t, r.DomainMatches("other.org"))

	r.AllowSubdomains = true
	assert.True(t, r.DomainMatches("eng.example.com"))
	assert.False(t, r.DomainMatches("badexample.com"))
}
