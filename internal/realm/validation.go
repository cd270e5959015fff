// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package realm

import (
	"regexp"
	"strings"

	"github.com/parleychat/parley/pkg/fielderr"
)

// Subdomain validation constraints.
const (
	MinSubdomainLength = 3
	MaxSubdomainLength = 40
)

// subdomainRegex matches lowercase letters, numbers, and dashes.
var subdomainRegex = regexp.MustCompile(`^[a-z0-9-]*$`)

// KeyWording carries the user-facing messages for the realm key field.
// Deployments that route realms by subdomain say "subdomain"; others call
// the same field an organization short name.
type KeyWording struct {
	TooShort     string
	ExtremalDash string
	BadCharacter string
	Unavailable  string
}

// SubdomainWording is the message set for subdomain-routed deployments.
var SubdomainWording = KeyWording{
	TooShort:     "Subdomain needs to have length 3 or greater.",
	ExtremalDash: "Subdomain cannot start or end with a '-'.",
	BadCharacter: "Subdomain can only have lowercase letters, numbers, and '-'s.",
	Unavailable:  "Subdomain unavailable. Please choose a different one.",
}

// ShortNameWording is the message set for deployments without subdomain routing.
var ShortNameWording = KeyWording{
	TooShort:     "Short name needs at least 3 characters.",
	ExtremalDash: "Short name cannot start or end with a '-'.",
	BadCharacter: "Short name can only have lowercase letters, numbers, and '-'s.",
	Unavailable:  "Short name unavailable. Please choose a different one.",
}

// ValidateSubdomain checks a realm subdomain with subdomain wording.
// An empty subdomain passes; the field is optional at registration.
func ValidateSubdomain(subdomain string) error {
	return ValidateKey(subdomain, SubdomainWording)
}

// ValidateKey checks a realm key (subdomain or short name) against format
// rules and the reserved list. Check order: empty passes, then length,
// extremal dash, character set, reserved. Availability against existing
// realms is a repository concern and is checked by the caller.
func ValidateKey(key string, w KeyWording) error {
	if key == "" {
		return nil
	}
	if len(key) < MinSubdomainLength {
		return fielderr.New("realm_subdomain", w.TooShort)
	}
	if key[0] == '-' || key[len(key)-1] == '-' {
		return fielderr.New("realm_subdomain", w.ExtremalDash)
	}
	if !subdomainRegex.MatchString(key) {
		return fielderr.New("realm_subdomain", w.BadCharacter)
	}
	if IsReservedSubdomain(key) {
		return fielderr.New("realm_subdomain", w.Unavailable)
	}
	return nil
}

// UnavailableError returns the collision rejection for the realm key field.
func UnavailableError(w KeyWording) *fielderr.Error {
	return fielderr.New("realm_subdomain", w.Unavailable)
}

// SubdomainFromHost extracts the realm subdomain from a request host.
// Returns "" when the host is the external host itself, is not under it,
// or carries a key that is not a plausible subdomain.
func SubdomainFromHost(host, externalHost string) string {
	host = strings.ToLower(strings.Split(host, ":")[0])
	externalHost = strings.ToLower(strings.Split(externalHost, ":")[0])
	if host == "" || externalHost == "" || host == externalHost {
		return ""
	}
	if !strings.HasSuffix(host, "."+externalHost) {
		return ""
	}
	sub := strings.TrimSuffix(host, "."+externalHost)
	if strings.Contains(sub, ".") || !subdomainRegex.MatchString(sub) {
		return ""
	}
	return sub
}

// DomainOfEmail returns the lowercased domain of an email address.
func DomainOfEmail(email string) (string, bool) {
	local, domain, ok := splitEmail(email)
	if !ok || local == "" {
		return "", false
	}
	return domain, true
}

// LocalPartOfEmail returns the part of an email address before the final @.
func LocalPartOfEmail(email string) (string, bool) {
	local, _, ok := splitEmail(email)
	return local, ok
}

func splitEmail(email string) (local, domain string, ok bool) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	return email[:at], strings.ToLower(email[at+1:]), true
}
