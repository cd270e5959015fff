// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package signup

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/pkg/fielderr"
)

const mailingListMessage = "That address is a mailing list, not a personal account. Please use your real email address."

// dnsLookuper is the resolver surface the checker needs. *net.Resolver
// satisfies it.
type dnsLookuper interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// MailingListChecker verifies signup addresses for mirror realms against a
// directory DNS allow-list. A personal account has a TXT record at
// <local-part>.<zone>; a mailing list or nonexistent user does not.
type MailingListChecker struct {
	resolver dnsLookuper
	zone     string
}

// NewMailingListChecker creates a checker for the given allow-list zone.
// An empty zone disables the check.
func NewMailingListChecker(zone string) *MailingListChecker {
	return &MailingListChecker{resolver: net.DefaultResolver, zone: zone}
}

// NewMailingListCheckerWithResolver creates a checker with an explicit
// resolver, for tests.
func NewMailingListCheckerWithResolver(resolver dnsLookuper, zone string) *MailingListChecker {
	return &MailingListChecker{resolver: resolver, zone: zone}
}

// Check verifies that the address names a personal account in the directory.
// A missing TXT record rejects the address with a field error; transient DNS
// server failures are retried and then surfaced as infrastructure errors.
func (c *MailingListChecker) Check(ctx context.Context, email string) error {
	if c.zone == "" {
		return nil
	}

	local, ok := realm.LocalPartOfEmail(email)
	if !ok || local == "" {
		return fielderr.New("email", mailingListMessage)
	}
	name := local + "." + c.zone

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := c.resolver.LookupTXT(ctx, name)
		if err == nil {
			return nil
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			if dnsErr.IsNotFound {
				return err
			}
			if dnsErr.IsTemporary || dnsErr.IsTimeout {
				return retry.RetryableError(err)
			}
		}
		return err
	})
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return fielderr.New("email", mailingListMessage)
	}
	return oops.Code("MAILING_LIST_CHECK_FAILED").
		With("operation", "lookup txt").
		With("name", name).
		Wrap(err)
}
