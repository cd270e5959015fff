// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package realm

// reservedSubdomains are realm keys held back for platform use. A realm can
// never claim one of these; the web tier routes them to platform pages.
var reservedSubdomains = map[string]struct{}{}

func init() {
	for _, s := range []string{
		// Core routing
		"www", "web", "app", "api", "admin", "dashboard", "console", "portal",

		// Authentication
		"auth", "login", "logout", "signup", "register", "account", "accounts",
		"oauth", "sso", "id", "identity", "verify",

		// Email infrastructure
		"mail", "email", "smtp", "imap", "pop", "mx", "postmaster", "abuse",

		// Network services
		"ftp", "ssh", "vpn", "proxy", "gateway", "ns", "ns1", "ns2", "dns",

		// Environments
		"dev", "staging", "stage", "test", "testing", "qa", "demo", "sandbox",
		"beta", "alpha", "canary", "prod", "production", "internal",

		// Docs and support
		"docs", "wiki", "help", "support", "faq", "blog", "news", "status",

		// Content delivery
		"cdn", "static", "assets", "media", "files", "uploads", "avatars",

		// Platform features
		"chat", "stream", "streams", "push", "bot", "bots",
		"metrics", "monitoring", "billing", "payments",
	} {
		reservedSubdomains[s] = struct{}{}
	}
}

// IsReservedSubdomain reports whether the subdomain is held back for platform use.
func IsReservedSubdomain(subdomain string) bool {
	_, ok := reservedSubdomains[subdomain]
	return ok
}
