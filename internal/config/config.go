// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package config loads and validates service configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then command-line flags. Later layers win.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds all settings for the account-intake service.
type Config struct {
	// ListenAddr is the address of the public HTTP API.
	ListenAddr string `koanf:"listen_addr"`

	// MetricsAddr is the address of the metrics/health server (empty = disabled).
	MetricsAddr string `koanf:"metrics_addr"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `koanf:"database_url"`

	// ExternalHost is the root host realms hang off of (e.g. "parley.example.com").
	// Realm subdomains are resolved relative to it.
	ExternalHost string `koanf:"external_host"`

	// SupportEmail is shown in user-facing rejection messages.
	SupportEmail string `koanf:"support_email"`

	// RealmSubdomains controls whether realms are routed by subdomain.
	// When false, the subdomain field is treated as an organization short name
	// and login is not checked against the request host.
	RealmSubdomains bool `koanf:"realm_subdomains"`

	// PasswordAuthEnabled gates password login and password resets.
	PasswordAuthEnabled bool `koanf:"password_auth_enabled"`

	// TermsOfService requires the terms checkbox during registration.
	TermsOfService bool `koanf:"terms_of_service"`

	// OpenRealmCreation allows anyone to create a new realm.
	OpenRealmCreation bool `koanf:"open_realm_creation"`

	// MailingListZone is the DNS zone consulted for mirror-realm signups
	// (TXT lookup of <localpart>.<zone>). Empty disables the check.
	MailingListZone string `koanf:"mailing_list_zone"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`
}

// Defaults returns a Config populated with development defaults.
func Defaults() Config {
	return Config{
		ListenAddr:          "127.0.0.1:8080",
		MetricsAddr:         "127.0.0.1:9100",
		ExternalHost:        "localhost:8080",
		SupportEmail:        "support@localhost",
		RealmSubdomains:     true,
		PasswordAuthEnabled: true,
		TermsOfService:      false,
		OpenRealmCreation:   false,
		LogFormat:           "json",
	}
}

// Load builds a Config from defaults, an optional YAML file, and flags.
// path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	// Unmarshal over defaults: keys absent from file and flags keep them.
	out := Defaults()
	if err := k.Unmarshal("", &out); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr is required")
	}
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}
	if c.ExternalHost == "" {
		return oops.Code("CONFIG_INVALID").Errorf("external_host is required")
	}
	if c.SupportEmail == "" || !strings.Contains(c.SupportEmail, "@") {
		return oops.Code("CONFIG_INVALID").Errorf("support_email must be an email address, got %q", c.SupportEmail)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	return nil
}
