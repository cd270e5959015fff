// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package signup

import (
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/parleychat/parley/internal/realm"
)

//go:embed disposable_domains.yaml
var disposableDomainsYAML []byte

var (
	disposableOnce    sync.Once
	disposableDomains map[string]struct{}
)

func loadDisposableDomains() {
	var blocklist struct {
		Domains []string `yaml:"domains"`
	}
	// The blocklist ships with the binary; a parse failure is a build defect.
	if err := yaml.Unmarshal(disposableDomainsYAML, &blocklist); err != nil {
		panic("signup: invalid embedded disposable domain blocklist: " + err.Error())
	}
	disposableDomains = make(map[string]struct{}, len(blocklist.Domains))
	for _, d := range blocklist.Domains {
		disposableDomains[strings.ToLower(d)] = struct{}{}
	}
}

// IsDisposableEmail reports whether the address belongs to a known
// throwaway email provider. Subdomains of blocked domains are blocked too.
func IsDisposableEmail(email string) bool {
	disposableOnce.Do(loadDisposableDomains)

	domain, ok := realm.DomainOfEmail(email)
	if !ok {
		return false
	}
	for {
		if _, ok := disposableDomains[domain]; ok {
			return true
		}
		i := strings.Index(domain, ".")
		if i < 0 {
			return false
		}
		domain = domain[i+1:]
	}
}
