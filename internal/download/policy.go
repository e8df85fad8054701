// SPDX-License-Identifier: MIT

package download

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrSchemeNotAllowed marks URLs outside http/https.
	ErrSchemeNotAllowed = errors.New("download: scheme not allowed")
	// ErrHostNotAllowed marks hosts outside the configured allowlist.
	ErrHostNotAllowed = errors.New("download: host not allowed")
)

// Policy decides which URLs the manager may dial. An empty allowlist permits
// every http/https host.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy builds a policy from a host allowlist. Hosts are IDNA-normalized
// so that unicode and punycode spellings of the same name match.
func NewPolicy(hosts []string) (*Policy, error) {
	p := &Policy{}
	if len(hosts) == 0 {
		return p, nil
	}
	p.allowed = make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		norm, err := normalizeHost(h)
		if err != nil {
			return nil, fmt.Errorf("download: invalid allowlist host %q: %w", h, err)
		}
		p.allowed[norm] = struct{}{}
	}
	return p, nil
}

// Check rejects URLs the policy does not cover. It runs before any dialing.
func (p *Policy) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("download: invalid url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrSchemeNotAllowed, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("download: url %q has no host", rawURL)
	}
	if p == nil || p.allowed == nil {
		return nil
	}
	norm, err := normalizeHost(host)
	if err != nil {
		return fmt.Errorf("download: invalid host %q: %w", host, err)
	}
	if _, ok := p.allowed[norm]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, norm)
	}
	return nil
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return "", errors.New("empty host")
	}
	// Literal IPs pass through untouched; idna only applies to names.
	if strings.ContainsAny(host, ":[]") {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	return ascii, nil
}
