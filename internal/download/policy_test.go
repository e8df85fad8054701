// SPDX-License-Identifier: MIT
package download

import (
	"errors"
	"testing"
)

func TestPolicySchemes(t *testing.T) {
	p, err := NewPolicy(nil)
	if err != nil {
		t.Fatalf("NewPolicy(nil) failed: %v", err)
	}

	if err := p.Check("https://example.com/file"); err != nil {
		t.Errorf("https should pass an empty allowlist: %v", err)
	}
	if err := p.Check("http://example.com/file"); err != nil {
		t.Errorf("http should pass an empty allowlist: %v", err)
	}
	if err := p.Check("ftp://example.com/file"); !errors.Is(err, ErrSchemeNotAllowed) {
		t.Errorf("expected ErrSchemeNotAllowed for ftp, got: %v", err)
	}
	if err := p.Check("file:///etc/passwd"); !errors.Is(err, ErrSchemeNotAllowed) {
		t.Errorf("expected ErrSchemeNotAllowed for file, got: %v", err)
	}
}

func TestPolicyAllowlist(t *testing.T) {
	p, err := NewPolicy([]string{"storage.googleapis.com", "huggingface.co"})
	if err != nil {
		t.Fatalf("NewPolicy() failed: %v", err)
	}

	if err := p.Check("https://storage.googleapis.com/bucket/file"); err != nil {
		t.Errorf("allowlisted host rejected: %v", err)
	}
	if err := p.Check("https://evil.example.com/file"); !errors.Is(err, ErrHostNotAllowed) {
		t.Errorf("expected ErrHostNotAllowed, got: %v", err)
	}
	// Port must not defeat the host match.
	if err := p.Check("https://storage.googleapis.com:443/bucket/file"); err != nil {
		t.Errorf("allowlisted host with port rejected: %v", err)
	}
}

func TestPolicyNormalizesIDNA(t *testing.T) {
	p, err := NewPolicy([]string{"bücher.example"})
	if err != nil {
		t.Fatalf("NewPolicy() failed: %v", err)
	}

	// The punycode spelling of the allowlisted unicode host must match.
	if err := p.Check("http://xn--bcher-kva.example/katalog"); err != nil {
		t.Errorf("punycode spelling rejected: %v", err)
	}
	// Case folds before matching.
	if err := p.Check("http://BÜCHER.example/katalog"); err != nil {
		t.Errorf("uppercase spelling rejected: %v", err)
	}
}

func TestPolicyRejectsGarbage(t *testing.T) {
	p, _ := NewPolicy(nil)

	if err := p.Check("http://"); err == nil {
		t.Error("expected error for URL without host")
	}
	if err := p.Check("://nope"); err == nil {
		t.Error("expected error for malformed URL")
	}
}

func TestNilPolicyAllowsEverything(t *testing.T) {
	var p *Policy
	if err := p.Check("https://anything.example/file"); err != nil {
		t.Errorf("nil policy should allow http(s): %v", err)
	}
	if err := p.Check("gopher://anything.example"); !errors.Is(err, ErrSchemeNotAllowed) {
		t.Errorf("nil policy still restricts schemes, got: %v", err)
	}
}
