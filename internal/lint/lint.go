// SPDX-License-Identifier: MIT

// Package lint validates catalog entries: required metadata annotations,
// per-configuration completeness, and citation well-formedness. The page
// reader is tolerant; this is where incomplete entries get rejected.
package lint

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
	"github.com/irfnrdh/tensorflow-datasets/internal/citation"
	"github.com/irfnrdh/tensorflow-datasets/internal/page"
)

// Rule codes.
const (
	RuleRequiredMetadata    = "required-metadata"
	RuleConfigVersion       = "config-version"
	RuleConfigFeatures      = "config-features"
	RuleConfigURLs          = "config-urls"
	RuleCitationWellformed  = "citation-wellformed"
	RuleDescriptionNonempty = "description-nonempty"
	RuleURLScheme           = "url-scheme"
)

var knownRules = map[string]struct{}{
	RuleRequiredMetadata:    {},
	RuleConfigVersion:       {},
	RuleConfigFeatures:      {},
	RuleConfigURLs:          {},
	RuleCitationWellformed:  {},
	RuleDescriptionNonempty: {},
	RuleURLScheme:           {},
}

// KnownRules returns all rule codes, sorted.
func KnownRules() []string {
	out := make([]string, 0, len(knownRules))
	for r := range knownRules {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one rule violation.
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

// Report aggregates findings in deterministic order (rule, subject,
// message).
type Report struct {
	Findings []Finding `json:"findings"`
}

// OK reports whether the entry passed: warnings allowed, errors not.
func (r *Report) OK() bool {
	return r.Errors() == 0
}

// Errors counts error-severity findings.
func (r *Report) Errors() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings counts warning-severity findings.
func (r *Report) Warnings() int {
	return len(r.Findings) - r.Errors()
}

func (r *Report) sort() {
	sort.Slice(r.Findings, func(i, j int) bool {
		a, b := r.Findings[i], r.Findings[j]
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Message < b.Message
	})
}

// Options configures a Linter.
type Options struct {
	// Disabled lists rule codes to skip. Unknown codes are rejected.
	Disabled []string
}

// Linter runs the rule set over parsed entries or dataset records.
type Linter struct {
	disabled map[string]bool
}

// New builds a Linter, rejecting unknown rule codes in Options.
func New(opts Options) (*Linter, error) {
	l := &Linter{disabled: make(map[string]bool, len(opts.Disabled))}
	for _, rule := range opts.Disabled {
		if _, ok := knownRules[rule]; !ok {
			return nil, fmt.Errorf("lint: unknown rule %q (known: %s)", rule, strings.Join(KnownRules(), ", "))
		}
		l.disabled[rule] = true
	}
	return l, nil
}

func (l *Linter) add(r *Report, f Finding) {
	if l.disabled[f.Rule] {
		return
	}
	r.Findings = append(r.Findings, f)
}

// LintPage parses a document and lints the result. Parse failures (oversize
// input, broken metadata block) surface as errors, not findings.
func (l *Linter) LintPage(data []byte) (*Report, error) {
	entry, err := page.Parse(data)
	if err != nil {
		return nil, err
	}
	return l.LintEntry(entry), nil
}

// LintEntry checks a parsed catalog page.
func (l *Linter) LintEntry(entry *page.Entry) *Report {
	r := &Report{}

	l.checkMetadata(r, entry)
	l.checkDescription(r, entry)
	l.checkCitation(r, entry)

	for _, cfg := range entry.Configs {
		l.checkConfigSection(r, entry, cfg)
	}

	l.checkURL(r, "metadata", entry.Meta.URL)
	l.checkURL(r, "metadata", entry.Meta.SameAs)
	l.checkURL(r, "body", entry.Homepage)
	for _, u := range entry.References {
		l.checkURL(r, "References", u)
	}

	r.sort()
	return r
}

func (l *Linter) checkMetadata(r *Report, entry *page.Entry) {
	required := []struct {
		key   string
		value string
	}{
		{"name", entry.Meta.Name},
		{"description", entry.Meta.Description},
		{"url", entry.Meta.URL},
		{"citation", entry.Meta.Citation},
	}
	for _, kv := range required {
		if strings.TrimSpace(kv.value) == "" {
			l.add(r, Finding{
				Rule:     RuleRequiredMetadata,
				Severity: SeverityError,
				Subject:  "metadata",
				Message:  fmt.Sprintf("annotation %q is missing or empty", kv.key),
			})
		}
	}
}

func (l *Linter) checkDescription(r *Report, entry *page.Entry) {
	if strings.TrimSpace(entry.Description) == "" {
		l.add(r, Finding{
			Rule:     RuleDescriptionNonempty,
			Severity: SeverityWarning,
			Subject:  "body",
			Message:  "page body has no description prose",
		})
	}
}

func (l *Linter) checkCitation(r *Report, entry *page.Entry) {
	text := entry.CitationText
	if strings.TrimSpace(text) == "" {
		text = entry.Meta.Citation
	}
	if strings.TrimSpace(text) == "" {
		// absence is already a required-metadata finding
		return
	}

	parsed, err := citation.Parse(text)
	if err != nil {
		l.add(r, Finding{
			Rule:     RuleCitationWellformed,
			Severity: SeverityError,
			Subject:  "citation",
			Message:  fmt.Sprintf("citation does not parse: %v", err),
		})
		return
	}
	if parsed.Key == "" {
		l.add(r, Finding{
			Rule:     RuleCitationWellformed,
			Severity: SeverityWarning,
			Subject:  "citation",
			Message:  "citation entry has no key",
		})
	}
	if entry.CitationText != "" && entry.Meta.Citation != "" &&
		strings.TrimSpace(entry.CitationText) != strings.TrimSpace(entry.Meta.Citation) {
		l.add(r, Finding{
			Rule:     RuleCitationWellformed,
			Severity: SeverityWarning,
			Subject:  "citation",
			Message:  "citation block and metadata annotation disagree",
		})
	}
}

func (l *Linter) checkConfigSection(r *Report, entry *page.Entry, cfg page.ConfigSection) {
	version := cfg.Version
	if version == "" {
		version = entry.Version
	}
	if version == "" {
		l.add(r, Finding{
			Rule:     RuleConfigVersion,
			Severity: SeverityError,
			Subject:  cfg.Name,
			Message:  "configuration has no version",
		})
	} else if _, err := catalog.ParseVersion(version); err != nil {
		l.add(r, Finding{
			Rule:     RuleConfigVersion,
			Severity: SeverityError,
			Subject:  cfg.Name,
			Message:  fmt.Sprintf("configuration version %q is not MAJOR.MINOR.PATCH", version),
		})
	}

	featuresText := cfg.FeaturesText
	if featuresText == "" {
		featuresText = entry.FeaturesText
	}
	if emptySchema(featuresText) {
		l.add(r, Finding{
			Rule:     RuleConfigFeatures,
			Severity: SeverityError,
			Subject:  cfg.Name,
			Message:  "configuration has no feature list",
		})
	}

	refs := cfg.References
	if len(refs) == 0 {
		refs = entry.References
	}
	if len(refs) == 0 {
		l.add(r, Finding{
			Rule:     RuleConfigURLs,
			Severity: SeverityError,
			Subject:  cfg.Name,
			Message:  "configuration has no reference URL",
		})
	}
	for _, u := range cfg.References {
		l.checkURL(r, cfg.Name, u)
	}
}

func (l *Linter) checkURL(r *Report, subject, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		l.add(r, Finding{
			Rule:     RuleURLScheme,
			Severity: SeverityError,
			Subject:  subject,
			Message:  fmt.Sprintf("URL %q is not a well-formed http(s) URL", raw),
		})
	}
}

// emptySchema reports whether a schema text block declares no fields.
func emptySchema(text string) bool {
	collapsed := strings.Join(strings.Fields(text), "")
	return collapsed == "" || collapsed == "FeaturesDict({})"
}

// LintInfo checks a dataset record before rendering, so the refresh pipeline
// can report the same findings the page would produce.
func (l *Linter) LintInfo(info *catalog.DatasetInfo) *Report {
	r := &Report{}

	if strings.TrimSpace(info.Name) == "" {
		l.add(r, Finding{Rule: RuleRequiredMetadata, Severity: SeverityError, Subject: "metadata", Message: `annotation "name" is missing or empty`})
	}
	if strings.TrimSpace(info.Description) == "" {
		l.add(r, Finding{Rule: RuleRequiredMetadata, Severity: SeverityError, Subject: "metadata", Message: `annotation "description" is missing or empty`})
	}
	if strings.TrimSpace(info.Homepage) == "" {
		l.add(r, Finding{Rule: RuleRequiredMetadata, Severity: SeverityError, Subject: "metadata", Message: `annotation "url" is missing or empty`})
	}
	if strings.TrimSpace(info.Citation) == "" {
		l.add(r, Finding{Rule: RuleRequiredMetadata, Severity: SeverityError, Subject: "metadata", Message: `annotation "citation" is missing or empty`})
	} else if parsed, err := citation.Parse(info.Citation); err != nil {
		l.add(r, Finding{Rule: RuleCitationWellformed, Severity: SeverityError, Subject: "citation", Message: fmt.Sprintf("citation does not parse: %v", err)})
	} else if parsed.Key == "" {
		l.add(r, Finding{Rule: RuleCitationWellformed, Severity: SeverityWarning, Subject: "citation", Message: "citation entry has no key"})
	}

	for _, cfg := range info.EffectiveConfigs() {
		subject := catalog.FullName(info.Name, cfg.Name)
		if cfg.Version.IsZero() {
			l.add(r, Finding{Rule: RuleConfigVersion, Severity: SeverityError, Subject: subject, Message: "configuration has no version"})
		}
		if cfg.Features.Len() == 0 {
			l.add(r, Finding{Rule: RuleConfigFeatures, Severity: SeverityError, Subject: subject, Message: "configuration has no feature list"})
		}
		if len(cfg.URLs) == 0 {
			l.add(r, Finding{Rule: RuleConfigURLs, Severity: SeverityError, Subject: subject, Message: "configuration has no reference URL"})
		}
		for _, u := range cfg.URLs {
			l.checkURL(r, subject, u)
		}
	}

	l.checkURL(r, "metadata", info.Homepage)

	r.sort()
	return r
}
