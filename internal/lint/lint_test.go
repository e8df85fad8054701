// SPDX-License-Identifier: MIT

package lint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
	"github.com/irfnrdh/tensorflow-datasets/internal/features"
	"github.com/irfnrdh/tensorflow-datasets/internal/page"
)

func mustLinter(t *testing.T, opts Options) *Linter {
	t.Helper()
	l, err := New(opts)
	require.NoError(t, err)
	return l
}

func validInfo() *catalog.DatasetInfo {
	return &catalog.DatasetInfo{
		Name:        "c4",
		Description: "A colossal, cleaned version of Common Crawl's web crawl corpus.",
		Homepage:    "https://github.com/google-research/text-to-text-transfer-transformer#datasets",
		Citation:    "@article{2019t5,\n  title = {Exploring the Limits of Transfer Learning},\n  year = {2019},\n}\n",
		Version:     catalog.MustVersion("3.0.1"),
		Features: features.MustDict(map[string]features.Spec{
			"text": features.Text{},
		}),
		URLs: []string{"https://commoncrawl.org"},
		Configs: []catalog.ConfigInfo{
			{Name: "en", Description: "cleaned", SizeBytes: 866402277786},
			{Name: "en.noclean", Description: "uncleaned", SizeBytes: catalog.SizeUnknown},
		},
	}
}

func TestLintCleanPage(t *testing.T) {
	raw, err := page.Render(validInfo())
	require.NoError(t, err)

	report, err := mustLinter(t, Options{}).LintPage(raw)
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Empty(t, report.Findings)
}

func TestLintMissingMetadata(t *testing.T) {
	report, err := mustLinter(t, Options{}).LintPage([]byte("# bare\n\nJust prose.\n"))
	require.NoError(t, err)

	assert.False(t, report.OK())
	require.Len(t, report.Findings, 4)
	// deterministic ordering: same rule and subject sort by message
	assert.Contains(t, report.Findings[0].Message, `"citation"`)
	assert.Contains(t, report.Findings[1].Message, `"description"`)
	assert.Contains(t, report.Findings[2].Message, `"name"`)
	assert.Contains(t, report.Findings[3].Message, `"url"`)
	for _, f := range report.Findings {
		assert.Equal(t, RuleRequiredMetadata, f.Rule)
		assert.Equal(t, SeverityError, f.Severity)
	}
}

func TestLintIncompleteConfig(t *testing.T) {
	src := `<div itemscope itemtype="http://schema.org/Dataset">
  <meta itemprop="name" content="broken" />
  <meta itemprop="description" content="A dataset with a hollow variant." />
  <meta itemprop="url" content="https://example.org/broken" />
  <meta itemprop="citation" content="@misc{bkn, year = {2020}}" />
</div>

# broken

A dataset with a hollow variant.

## broken/cfg

*   **Download size**: ` + "`Unknown size`" + `
`
	report, err := mustLinter(t, Options{}).LintPage([]byte(src))
	require.NoError(t, err)

	assert.False(t, report.OK())
	rules := findingRules(report)
	assert.Equal(t, []string{RuleConfigFeatures, RuleConfigURLs, RuleConfigVersion}, rules)
	for _, f := range report.Findings {
		assert.Equal(t, "broken/cfg", f.Subject)
	}
}

func TestLintBadConfigVersion(t *testing.T) {
	info := validInfo()
	raw, err := page.Render(info)
	require.NoError(t, err)
	src := strings.Replace(string(raw), "*   **Version**: `3.0.1`", "*   **Version**: `three.oh.one`", 2)

	report, err := mustLinter(t, Options{}).LintPage([]byte(src))
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Contains(t, findingRules(report), RuleConfigVersion)
	found := false
	for _, f := range report.Findings {
		if f.Rule == RuleConfigVersion {
			assert.Contains(t, f.Message, "MAJOR.MINOR.PATCH")
			found = true
		}
	}
	assert.True(t, found)
}

func TestLintEmptyCitationKeyWarns(t *testing.T) {
	info := validInfo()
	info.Citation = "@misc{,\n  title = {A Database of Leaf Images},\n  year = {2019},\n}\n"
	raw, err := page.Render(info)
	require.NoError(t, err)

	report, err := mustLinter(t, Options{}).LintPage(raw)
	require.NoError(t, err)

	// a keyless citation is sloppy, not fatal
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Warnings())
	assert.Equal(t, RuleCitationWellformed, report.Findings[0].Rule)
	assert.Contains(t, report.Findings[0].Message, "no key")
}

func TestLintMalformedCitation(t *testing.T) {
	info := validInfo()
	info.Citation = "@article{k, title = {unbalanced}\n"
	raw, err := page.Render(info)
	require.NoError(t, err)

	report, err := mustLinter(t, Options{}).LintPage(raw)
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Contains(t, findingRules(report), RuleCitationWellformed)
}

func TestLintCitationMismatchWarns(t *testing.T) {
	raw, err := page.Render(validInfo())
	require.NoError(t, err)
	// the visible block now disagrees with the metadata annotation
	src := strings.Replace(string(raw), "year = {2019}", "year = {2020}", 1)

	report, err := mustLinter(t, Options{}).LintPage([]byte(src))
	require.NoError(t, err)

	assert.True(t, report.OK())
	require.Equal(t, 1, report.Warnings())
	assert.Contains(t, report.Findings[0].Message, "disagree")
}

func TestLintURLScheme(t *testing.T) {
	info := validInfo()
	info.URLs = []string{"ftp://files.example.com/c4.tar"}
	raw, err := page.Render(info)
	require.NoError(t, err)

	report, err := mustLinter(t, Options{}).LintPage(raw)
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Contains(t, findingRules(report), RuleURLScheme)
}

func TestLintDisabledRule(t *testing.T) {
	info := validInfo()
	info.URLs = nil

	l := mustLinter(t, Options{Disabled: []string{RuleConfigURLs}})
	report := l.LintInfo(info)
	assert.True(t, report.OK())

	report = mustLinter(t, Options{}).LintInfo(info)
	assert.False(t, report.OK())
}

func TestNewRejectsUnknownRule(t *testing.T) {
	_, err := New(Options{Disabled: []string{"no-such-rule"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-rule")
}

func TestLintInfoValid(t *testing.T) {
	report := mustLinter(t, Options{}).LintInfo(validInfo())
	assert.True(t, report.OK())
	assert.Empty(t, report.Findings)
}

func TestLintInfoGutted(t *testing.T) {
	info := &catalog.DatasetInfo{Name: "hollow", Version: catalog.MustVersion("1.0.0")}
	report := mustLinter(t, Options{}).LintInfo(info)

	assert.False(t, report.OK())
	rules := findingRules(report)
	assert.Contains(t, rules, RuleRequiredMetadata)
	assert.Contains(t, rules, RuleConfigFeatures)
	assert.Contains(t, rules, RuleConfigURLs)
	// the implicit variant is the subject of config findings
	for _, f := range report.Findings {
		if f.Rule == RuleConfigFeatures {
			assert.Equal(t, "hollow", f.Subject)
		}
	}
}

func TestLintPageParseError(t *testing.T) {
	_, err := mustLinter(t, Options{}).LintPage(make([]byte, page.MaxPageBytes+1))
	require.ErrorIs(t, err, page.ErrTooLarge)
}

func findingRules(r *Report) []string {
	seen := map[string]bool{}
	var rules []string
	for _, f := range r.Findings {
		if !seen[f.Rule] {
			seen[f.Rule] = true
			rules = append(rules, f.Rule)
		}
	}
	return rules
}
