// SPDX-License-Identifier: MIT

package builder

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/irfnrdh/tensorflow-datasets/internal/download"
)

// LabelMapper matches artifact file names against ordered rules. The first
// matching rule wins.
type LabelMapper struct {
	rules []labelRule
}

type labelRule struct {
	re    *regexp.Regexp
	label string
}

// NewLabelMapper compiles the rule patterns. Patterns are anchored at the
// start of the file name.
func NewLabelMapper(rules []ManifestLabelRule) (*LabelMapper, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("builder: label map has no rules")
	}
	lm := &LabelMapper{rules: make([]labelRule, 0, len(rules))}
	for _, r := range rules {
		if r.Label == "" {
			return nil, fmt.Errorf("builder: label rule %q has no label", r.Match)
		}
		re, err := regexp.Compile("^(?:" + r.Match + ")")
		if err != nil {
			return nil, fmt.Errorf("builder: label rule %q: %w", r.Match, err)
		}
		lm.rules = append(lm.rules, labelRule{re: re, label: r.Label})
	}
	return lm, nil
}

// Label maps a file name to its label. The second return is false when no
// rule matches.
func (lm *LabelMapper) Label(fileName string) (string, bool) {
	for _, r := range lm.rules {
		if r.re.MatchString(fileName) {
			return r.label, true
		}
	}
	return "", false
}

// LabeledExamples turns fetched artifacts into labeled examples, keyed by
// source file name and ordered deterministically. Files whose names match no
// rule are skipped and counted; a failed download fails the whole split.
func LabeledExamples(reqs []download.Request, results map[string]download.Result, lm *LabelMapper, fileField, labelField string) ([]Example, int, error) {
	sorted := make([]download.Request, len(reqs))
	copy(sorted, reqs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	var examples []Example
	skipped := 0
	for _, req := range sorted {
		name := req.Name
		if name == "" {
			name = req.URL
		}
		res, ok := results[name]
		if !ok {
			return nil, 0, fmt.Errorf("no download result for %q", name)
		}
		if res.Err != nil {
			return nil, 0, fmt.Errorf("source %q: %w", name, res.Err)
		}

		fileName := fileNameOf(req.URL)
		label, matched := lm.Label(fileName)
		if !matched {
			skipped++
			continue
		}
		examples = append(examples, Example{
			Key: fileName,
			Values: map[string]any{
				fileField:  res.Path,
				labelField: label,
			},
		})
	}
	return examples, skipped, nil
}
