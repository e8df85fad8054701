// SPDX-License-Identifier: MIT

package page

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// MaxPageBytes caps how much document the parser will accept.
const MaxPageBytes = 4 << 20

// ErrTooLarge is returned for documents over MaxPageBytes.
var ErrTooLarge = errors.New("page: document exceeds size limit")

// Entry is the parsed form of a catalog page. The reader is tolerant:
// missing annotations and sections come back empty, unknown sections are
// inventoried in Sections. Judging completeness is the linter's job.
type Entry struct {
	Meta           Metadata
	Title          string
	Description    string
	Homepage       string
	Version        string
	ReleaseDate    string
	SupervisedKeys string
	FeaturesText   string
	References     []string
	Configs        []ConfigSection
	CitationText   string
	Sections       []Section
}

// Section is one heading-delimited region of the body, in document order.
type Section struct {
	Level int
	Title string
	Body  string
}

// ConfigSection is the parsed section of one configuration variant.
type ConfigSection struct {
	Name         string
	Description  string
	Version      string
	SizeText     string
	FeaturesText string
	References   []string
	Splits       []SplitRow
}

// SplitRow is one row of a variant's split statistics table.
type SplitRow struct {
	Name     string
	Examples int64
}

// Parse reads a catalog page.
func Parse(data []byte) (*Entry, error) {
	if len(data) > MaxPageBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), MaxPageBytes)
	}

	block, rest, err := splitMetadata(string(data))
	if err != nil {
		return nil, err
	}

	entry := &Entry{}
	if block != "" {
		meta, err := parseMetadata(block)
		if err != nil {
			return nil, err
		}
		entry.Meta = meta
	}
	parseBody(entry, rest)
	classify(entry)
	return entry, nil
}

// parseBody splits the markdown into the preamble (title, description,
// dataset facts) and heading-delimited sections. Headings inside fenced
// blocks do not count.
func parseBody(entry *Entry, src string) {
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), MaxPageBytes)

	var preamble []string
	var cur *Section
	var curLines []string
	inFence := false

	flush := func() {
		if cur != nil {
			cur.Body = strings.Join(curLines, "\n")
			entry.Sections = append(entry.Sections, *cur)
		}
		cur, curLines = nil, nil
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		} else if !inFence {
			if level, title := parseHeading(line); level > 0 {
				if level == 1 {
					entry.Title = stripCode(title)
					continue
				}
				flush()
				cur = &Section{Level: level, Title: strings.TrimSpace(title)}
				continue
			}
		}
		if cur != nil {
			curLines = append(curLines, line)
		} else {
			preamble = append(preamble, line)
		}
	}
	flush()

	desc, facts := parsePreamble(preamble)
	entry.Description = desc
	for _, f := range facts {
		switch strings.ToLower(f.key) {
		case "homepage":
			entry.Homepage = stripLink(f.value)
		case "version", "versions":
			entry.Version = versionText(f.value)
		case "release date":
			entry.ReleaseDate = strings.TrimSpace(f.value)
		case "supervised keys":
			v := stripCode(f.value)
			if strings.EqualFold(v, "None") {
				v = ""
			}
			entry.SupervisedKeys = v
		}
	}
}

// classify walks the section inventory and fills the structured fields.
// Level-2 sections with reserved titles are dataset-level; a level-2 section
// that names a variant (full name, the dataset itself, or a body carrying
// version/size facts) introduces a configuration whose level-3 subsections
// belong to it. Anything else stays inventory only.
func classify(entry *Entry) {
	cfgIdx := -1
	for _, s := range entry.Sections {
		title := strings.ToLower(s.Title)
		switch {
		case s.Level == 2 && title == "features":
			entry.FeaturesText = firstFence(s.Body)
			cfgIdx = -1
		case s.Level == 2 && title == "references":
			entry.References = parseRefs(s.Body)
			cfgIdx = -1
		case s.Level == 2 && title == "citation":
			entry.CitationText = firstFence(s.Body)
			cfgIdx = -1
		case s.Level == 2:
			cfg := parseConfigSection(s)
			if !looksLikeConfig(cfg, entry.Title) {
				cfgIdx = -1
				continue
			}
			entry.Configs = append(entry.Configs, cfg)
			cfgIdx = len(entry.Configs) - 1
		case s.Level == 3 && cfgIdx >= 0:
			cfg := &entry.Configs[cfgIdx]
			switch title {
			case "splits":
				cfg.Splits = parseSplits(s.Body)
			case "features":
				cfg.FeaturesText = firstFence(s.Body)
			case "references":
				cfg.References = parseRefs(s.Body)
			}
		}
	}
}

func looksLikeConfig(cfg ConfigSection, pageTitle string) bool {
	if strings.Contains(cfg.Name, "/") {
		return true
	}
	if pageTitle != "" && cfg.Name == pageTitle {
		return true
	}
	return cfg.Version != "" || cfg.SizeText != ""
}

func parseConfigSection(s Section) ConfigSection {
	cfg := ConfigSection{Name: stripCode(s.Title)}

	var desc []string
	for _, line := range strings.Split(s.Body, "\n") {
		if f, ok := parseFact(line); ok {
			switch strings.ToLower(f.key) {
			case "version", "versions":
				cfg.Version = versionText(f.value)
			case "download size", "dataset size", "size":
				cfg.SizeText = stripCode(f.value)
			}
			continue
		}
		desc = append(desc, line)
	}
	cfg.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	return cfg
}

type fact struct {
	key   string
	value string
}

func parsePreamble(lines []string) (string, []fact) {
	var desc []string
	var facts []fact
	for _, line := range lines {
		if f, ok := parseFact(line); ok {
			facts = append(facts, f)
			continue
		}
		desc = append(desc, line)
	}
	return strings.TrimSpace(strings.Join(desc, "\n")), facts
}

// parseFact reads a "*   **Key**: value" bullet.
func parseFact(line string) (fact, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "*") && !strings.HasPrefix(t, "-") {
		return fact{}, false
	}
	t = strings.TrimSpace(t[1:])
	if !strings.HasPrefix(t, "**") {
		return fact{}, false
	}
	end := strings.Index(t[2:], "**")
	if end < 0 {
		return fact{}, false
	}
	key := t[2 : 2+end]
	rest := strings.TrimSpace(t[2+end+2:])
	rest = strings.TrimPrefix(rest, ":")
	return fact{key: key, value: strings.TrimSpace(rest)}, true
}

func parseHeading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, line[level+1:]
}

// firstFence returns the content of the first fenced code block in body.
func firstFence(body string) string {
	var inner []string
	open := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if open {
				return strings.Join(inner, "\n")
			}
			open = true
			continue
		}
		if open {
			inner = append(inner, line)
		}
	}
	return ""
}

// parseRefs collects reference URLs from bullet or bare lines.
func parseRefs(body string) []string {
	var refs []string
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "*") || strings.HasPrefix(t, "-") {
			t = strings.TrimSpace(t[1:])
		}
		t = stripLink(t)
		if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") || strings.Contains(t, "://") {
			refs = append(refs, t)
		}
	}
	return refs
}

func parseSplits(body string) []SplitRow {
	var rows []SplitRow
	for _, line := range strings.Split(body, "\n") {
		cells := strings.Split(line, "|")
		if len(cells) < 2 {
			continue
		}
		name := stripCode(cells[0])
		if name == "" || strings.EqualFold(name, "Split") || strings.Trim(name, ":- ") == "" {
			continue
		}
		n, err := parseCount(cells[1])
		if err != nil {
			continue
		}
		rows = append(rows, SplitRow{Name: name, Examples: n})
	}
	return rows
}

// stripCode removes backtick markers and surrounding space.
func stripCode(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "`", ""))
}

// versionText normalizes a version bullet: backticks and a "(default)"
// marker are presentation, not data.
func versionText(s string) string {
	s = stripCode(s)
	s = strings.ReplaceAll(s, "(default)", "")
	if i := strings.IndexAny(s, " \n"); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// stripLink unwraps a markdown "[text](target)" link to its target.
func stripLink(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if i := strings.Index(s, "]("); i >= 0 && strings.HasSuffix(s, ")") {
			return s[i+2 : len(s)-1]
		}
	}
	return s
}
