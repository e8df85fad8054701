// SPDX-License-Identifier: MIT

// Package citation parses and formats BibTeX entries, the bibliographic
// format used by catalog page citation blocks.
package citation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEntry is returned when the input contains no "@type{...}" entry.
var ErrNoEntry = errors.New("citation: no bibtex entry found")

// SyntaxError reports a malformed entry with the byte offset of the fault.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("citation: syntax error at offset %d: %s", e.Offset, e.Reason)
}

// Field is one name/value pair of an entry. Order is preserved.
type Field struct {
	Name  string
	Value string
}

// Entry is a parsed BibTeX entry. Key may be empty; some published citations
// omit it (the linter flags that as a warning, not a parse failure).
type Entry struct {
	Type   string
	Key    string
	Fields []Field
}

// Field returns the value of the named field, case-insensitively.
func (e *Entry) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Format renders the entry in canonical form: two-space indent, braced
// values, one field per line in original order, trailing newline. Parsing
// the result yields the entry back.
func (e *Entry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", e.Type, e.Key)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "  %s = {%s},\n", f.Name, f.Value)
	}
	b.WriteString("}\n")
	return b.String()
}

// Parse reads the first BibTeX entry in s. The reader is tolerant where
// published citations are sloppy: empty keys, quoted or braced or bare
// values, values spanning lines, and a missing comma after the last field
// all parse. Unbalanced braces, a missing "=", or an entry without fields do
// not.
func Parse(s string) (*Entry, error) {
	p := &parser{src: s}

	at := strings.IndexByte(s, '@')
	if at < 0 {
		return nil, ErrNoEntry
	}
	p.pos = at + 1

	typ := p.takeWhile(func(c byte) bool { return c != '{' && c != '(' && !isSpace(c) })
	if typ == "" {
		return nil, p.errorf("missing entry type after '@'")
	}
	p.skipSpace()
	if !p.accept('{') {
		return nil, p.errorf("expected '{' after entry type %q", typ)
	}

	entry := &Entry{Type: strings.ToLower(typ)}

	key := p.takeWhile(func(c byte) bool { return c != ',' && c != '}' && c != '\n' })
	entry.Key = strings.TrimSpace(key)
	if !p.accept(',') {
		// a bare "@type{key}" closes immediately and has no fields
		if p.accept('}') {
			return nil, p.errorf("entry %q has no fields", entry.Type)
		}
		if p.eof() {
			return nil, p.errorf("unterminated entry")
		}
		return nil, p.errorf("expected ',' after entry key")
	}

	for {
		p.skipSpace()
		for p.accept(',') {
			p.skipSpace()
		}
		if p.accept('}') {
			break
		}
		if p.eof() {
			return nil, p.errorf("unterminated entry: missing '}'")
		}
		f, err := p.field()
		if err != nil {
			return nil, err
		}
		entry.Fields = append(entry.Fields, f)
	}

	if len(entry.Fields) == 0 {
		return nil, p.errorf("entry %q has no fields", entry.Type)
	}
	return entry, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) accept(c byte) bool {
	if p.eof() || p.src[p.pos] != c {
		return false
	}
	p.pos++
	return true
}

func (p *parser) skipSpace() {
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) takeWhile(keep func(byte) bool) string {
	start := p.pos
	for !p.eof() && keep(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) field() (Field, error) {
	name := strings.TrimSpace(p.takeWhile(func(c byte) bool {
		return c != '=' && c != '{' && c != '}' && c != ','
	}))
	if name == "" {
		return Field{}, p.errorf("missing field name")
	}
	if !p.accept('=') {
		return Field{}, p.errorf("field %q: missing '='", name)
	}
	p.skipSpace()

	value, err := p.value(name)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Value: value}, nil
}

func (p *parser) value(field string) (string, error) {
	if p.eof() {
		return "", p.errorf("field %q: missing value", field)
	}
	switch p.src[p.pos] {
	case '{':
		return p.bracedValue(field)
	case '"':
		return p.quotedValue(field)
	default:
		// bare values (year = 2019) run to the next comma or closing brace
		v := p.takeWhile(func(c byte) bool { return c != ',' && c != '}' && c != '\n' })
		return strings.TrimSpace(v), nil
	}
}

func (p *parser) bracedValue(field string) (string, error) {
	p.pos++ // consume '{'
	start := p.pos
	depth := 1
	for !p.eof() {
		switch p.src[p.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				v := p.src[start:p.pos]
				p.pos++
				return v, nil
			}
		}
		p.pos++
	}
	return "", p.errorf("field %q: unbalanced braces", field)
}

func (p *parser) quotedValue(field string) (string, error) {
	p.pos++ // consume '"'
	start := p.pos
	for !p.eof() {
		if p.src[p.pos] == '"' {
			v := p.src[start:p.pos]
			p.pos++
			return v, nil
		}
		p.pos++
	}
	return "", p.errorf("field %q: unterminated quoted value", field)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
