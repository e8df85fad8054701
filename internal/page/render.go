// SPDX-License-Identifier: MIT

// Package page renders dataset records as catalog markdown pages and parses
// such pages back. A page carries three parts: a schema.org metadata block,
// a markdown body with fixed sections per configuration variant, and a
// citation block.
package page

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
)

// Render writes the catalog page for a dataset record. Output is
// deterministic: stable section order, sorted schema fields and split rows,
// one trailing newline.
func Render(info *catalog.DatasetInfo) ([]byte, error) {
	if info == nil {
		return nil, errors.New("page: nil dataset record")
	}
	if info.Name == "" {
		return nil, errors.New("page: dataset record has no name")
	}

	var b strings.Builder
	renderMetadata(&b, info)

	fmt.Fprintf(&b, "\n# %s\n", info.Name)
	if info.Description != "" {
		b.WriteString("\n" + strings.TrimSpace(info.Description) + "\n")
	}

	b.WriteString("\n")
	if info.Homepage != "" {
		fmt.Fprintf(&b, "*   **Homepage**: %s\n", info.Homepage)
	}
	fmt.Fprintf(&b, "*   **Version**: `%s`\n", info.Version)
	if info.ReleaseDate != nil {
		fmt.Fprintf(&b, "*   **Release date**: %s\n", info.ReleaseDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "*   **Supervised keys**: %s\n", supervisedText(info.Supervised))

	if info.Features != nil {
		b.WriteString("\n## Features\n\n```\n" + info.Features.SchemaText() + "\n```\n")
	}
	if len(info.URLs) > 0 {
		b.WriteString("\n## References\n\n")
		for _, u := range info.URLs {
			fmt.Fprintf(&b, "*   %s\n", u)
		}
	}

	configs := info.Configs
	if len(configs) == 0 {
		// a config-less dataset still gets one variant section
		configs = []catalog.ConfigInfo{{
			Name:      info.Name,
			Version:   info.Version,
			SizeBytes: catalog.SizeUnknown,
		}}
	}
	for _, c := range configs {
		renderConfig(&b, info, c)
	}

	if info.Citation != "" {
		b.WriteString("\n## Citation\n\n```\n" + strings.TrimRight(info.Citation, "\n") + "\n```\n")
	}
	return []byte(b.String()), nil
}

// renderConfig writes one variant section. Schema and reference blocks
// appear only when the variant overrides them; inherited values live in the
// dataset-level sections above.
func renderConfig(b *strings.Builder, info *catalog.DatasetInfo, c catalog.ConfigInfo) {
	version := c.Version
	if version.IsZero() {
		version = info.Version
	}

	fmt.Fprintf(b, "\n## %s\n", catalog.FullName(info.Name, c.Name))
	if c.Description != "" {
		b.WriteString("\n" + strings.TrimSpace(c.Description) + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "*   **Version**: `%s`\n", version)
	fmt.Fprintf(b, "*   **Download size**: `%s`\n", humanizeBytes(c.SizeBytes))

	if len(c.Splits) > 0 {
		b.WriteString("\n### Splits\n\nSplit | Examples\n:---- | -------:\n")
		names := make([]string, 0, len(c.Splits))
		for name := range c.Splits {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(b, "`%s` | %s\n", name, formatCount(c.Splits[name]))
		}
	}
	if c.Features != nil {
		b.WriteString("\n### Features\n\n```\n" + c.Features.SchemaText() + "\n```\n")
	}
	if len(c.URLs) > 0 {
		b.WriteString("\n### References\n\n")
		for _, u := range c.URLs {
			fmt.Fprintf(b, "*   %s\n", u)
		}
	}
}

func supervisedText(sk *catalog.SupervisedKeys) string {
	if sk == nil {
		return "`None`"
	}
	return fmt.Sprintf("(`%s`, `%s`)", sk.Input, sk.Target)
}
