// SPDX-License-Identifier: MIT

package page

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
)

const (
	datasetItemType = "http://schema.org/Dataset"
	catalogItemType = "http://schema.org/DataCatalog"

	// CatalogName annotates which catalog the page belongs to.
	CatalogName = "TensorFlow Datasets"
)

// Metadata is the machine-readable annotation block at the top of a catalog
// page: key/value itemprop facts inside a schema.org Dataset scope.
type Metadata struct {
	Name        string
	Description string
	URL         string
	SameAs      string
	Citation    string
	Catalog     string
}

func renderMetadata(b *strings.Builder, info *catalog.DatasetInfo) {
	b.WriteString(`<div itemscope itemtype="` + datasetItemType + `">` + "\n")
	b.WriteString(`  <div itemscope itemprop="includedInDataCatalog" itemtype="` + catalogItemType + `">` + "\n")
	b.WriteString(`    <meta itemprop="name" content="` + CatalogName + `" />` + "\n")
	b.WriteString("  </div>\n")
	writeMeta(b, "name", info.Name)
	writeMeta(b, "description", info.Description)
	writeMeta(b, "url", info.Homepage)
	if len(info.URLs) > 0 {
		writeMeta(b, "sameAs", info.URLs[0])
	}
	writeMeta(b, "citation", info.Citation)
	b.WriteString("</div>\n")
}

func writeMeta(b *strings.Builder, prop, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	b.WriteString(`  <meta itemprop="` + prop + `" content="` + html.EscapeString(content) + `" />` + "\n")
}

// splitMetadata cuts the leading schema.org block out of a page. Pages
// without one are legal (the linter reports the missing annotations); an
// opened but never closed block is a parse error.
func splitMetadata(src string) (block, rest string, err error) {
	start := strings.Index(src, "<div itemscope")
	if start < 0 {
		return "", src, nil
	}

	depth := 0
	i := start
	for {
		open := strings.Index(src[i:], "<div")
		clos := strings.Index(src[i:], "</div>")
		switch {
		case clos < 0:
			return "", "", fmt.Errorf("page: unterminated metadata block")
		case open >= 0 && open < clos:
			depth++
			i += open + len("<div")
		default:
			depth--
			i += clos + len("</div>")
			if depth == 0 {
				return src[start:i], src[:start] + src[i:], nil
			}
		}
	}
}

// parseMetadata tokenizes the schema.org block and collects itemprop
// annotations. Attribute values come back entity-unescaped.
func parseMetadata(block string) (Metadata, error) {
	var meta Metadata
	z := html.NewTokenizer(strings.NewReader(block))

	divDepth := 0
	catalogDepth := -1
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return meta, nil
			}
			return meta, fmt.Errorf("page: metadata block: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, attrs := readTag(z)
			if name == "div" && tt == html.StartTagToken {
				if attrs["itemprop"] == "includedInDataCatalog" {
					catalogDepth = divDepth
				}
				divDepth++
				continue
			}
			if name != "meta" {
				continue
			}
			if catalogDepth >= 0 {
				if attrs["itemprop"] == "name" {
					meta.Catalog = attrs["content"]
				}
				continue
			}
			switch attrs["itemprop"] {
			case "name":
				meta.Name = attrs["content"]
			case "description":
				meta.Description = attrs["content"]
			case "url":
				meta.URL = attrs["content"]
			case "sameAs":
				meta.SameAs = attrs["content"]
			case "citation":
				meta.Citation = attrs["content"]
			}
		case html.EndTagToken:
			name, _ := readTag(z)
			if name == "div" {
				divDepth--
				if divDepth == catalogDepth {
					catalogDepth = -1
				}
			}
		}
	}
}

func readTag(z *html.Tokenizer) (string, map[string]string) {
	raw, hasAttr := z.TagName()
	name := string(raw)
	attrs := make(map[string]string, 4)
	for hasAttr {
		var k, v []byte
		k, v, hasAttr = z.TagAttr()
		attrs[string(k)] = string(v)
	}
	return name, attrs
}
