// SPDX-License-Identifier: MIT

package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize turns an arbitrary dataset or config name into its canonical
// identifier form: NFC-normalized, lowercased, restricted to [a-z0-9._] with
// separator runs collapsed to a single underscore. "C4" becomes "c4",
// "Plant Leaves" becomes "plant_leaves". Dots survive because config names
// like "en.noclean" use them.
func Normalize(name string) string {
	name = norm.NFC.String(name)
	name = strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_', r == '-', r == ' ', r == '\t':
			pendingSep = true
		default:
			// unrepresentable rune, dropped
		}
	}
	return strings.Trim(b.String(), "._")
}

// IsNormalized reports whether name is non-empty and already in canonical
// form.
func IsNormalized(name string) bool {
	return name != "" && Normalize(name) == name
}
