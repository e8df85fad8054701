// SPDX-License-Identifier: MIT

package page

import (
	"fmt"
	"strconv"
	"strings"
)

// humanizeBytes renders a byte count the way catalog pages show sizes:
// binary units with two decimals, "Unknown size" for unmeasured values.
func humanizeBytes(n int64) string {
	if n < 0 {
		return "Unknown size"
	}
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	v := float64(n) / 1024
	for _, unit := range []string{"KiB", "MiB", "GiB", "TiB"} {
		if v < 1024 {
			return fmt.Sprintf("%.2f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.2f PiB", v)
}

// formatCount renders an example count with thousands separators.
func formatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	if n < 0 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// parseCount reads a separator-formatted example count back.
func parseCount(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 10, 64)
}
