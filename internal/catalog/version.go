// SPDX-License-Identifier: MIT

package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dataset version in MAJOR.MINOR.PATCH form.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "MAJOR.MINOR.PATCH". Each component must be a plain
// non-negative decimal number.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("catalog: invalid version %q: want MAJOR.MINOR.PATCH", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return Version{}, fmt.Errorf("catalog: invalid version %q: component %q is not a number", s, p)
		}
		nums[i] = int(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustVersion is ParseVersion that panics on error; for fixtures and tests.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether the version is unset (0.0.0).
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0 or 1 ordering v against o.
func (v Version) Compare(o Version) int {
	for _, d := range [3]int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return 0
}

// MarshalText encodes the version as "MAJOR.MINOR.PATCH". The zero version
// encodes as an empty string so optional versions stay empty on the wire.
func (v Version) MarshalText() ([]byte, error) {
	if v.IsZero() {
		return []byte(""), nil
	}
	return []byte(v.String()), nil
}

// UnmarshalText parses a version string; empty input yields the zero version.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
