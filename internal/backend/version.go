package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a build tool version such as "8.5", "2.1" or "7.6.1-rc-2".
// Only the numeric release part takes part in ordering; a qualified version
// orders before the plain release with the same numbers.
type Version struct {
	parts     []int
	qualifier string
	raw       string
}

// ParseVersion parses a dotted version string.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("%w: empty version", ErrInvalidVersion)
	}

	release, qualifier := raw, ""
	if i := strings.IndexAny(raw, "-+ "); i >= 0 {
		release, qualifier = raw[:i], raw[i+1:]
	}

	fields := strings.Split(release, ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		parts = append(parts, n)
	}

	return Version{parts: parts, qualifier: qualifier, raw: raw}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
// Intended for package-level constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return len(v.parts) == 0
}

// Compare returns -1, 0 or 1 as v is before, equal to or after o.
// Missing trailing components are treated as zero, so "2.1" equals "2.1.0".
func (v Version) Compare(o Version) int {
	n := len(v.parts)
	if len(o.parts) > n {
		n = len(o.parts)
	}
	for i := 0; i < n; i++ {
		a, b := v.at(i), o.at(i)
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
	}

	switch {
	case v.qualifier == o.qualifier:
		return 0
	case v.qualifier == "":
		return 1
	case o.qualifier == "":
		return -1
	case v.qualifier < o.qualifier:
		return -1
	default:
		return 1
	}
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func (v Version) at(i int) int {
	if i < len(v.parts) {
		return v.parts[i]
	}
	return 0
}

// String returns the version as it was parsed.
func (v Version) String() string {
	return v.raw
}
