package components

import (
	"strconv"
	"strings"
)

// CompareVersions orders dotted versions segment by segment: numeric
// segments compare numerically, others lexically, and a numeric segment
// sorts before a non-numeric one. A version that is a prefix of another
// sorts first. Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// Latest returns the greatest version, or false when versions is empty.
func Latest(versions []string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best, true
}

// NextVersion returns the successor of the greatest purely numeric version,
// starting at "1".
func NextVersion(versions []string) string {
	var max uint64
	for _, v := range versions {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return strconv.FormatUint(max+1, 10)
}
