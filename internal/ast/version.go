package ast

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareVersions orders two dotted numeric version strings. It returns a
// negative value when a is older than b, zero when they are equivalent and
// a positive value when a is newer. Missing segments count as zero, so ""
// equals "0.0.0" and "1.2" equals "1.2.0"; non-numeric segments also count
// as zero rather than failing.
func CompareVersions(a, b string) int {
	av, errA := semver.NewVersion(a)
	bv, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return av.Compare(bv)
	}

	// Fallback for versions semver rejects: numeric per-segment compare
	segsA := strings.Split(a, ".")
	segsB := strings.Split(b, ".")
	for i := 0; i < len(segsA) || i < len(segsB); i++ {
		if diff := versionSegment(segsA, i) - versionSegment(segsB, i); diff != 0 {
			return diff
		}
	}
	return 0
}

// LatestVersion returns the newest of the given version strings, or ""
// for an empty list.
func LatestVersion(versions []string) string {
	latest := ""
	for i, v := range versions {
		if i == 0 || CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

func versionSegment(segments []string, i int) int {
	if i >= len(segments) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(segments[i]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
