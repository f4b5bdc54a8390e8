// Package semver parses and orders the application's release version strings.
//
// The grammar is deliberately narrower than full SemVer: pre-release tags are
// limited to alpha/beta/rc with an optional numeric suffix, which gives the
// strict total order alpha < beta < rc < stable required for update decisions.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pre-release ranks. Stable sorts above every tagged pre-release.
const (
	RankAlpha = iota
	RankBeta
	RankRC
	RankStable
)

var versionRegex = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(?:-([A-Za-z]+)(\d*))?$`)

var tagRanks = map[string]int{
	"alpha": RankAlpha,
	"beta":  RankBeta,
	"rc":    RankRC,
}

var rankTags = map[int]string{
	RankAlpha: "alpha",
	RankBeta:  "beta",
	RankRC:    "rc",
}

// Version is an immutable parsed version. The zero value is 0.0.0-alpha0;
// construct through Parse.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Rank   int
	PreNum int
}

// Parse parses a version string such as "2.1", "v2.1.0" or "2.1.0-rc1".
// A leading v/V is stripped, the patch component defaults to 0, and a
// pre-release tag without a number defaults to number 0.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("empty version string")
	}
	if trimmed[0] == 'v' || trimmed[0] == 'V' {
		trimmed = trimmed[1:]
	}

	matches := versionRegex.FindStringSubmatch(trimmed)
	if matches == nil {
		return Version{}, fmt.Errorf("invalid version format: %q", s)
	}

	major, err := strconv.Atoi(matches[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid major version in %q", s)
	}
	minor, err := strconv.Atoi(matches[2])
	if err != nil {
		return Version{}, fmt.Errorf("invalid minor version in %q", s)
	}
	patch := 0
	if matches[3] != "" {
		patch, err = strconv.Atoi(matches[3])
		if err != nil {
			return Version{}, fmt.Errorf("invalid patch version in %q", s)
		}
	}

	rank := RankStable
	preNum := 0
	if matches[4] != "" {
		var ok bool
		rank, ok = tagRanks[strings.ToLower(matches[4])]
		if !ok {
			return Version{}, fmt.Errorf("unknown pre-release tag %q in %q", matches[4], s)
		}
		if matches[5] != "" {
			preNum, err = strconv.Atoi(matches[5])
			if err != nil {
				return Version{}, fmt.Errorf("invalid pre-release number in %q", s)
			}
		}
	}

	return Version{
		Major:  major,
		Minor:  minor,
		Patch:  patch,
		Rank:   rank,
		PreNum: preNum,
	}, nil
}

// String renders the canonical form without the v prefix. The -tag{n} suffix
// is added only for pre-release versions, so Parse(v.String()) == v.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Rank != RankStable {
		s += fmt.Sprintf("-%s%d", rankTags[v.Rank], v.PreNum)
	}
	return s
}

// Compare compares the (major, minor, patch, rank, pre-number) tuples
// lexicographically and returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	pairs := [5][2]int{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
		{v.Rank, other.Rank},
		{v.PreNum, other.PreNum},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			if p[0] > p[1] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// GreaterThan returns true if v > other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// LessThan returns true if v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// Equal returns true if all five components match.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}
