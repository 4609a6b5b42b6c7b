package api

import (
	"strings"

	. "github.com/warpfork/go-errcat"
)

/*
	VersionSpec selects a version of a package.

	It is one of three members:

	  - `Exact`: a literal version string, passed to the store unchanged.
	  - `LatestRelease`: the highest version which isn't a pre-release.
	  - `RangePrefix`: the highest version starting with the given segments.

	Exactly one of the fields is meaningful, selected by `Kind`.
	Use `ParseVersionSpec` rather than filling this in by hand.
*/
type VersionSpec struct {
	Kind   VersionSpecKind
	Exact  string // Set when Kind is VersionExact.
	Prefix string // Set when Kind is VersionRangePrefix.  Never includes the trailing '+'.
}

type VersionSpecKind uint8

const (
	VersionExact VersionSpecKind = iota + 1
	VersionLatestRelease
	VersionRangePrefix
)

const (
	LatestReleaseToken = "latest.release"
	latestShortToken   = "latest"
	rangeToken         = "+"
	anyToken           = "*"
)

func Exact(v string) VersionSpec { return VersionSpec{Kind: VersionExact, Exact: v} }
func LatestRelease() VersionSpec { return VersionSpec{Kind: VersionLatestRelease} }
func RangePrefix(prefix string) VersionSpec { return VersionSpec{Kind: VersionRangePrefix, Prefix: prefix} }

/*
	Parse a version spec string.

	"latest.release" (or just "latest") selects the latest release;
	a string ending in "+" (like "1.+" or "2.3+") is a prefix range;
	anything else is an exact version.  Empty strings, and wildcard
	tokens anywhere but the very end, are rejected with
	`ErrInvalidVersionSpec`.
*/
func ParseVersionSpec(s string) (VersionSpec, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return VersionSpec{}, Errorf(ErrInvalidVersionSpec, "version spec must not be empty")
	case LatestReleaseToken, latestShortToken:
		return LatestRelease(), nil
	case rangeToken, anyToken:
		return VersionSpec{}, Errorf(ErrInvalidVersionSpec, "version spec %q matches everything; use %q instead", s, LatestReleaseToken)
	}
	if strings.HasSuffix(s, rangeToken) {
		prefix := strings.TrimSuffix(s, rangeToken)
		if HasWildcard(prefix) {
			return VersionSpec{}, Errorf(ErrInvalidVersionSpec, "version spec %q may only have a wildcard at the end", s)
		}
		return RangePrefix(prefix), nil
	}
	if HasWildcard(s) {
		return VersionSpec{}, Errorf(ErrInvalidVersionSpec, "version spec %q may only have a wildcard at the end", s)
	}
	return Exact(s), nil
}

func (vs VersionSpec) String() string {
	switch vs.Kind {
	case VersionExact:
		return vs.Exact
	case VersionLatestRelease:
		return LatestReleaseToken
	case VersionRangePrefix:
		return vs.Prefix + rangeToken
	default:
		return ""
	}
}

// HasWildcard reports whether a version string carries any range or
// sentinel token.  Concrete resolved versions never do.
func HasWildcard(v string) bool {
	return strings.ContainsAny(v, rangeToken+anyToken) || v == LatestReleaseToken || v == latestShortToken
}
