package resolver

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

/*
	Pick one version out of a store's list according to a spec.

	Versions carrying wildcard tokens are never candidates, so whatever
	comes back is always concrete.  Exact specs don't come through here;
	they go straight to the store.
*/
func selectVersion(coord api.Coordinate, spec api.VersionSpec, versions []string) (string, error) {
	candidates := make([]string, 0, len(versions))
	for _, v := range versions {
		v = strings.TrimSpace(v)
		if v == "" || api.HasWildcard(v) {
			continue
		}
		switch spec.Kind {
		case api.VersionLatestRelease:
			if isPreRelease(v) {
				continue
			}
		case api.VersionRangePrefix:
			if !matchesPrefix(v, spec.Prefix) {
				continue
			}
		default:
			panic("selectVersion only handles ranges")
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return "", Errorf(api.ErrNotFound, "no version of %s matches %q (of %d listed)", coord, spec, len(versions))
	}
	return pickHighest(coord, candidates)
}

func pickHighest(coord api.Coordinate, candidates []string) (string, error) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return compareVersions(candidates[i], candidates[j]) > 0
	})
	best := candidates[0]
	for _, other := range candidates[1:] {
		if compareVersions(best, other) != 0 {
			break
		}
		if other != best {
			return "", Errorf(api.ErrAmbiguousVersion, "versions %q and %q of %s rank the same", best, other, coord)
		}
	}
	return best, nil
}

/*
	Compare two version strings segment by segment (split on dots).

	Segments which are both numeric compare as numbers (so "10" beats "9",
	and "01" equals "1"); anything else compares lexically.  If one version
	is a prefix of the other, the longer one wins.
*/
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) > len(bs):
		return 1
	case len(as) < len(bs):
		return -1
	default:
		return 0
	}
}

func compareSegment(a, b string) int {
	if isNumeric(a) && isNumeric(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) > len(b) {
				return 1
			}
			return -1
		}
	}
	return strings.Compare(a, b)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

/*
	Whether the version's leading segments match the prefix.

	A prefix ending in a dot ("1.") must match whole segments; otherwise
	the last prefix segment matches by string prefix ("1.2" matches
	"1.2.0" and also "1.20").
*/
func matchesPrefix(version, prefix string) bool {
	ps := strings.Split(prefix, ".")
	vs := strings.Split(version, ".")
	partial := ps[len(ps)-1]
	whole := ps[:len(ps)-1]
	if len(vs) < len(whole) {
		return false
	}
	for i, p := range whole {
		if vs[i] != p {
			return false
		}
	}
	if partial == "" {
		// Prefix ended in a dot: there must be something after it.
		return len(vs) > len(whole)
	}
	if len(vs) == len(whole) {
		return false
	}
	return strings.HasPrefix(vs[len(whole)], partial)
}

var preReleaseMarkers = []string{"snapshot", "alpha", "beta", "rc", "dev", "pre", "preview", "milestone"}

/*
	Whether a version looks like a pre-release.

	Anything semver-parseable with a pre-release component counts,
	as does any dot- or dash-separated segment starting with one of the
	usual markers ("1.0.0.RC1", "2.0-SNAPSHOT", "3.1.beta").
*/
func isPreRelease(v string) bool {
	if sv, err := semver.NewVersion(v); err == nil && sv.Prerelease() != "" {
		return true
	}
	segments := strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	for _, seg := range segments {
		for _, marker := range preReleaseMarkers {
			if strings.HasPrefix(seg, marker) {
				return true
			}
		}
	}
	return false
}
