// Package retention implements SOFA's Retention & Pinning stage (spec.md
// §4.7): per-platform retention policy plus explicit version/build pins.
//
// Grounded on _examples/quay-claircore/libvuln/updates/manager.go's
// GC/retention call (m.store.GC(ctx, m.updateRetention)) for the "retention
// is a policy object invoked once per run" shape; the all/last_n_major/
// whitelist modes themselves come from spec.md §4.7 directly (no teacher
// analog — Linux distro vulnerability feeds don't prune by release).
package retention

import (
	"sort"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/release"
)

// Mode is the closed set of retention strategies spec.md §4.7 declares.
type Mode string

const (
	ModeAll          Mode = "all"
	ModeLastNMajor   Mode = "last_n_major"
	ModeWhitelist    Mode = "whitelist"
)

// Policy is the typed, explicitly enumerated per-platform retention
// configuration Design Notes §9 calls for in place of a dynamic kwargs
// object.
type Policy struct {
	Mode                   Mode
	LastN                  int  // used by ModeLastNMajor; default 2
	Majors                 []int // used by ModeWhitelist
	AllowPinsOutsideWindow bool
}

// DefaultPolicy returns spec.md §4.7's documented per-platform default:
// macOS defaults to "all"; every other platform defaults to
// "last_n_major" with LastN=2.
func DefaultPolicy(p sofa.Platform) Policy {
	if p == sofa.PlatformMacOS {
		return Policy{Mode: ModeAll}
	}
	return Policy{Mode: ModeLastNMajor, LastN: 2}
}

// Pin identifies a release to keep regardless of retention, by version or
// by build (either may be empty; at least one must be set for the pin to
// match anything).
type Pin struct {
	Version string
	Build   string
}

func (p Pin) matches(r *sofa.ReleaseRecord) bool {
	if p.Version != "" && p.Version == r.Version {
		return true
	}
	if p.Build != "" && p.Build == r.Build {
		return true
	}
	return false
}

// Apply filters recs per policy, after first marking pinned releases so
// they can survive an otherwise-excluded window (spec.md §4.7: "Pins are
// applied first ... then retention filters"). Tie-break on "newest" uses
// release_date descending, then title ascending, matching spec.md §4.7
// exactly.
func Apply(recs []*sofa.ReleaseRecord, policy Policy, pins []Pin) []*sofa.ReleaseRecord {
	sorted := make([]*sofa.ReleaseRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ReleaseDate.Equal(sorted[j].ReleaseDate) {
			return sorted[i].ReleaseDate.After(sorted[j].ReleaseDate)
		}
		return sorted[i].Title < sorted[j].Title
	})

	for _, r := range sorted {
		for _, pin := range pins {
			if pin.matches(r) {
				r.IsPinned = true
				break
			}
		}
	}

	switch policy.Mode {
	case ModeAll:
		return sorted
	case ModeWhitelist:
		return filter(sorted, policy, func(r *sofa.ReleaseRecord) bool {
			major, ok := release.MajorVersion(r.Version)
			if !ok {
				return false
			}
			for _, m := range policy.Majors {
				if m == major {
					return true
				}
			}
			return false
		})
	case ModeLastNMajor:
		fallthrough
	default:
		n := policy.LastN
		if n <= 0 {
			n = 2
		}
		keepMajors := lastNMajors(sorted, n)
		return filter(sorted, policy, func(r *sofa.ReleaseRecord) bool {
			major, ok := release.MajorVersion(r.Version)
			return ok && keepMajors[major]
		})
	}
}

// lastNMajors returns the n highest major versions present in recs (recs is
// assumed newest-first, but this re-derives majors numerically so it's
// correct regardless of input order).
func lastNMajors(recs []*sofa.ReleaseRecord, n int) map[int]bool {
	seen := make(map[int]bool)
	var majors []int
	for _, r := range recs {
		major, ok := release.MajorVersion(r.Version)
		if !ok || seen[major] {
			continue
		}
		seen[major] = true
		majors = append(majors, major)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(majors)))
	if len(majors) > n {
		majors = majors[:n]
	}
	keep := make(map[int]bool, len(majors))
	for _, m := range majors {
		keep[m] = true
	}
	return keep
}

// filter keeps every record satisfying pred, plus any pinned record when
// policy.AllowPinsOutsideWindow is set (spec.md §4.7).
func filter(recs []*sofa.ReleaseRecord, policy Policy, pred func(*sofa.ReleaseRecord) bool) []*sofa.ReleaseRecord {
	var out []*sofa.ReleaseRecord
	for _, r := range recs {
		if pred(r) {
			out = append(out, r)
			continue
		}
		if policy.AllowPinsOutsideWindow && r.IsPinned {
			out = append(out, r)
		}
	}
	return out
}
