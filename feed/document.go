// Package feed implements SOFA's Feed Assembler (spec.md §4.8): producing
// per-platform v1 and v2 feed documents plus an RSS view, and computing
// stable content hashes.
//
// Grounded on _examples/quay-claircore/libvuln/jsonblob/jsonblob.go's
// JSON-blob output writer idiom (build a document, then serialize to a
// stable path) — read for the idiom, then not reused verbatim (the
// vulnstore update-operation blob format has no Apple-release analog).
// Version sort/group uses github.com/Masterminds/semver via the release
// package.
package feed

import (
	"sort"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/release"
)

// Release is the v1 per-release JSON shape spec.md §6 declares: the fields
// common to both Latest and each SecurityReleases entry.
type Release struct {
	ProductVersion           string          `json:"ProductVersion"`
	Build                    string          `json:"Build"`
	AllBuilds                []string        `json:"AllBuilds,omitempty"`
	ReleaseDate              string          `json:"ReleaseDate"`
	ExpirationDate           string          `json:"ExpirationDate"`
	SupportedDevices         []string        `json:"SupportedDevices,omitempty"`
	SecurityInfo             string          `json:"SecurityInfo,omitempty"`
	CVEs                     map[string]bool `json:"CVEs"`
	ActivelyExploitedCVEs    []string        `json:"ActivelyExploitedCVEs"`
	UniqueCVEsCount          int             `json:"UniqueCVEsCount"`
	DaysSincePreviousRelease int             `json:"DaysSincePreviousRelease"`
}

// OSVersionBlock groups every retained release of one major OS version
// under its human-readable label (spec.md §3/§6, glossary "OSVersion
// label").
type OSVersionBlock struct {
	OSVersion        string     `json:"OSVersion"`
	Latest           Release    `json:"Latest"`
	SecurityReleases []Release  `json:"SecurityReleases"`
	SupportedModels  []string   `json:"SupportedModels,omitempty"`
}

// XProtectBlock is macOS's annex carrying current XProtect component
// versions (spec.md §3 FeedDocument v1, "platform-specific annexes").
type XProtectBlock struct {
	Version     string `json:"Version"`
	ReleaseDate string `json:"ReleaseDate"`
}

// Document is the v1 FeedDocument (spec.md §3/§6): one per platform.
type Document struct {
	UpdateHash string `json:"UpdateHash"`

	OSVersions []OSVersionBlock `json:"OSVersions"`

	// macOS-only annexes (spec.md §3: "attached only on macOS").
	XProtectPayloads         *XProtectBlock      `json:"XProtectPayloads,omitempty"`
	XProtectPlistConfigData  *XProtectBlock      `json:"XProtectPlistConfigData,omitempty"`
	Models                   map[string]string   `json:"Models,omitempty"`
	InstallationApps         []string            `json:"InstallationApps,omitempty"`
}

// buildRelease converts one sofa.ReleaseRecord into its v1 JSON shape.
func buildRelease(r *sofa.ReleaseRecord) Release {
	cves := make(map[string]bool, len(r.CVEs))
	for _, id := range r.CVEs {
		d := r.CVEDetails[id]
		cves[id] = d.Exploitation.IsExploited
	}
	exp := ""
	if r.ExpirationDate != nil {
		exp = r.ExpirationDate.Format("2006-01-02T15:04:05Z")
	}
	return Release{
		ProductVersion:           r.Version,
		Build:                    r.Build,
		AllBuilds:                r.AllBuilds,
		ReleaseDate:              r.ReleaseDate.Format("2006-01-02T15:04:05Z"),
		ExpirationDate:           exp,
		SupportedDevices:         r.SupportedDevices,
		SecurityInfo:             r.URL,
		CVEs:                     cves,
		ActivelyExploitedCVEs:    sortedOrEmpty(r.ActivelyExploitedCVEs()),
		UniqueCVEsCount:          r.UniqueCVEsCount(),
		DaysSincePreviousRelease: r.DaysSincePreviousRelease,
	}
}

// sortedOrEmpty returns ids, or an empty (non-nil) slice if ids is empty, so
// v1's ActivelyExploitedCVEs always serializes as [] rather than null.
func sortedOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// GroupByOSVersion buckets retained releases by their OSVersion label and
// sorts each bucket newest-first using release.CompareVersions (spec.md
// §4.8's "proper version parser"), with DaysSincePreviousRelease computed
// as a descending walk: oldest gets 0 (spec.md §4.8).
func GroupByOSVersion(platform sofa.Platform, recs []*sofa.ReleaseRecord) []OSVersionBlock {
	groups := make(map[string][]*sofa.ReleaseRecord)
	var labels []string
	for _, r := range recs {
		label := release.OSVersionLabel(string(platform), r.Version)
		if _, ok := groups[label]; !ok {
			labels = append(labels, label)
		}
		groups[label] = append(groups[label], r)
	}

	sort.Slice(labels, func(i, j int) bool {
		return labelMajor(labels[i]) > labelMajor(labels[j])
	})

	blocks := make([]OSVersionBlock, 0, len(labels))
	for _, label := range labels {
		g := groups[label]
		sort.SliceStable(g, func(i, j int) bool {
			return release.CompareVersions(g[i].Version, g[j].Version) > 0
		})
		annotateDaysSincePrevious(g)

		releases := make([]Release, len(g))
		for i, r := range g {
			releases[i] = buildRelease(r)
		}
		blocks = append(blocks, OSVersionBlock{
			OSVersion:        label,
			Latest:           releases[0],
			SecurityReleases: releases,
		})
	}
	return blocks
}

// annotateDaysSincePrevious walks g newest-to-oldest (g is already sorted
// that way) computing each release's gap to the one immediately before it
// in time; the oldest release in the group gets 0 (spec.md §4.8).
func annotateDaysSincePrevious(g []*sofa.ReleaseRecord) {
	for i := range g {
		if i == len(g)-1 {
			g[i].DaysSincePreviousRelease = 0
			continue
		}
		next := g[i+1] // older release
		days := int(g[i].ReleaseDate.Sub(next.ReleaseDate).Hours() / 24)
		if days < 0 {
			days = 0
		}
		g[i].DaysSincePreviousRelease = days
	}
}

// labelMajor extracts a sortable integer from an OSVersion label ("Sequoia
// 15" or "18"), used only to order OSVersionBlocks newest-major-first.
func labelMajor(label string) int {
	for i := len(label) - 1; i >= 0; i-- {
		if label[i] < '0' || label[i] > '9' {
			n, ok := release.MajorVersion(label[i+1:])
			if ok {
				return n
			}
			return 0
		}
	}
	n, _ := release.MajorVersion(label)
	return n
}
