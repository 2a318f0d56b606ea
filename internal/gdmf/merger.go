// Package gdmf implements SOFA's GDMF Merger (spec.md §4.5): matching
// ReleaseRecords to Apple's public GDMF asset manifest to attach
// SupportedDevices, AllBuilds, and ExpirationDate.
//
// Grounded on _examples/quay-claircore/alma/updaterset.go's set-merge-
// preserving-order style (read for the idiom, not reused verbatim — Alma
// Linux mirror sets have no Apple-release analog) and spec.md §4.5's literal
// merge rules.
package gdmf

import (
	"sort"
	"strings"
	"time"

	"github.com/sofa-project/sofa"
)

// expirationLayouts covers the date formats GDMF's ExpirationDate field has
// been observed in: plain date and full RFC3339 timestamp.
var expirationLayouts = []string{"2006-01-02", time.RFC3339}

func parseExpiration(s string) *time.Time {
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// platformGDMFKey returns the GDMF PublicAssetSets key a platform's assets
// are filed under. watchOS and tvOS are published under "iOS" and
// distinguished only by each asset's SupportedDevices prefix (spec.md
// §4.5's two exceptions); every other platform, including iPadOS, is filed
// under its own name.
func platformGDMFKey(p sofa.Platform) string {
	switch p {
	case sofa.PlatformWatchOS, sofa.PlatformTVOS:
		return "iOS"
	default:
		return string(p)
	}
}

// matchesPlatform reports whether a GDMF asset found under platform p's key
// belongs to p, using the SupportedDevices prefix: "Watch" for watchOS and
// "AppleTV" for tvOS (both filed under the iOS key, spec.md §4.5), "iPad"
// for iPadOS and "iPhone" for iOS. Every other platform matches on
// ProductVersion equality alone.
func matchesPlatform(p sofa.Platform, asset sofa.GDMFAsset) bool {
	switch p {
	case sofa.PlatformWatchOS:
		return anyHasPrefix(asset.SupportedDevices, "Watch")
	case sofa.PlatformTVOS:
		return anyHasPrefix(asset.SupportedDevices, "AppleTV")
	case sofa.PlatformIPadOS:
		return anyHasPrefix(asset.SupportedDevices, "iPad")
	case sofa.PlatformIOS:
		return anyHasPrefix(asset.SupportedDevices, "iPhone")
	default:
		return true
	}
}

func anyHasPrefix(devices []string, prefix string) bool {
	for _, d := range devices {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

// Merger matches ReleaseRecords against a GDMF asset manifest.
type Merger struct {
	// Assets is the flattened GDMF manifest, keyed by the raw GDMF platform
	// key ("iOS", "macOS", ...) as published. Merge searches only this map.
	// The orchestrator fills it from fetch.GDMFResponse.PublicAssetSets;
	// GDMF's AssetSets are not decoded by fetch.GDMFClient and are not
	// searched.
	Assets map[string][]sofa.GDMFAsset
}

// Merge attaches SupportedDevices, AllBuilds, Build, and ExpirationDate to r
// from matching GDMF assets (spec.md §4.5). Matching is strict on
// ProductVersion equality; no fuzzy version matching. If no asset matches,
// r is left with its own build as AllBuilds and an empty device list.
func (m *Merger) Merge(r *sofa.ReleaseRecord) {
	key := platformGDMFKey(r.Platform)
	candidates := m.Assets[key]
	if len(candidates) == 0 {
		if r.Build != "" {
			r.AllBuilds = appendUnique(r.AllBuilds, r.Build)
		}
		return
	}

	var matched []sofa.GDMFAsset
	for _, a := range candidates {
		if a.ProductVersion != r.Version {
			continue
		}
		if !matchesPlatform(r.Platform, a) {
			continue
		}
		matched = append(matched, a)
	}
	if len(matched) == 0 {
		if r.Build != "" {
			r.AllBuilds = appendUnique(r.AllBuilds, r.Build)
		}
		return
	}

	var devices []string
	seenDevice := make(map[string]bool)
	var builds []string
	seenBuild := make(map[string]bool)
	for _, a := range matched {
		for _, d := range a.SupportedDevices {
			if !seenDevice[d] {
				seenDevice[d] = true
				devices = append(devices, d)
			}
		}
		if a.Build != "" && !seenBuild[a.Build] {
			seenBuild[a.Build] = true
			builds = append(builds, a.Build)
		}
	}
	sort.Strings(builds)
	if r.Build != "" {
		builds = appendUnique(builds, r.Build)
		sort.Strings(builds)
	}

	r.SupportedDevices = devices
	r.AllBuilds = builds
	if len(builds) > 0 {
		r.Build = builds[0]
	}
	if matched[0].ExpirationDate != "" {
		// ExpirationDate is carried as a string on GDMFAsset and parsed here,
		// from the first matching asset only; a value in neither
		// expirationLayouts format leaves r.ExpirationDate nil.
		r.ExpirationDate = parseExpiration(matched[0].ExpirationDate)
	}
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// MergeAll runs Merge over every release in every platform bucket.
func MergeAll(releases map[sofa.Platform][]*sofa.ReleaseRecord, m *Merger) {
	for _, recs := range releases {
		for _, r := range recs {
			m.Merge(r)
		}
	}
}
