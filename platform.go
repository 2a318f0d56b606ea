// Package sofa holds the domain types shared across SOFA's fetch, enrich,
// and feed-assembly stages: the closed sets (Platform, ComponentCategory),
// the CVE and exploitation record shapes, and the release record the whole
// pipeline is built around.
package sofa

import "strings"

// Platform is the closed set of Apple operating systems and browser SOFA
// tracks security releases for.
type Platform string

const (
	PlatformMacOS     Platform = "macOS"
	PlatformIOS       Platform = "iOS"
	PlatformIPadOS    Platform = "iPadOS"
	PlatformWatchOS   Platform = "watchOS"
	PlatformTVOS      Platform = "tvOS"
	PlatformVisionOS  Platform = "visionOS"
	PlatformSafari    Platform = "Safari"
	PlatformUnknown   Platform = ""
)

// platforms is the declared iteration order used whenever platforms must be
// enumerated deterministically (manifest generation, feed directory listing).
var platforms = []Platform{
	PlatformMacOS,
	PlatformIOS,
	PlatformIPadOS,
	PlatformWatchOS,
	PlatformTVOS,
	PlatformVisionOS,
	PlatformSafari,
}

// Platforms returns the closed set of platforms in declared order.
func Platforms() []Platform {
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

// Valid reports whether p is one of the seven recognized platforms.
func (p Platform) Valid() bool {
	for _, v := range platforms {
		if v == p {
			return true
		}
	}
	return false
}

// Key returns the lowercase bucket token used for cache/feed directory keys,
// e.g. "macos", "ipados".
func (p Platform) Key() string {
	return strings.ToLower(string(p))
}

// DetectPlatform finds the first platform keyword present in s, using the
// same keyword match spec.md §4.3 specifies for bucketing index rows. iPadOS
// and iOS share the "OS" suffix, so iPadOS is checked before iOS to avoid a
// false match, and visionOS is checked before the generic patterns because it
// otherwise never appears as a standalone token in older copy.
func DetectPlatform(s string) (Platform, bool) {
	lower := strings.ToLower(s)
	order := []Platform{
		PlatformIPadOS,
		PlatformWatchOS,
		PlatformTVOS,
		PlatformVisionOS,
		PlatformMacOS,
		PlatformIOS,
		PlatformSafari,
	}
	for _, p := range order {
		if strings.Contains(lower, strings.ToLower(string(p))) {
			return p, true
		}
	}
	return PlatformUnknown, false
}

// ReleaseType distinguishes the shape of a security release: a normal OS
// release, a Rapid Security Response, a standalone configuration update, or
// a browser-only release (Safari on older macOS).
type ReleaseType string

const (
	ReleaseTypeOS     ReleaseType = "OS"
	ReleaseTypeRSR    ReleaseType = "RSR"
	ReleaseTypeConfig ReleaseType = "Config"
	ReleaseTypeBrowser ReleaseType = "Browser"
)
