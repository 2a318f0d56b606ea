// Package release implements SOFA's Release Extractor (spec.md §4.3): a
// purely cache-reading pass that walks the parsed index and detail-page
// derivatives fetch/ has already written and produces a canonical
// ReleaseRecord stream, one per (Platform, Version, Build) triple.
//
// Grounded on _examples/quay-claircore/version.go's Version value type for
// the general idea of a comparable release-version type, and on
// original_source/.../fetchers/apple_os_releases_scraper.py's
// platform-anchored version/build regexes for the actual extraction rules.
package release

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
)

// versionPatterns are platform-anchored version extractors, tried in
// declared order against a detail page's title, then falling back to
// free-text matching anywhere in the page (spec.md §4.3).
var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmacOS\s+\w+(?:\s+\w+)*\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\biPadOS\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\biOS\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\bwatchOS\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\btvOS\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\bvisionOS\s+(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?i)\bSafari\s+(\d+(?:\.\d+)*)`),
}

// freeTextVersion is the fallback spec.md §4.3 calls for when no
// platform-anchored pattern matches: the first dotted-number token.
var freeTextVersion = regexp.MustCompile(`\b(\d+(?:\.\d+){1,3})\b`)

// ExtractVersion finds a release version in text, trying the platform
// patterns first and falling back to free-text matching.
func ExtractVersion(text string) (string, bool) {
	for _, p := range versionPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	if m := freeTextVersion.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// rsrSuffix matches a Rapid Security Response's trailing letter suffix,
// e.g. "17.5.1 (a)" or "17.5.1 (b)".
var rsrSuffix = regexp.MustCompile(`\(([a-z])\)\s*$`)

// IsRSR reports whether title names a Rapid Security Response release.
func IsRSR(title string) bool {
	return strings.Contains(strings.ToLower(title), "rapid security response") || rsrSuffix.MatchString(title)
}

// normalizeForSemver turns an Apple dotted version ("15.3", "18", "17.5.1")
// into a string github.com/Masterminds/semver.NewVersion accepts, padding
// missing minor/patch components with zero so two-part and three-part
// Apple versions compare correctly against each other.
func normalizeForSemver(v string) string {
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}

// ParseSemver parses an Apple version string into a semver.Version for
// ordering, per SPEC_FULL.md's DOMAIN STACK entry for
// github.com/Masterminds/semver ("Apple's dotted MAJOR.MINOR.PATCH versions
// are normalized into semver form").
func ParseSemver(v string) (*semver.Version, error) {
	return semver.NewVersion(normalizeForSemver(v))
}

// CompareVersions orders two Apple version strings newest-first (spec.md
// §4.8's "proper version parser (packaging-style component comparison)").
// Versions that fail to parse as semver fall back to a numeric-component
// comparison so malformed version strings never panic a feed build.
func CompareVersions(a, b string) int {
	va, errA := ParseSemver(a)
	vb, errB := ParseSemver(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return compareNumericParts(a, b)
}

func compareNumericParts(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// MajorVersion returns the leading integer component of v, used by
// retention's last_n_major/whitelist modes (spec.md §4.7).
func MajorVersion(v string) (int, bool) {
	parts := strings.SplitN(v, ".", 2)
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// OSVersionLabel computes the human-readable grouping key spec.md's
// glossary defines (e.g. "Sequoia 15" for macOS, "18" for iOS): macOS
// carries a marketing name prefix that SOFA looks up by major version;
// every other platform's label is just its major version number.
func OSVersionLabel(platform string, version string) string {
	major, ok := MajorVersion(version)
	if !ok {
		return version
	}
	if name, ok := macOSMarketingNames[major]; ok && strings.EqualFold(platform, "macOS") {
		return name + " " + strconv.Itoa(major)
	}
	return strconv.Itoa(major)
}

// macOSMarketingNames maps macOS major versions to their marketing names,
// used to build OSVersion labels like "Sequoia 15". New major versions are
// appended here as Apple ships them.
var macOSMarketingNames = map[int]string{
	26: "Tahoe",
	15: "Sequoia",
	14: "Sonoma",
	13: "Ventura",
	12: "Monterey",
	11: "Big Sur",
}
