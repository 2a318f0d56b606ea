// Package component implements SOFA's Component Normalizer (spec.md §4.6):
// mapping Apple's free-text "component" strings onto the fixed fifteen-
// category taxonomy sofa.ComponentCategory declares.
//
// Grounded verbatim in meaning on
// original_source/.../enrichers/component_normalizer.py's keyword/pattern
// tables and heuristic fallback order (SPEC_FULL.md's SUPPLEMENTED FEATURES).
package component

import (
	"regexp"
	"strings"

	"github.com/sofa-project/sofa"
)

// keywords is the direct keyword-membership table, checked first (spec.md
// §4.6 priority (1)). Matching is case-insensitive substring containment.
var keywords = map[sofa.ComponentCategory][]string{
	sofa.ComponentWebKit:         {"webkit", "safari"},
	sofa.ComponentKernel:         {"kernel", "xnu"},
	sofa.ComponentNetworking:     {"wi-fi", "wifi", "bluetooth", "networking", "vpn", "captive network"},
	sofa.ComponentSecurity:       {"security", "gatekeeper", "sandbox", "code signing", "secure enclave", "applemobilefileintegrity"},
	sofa.ComponentMedia:          {"coremedia", "audio", "video", "imageio", "photos", "camera"},
	sofa.ComponentGraphics:       {"graphics", "metal", "coregraphics", "gpu"},
	sofa.ComponentSystemServices: {"coreservices", "system services", "notification", "launchservices"},
	sofa.ComponentFileSystem:     {"apfs", "file system", "filesystem", "disk image"},
	sofa.ComponentDrivers:        {"driver", "iokit"},
	sofa.ComponentApplications:  {"mail", "messages", "notes", "calendar", "contacts", "facetime", "app store"},
	sofa.ComponentAccessibility:  {"accessibility", "voiceover"},
	sofa.ComponentVirtualization: {"virtualization", "hypervisor", "vm "},
	sofa.ComponentPackageManagement: {"installer", "package management", "software update"},
	sofa.ComponentDeveloperTools:    {"xcode", "developer tools", "instruments"},
	sofa.ComponentPrivacy:           {"privacy", "tcc", "transparency"},
}

// patterns is the regex table checked second (priority (2)): all categories
// are evaluated and the first hit by declaration order wins, matching
// component_normalizer.py's ordered-pattern-list behavior.
var patterns = []struct {
	Category sofa.ComponentCategory
	Regex    *regexp.Regexp
}{
	{sofa.ComponentWebKit, regexp.MustCompile(`(?i)\bwebkit\b`)},
	{sofa.ComponentKernel, regexp.MustCompile(`(?i)\bkernel\b`)},
	{sofa.ComponentGraphics, regexp.MustCompile(`(?i)\bintel\s+graphics\b|\bgpu\b`)},
	{sofa.ComponentDrivers, regexp.MustCompile(`(?i)\bdriver(s)?\b`)},
	{sofa.ComponentMedia, regexp.MustCompile(`(?i)\bcodec\b|\bmedia\b`)},
}

// driverSuffixes and vendorPrefixes feed the third-priority heuristic
// fallback (spec.md §4.6 priority (3)): a component string ending in one of
// these, or beginning with a known hardware vendor name, is a driver.
var driverSuffixes = []string{" driver", " drivers"}
var vendorPrefixes = []string{"intel ", "nvidia ", "amd ", "broadcom ", "realtek "}

// appSuffixes and frameworkSuffixes are the remaining heuristic fallbacks:
// a ".app"-style or framework-style name falls to Applications or System
// Services respectively.
var appSuffixes = []string{".app", " app"}
var frameworkSuffixes = []string{".framework", " framework"}

// Normalize maps a raw Apple component string onto the closed taxonomy,
// defaulting to sofa.ComponentSystem when no rule fires (spec.md §4.6).
func Normalize(raw string) sofa.ComponentCategory {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return sofa.ComponentSystem
	}

	// Priority (1): direct keyword membership, declaration order.
	for _, cat := range sofa.Categories() {
		for _, kw := range keywords[cat] {
			if strings.Contains(lower, kw) {
				return cat
			}
		}
	}

	// Priority (2): regex match, all categories evaluated, first hit by
	// declaration order wins.
	for _, p := range patterns {
		if p.Regex.MatchString(lower) {
			return p.Category
		}
	}

	// Priority (3): heuristic fallbacks.
	for _, suf := range driverSuffixes {
		if strings.HasSuffix(lower, suf) {
			return sofa.ComponentDrivers
		}
	}
	for _, pre := range vendorPrefixes {
		if strings.HasPrefix(lower, pre) {
			return sofa.ComponentDrivers
		}
	}
	for _, suf := range appSuffixes {
		if strings.HasSuffix(lower, suf) {
			return sofa.ComponentApplications
		}
	}
	for _, suf := range frameworkSuffixes {
		if strings.HasSuffix(lower, suf) {
			return sofa.ComponentSystemServices
		}
	}

	return sofa.ComponentSystem
}
