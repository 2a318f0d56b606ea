package kev

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sofa-project/sofa"
)

// Detector analyzes Apple impact text and cross-references CISA's KEV
// catalog to produce per-CVE ExploitationInfo records (spec.md §4.4).
type Detector struct {
	// KEV is the CISA catalog, keyed by CVE ID, fetch.KEVClient returns.
	KEV map[string]sofa.KEVEntry
}

// Analyze builds the local (single-platform) ExploitationInfo for cveID
// given the Apple impact/description text associated with it on this
// platform. Every pattern in Patterns is tried; all matches accumulate
// sources and flags (never short-circuits, per SUPPLEMENTED FEATURES).
// cveID is the plain "CVE-YYYY-N" string form sofa.ReleaseRecord.CVEs uses.
func (d *Detector) Analyze(cveID string, platform sofa.Platform, text string) sofa.ExploitationInfo {
	info := sofa.ExploitationInfo{
		CVEID:             cveID,
		AffectedPlatforms: []sofa.Platform{platform},
	}

	var notes []string
	for _, p := range Patterns {
		m := p.Regex.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		info.IsExploited = true
		info.Confidence = info.Confidence.Max(p.Confidence)
		info.AddSource(p.Source)
		if p.SetsTargetedAttack {
			info.IsTargetedAttack = true
		}
		if p.SetsPhysicalAttack {
			info.IsPhysicalAttack = true
		}
		if p.SetsTargetedVer && len(m) > 2 {
			info.TargetedVersions = append(info.TargetedVersions, fmt.Sprintf("%s before %s", m[1], m[2]))
		}
		if p.Note != "" {
			notes = append(notes, p.Note)
		}
	}

	if entry, ok := d.KEV[cveID]; ok {
		info.IsExploited = true
		info.AddSource(sofa.SourceCISAKEV)
		info.Confidence = info.Confidence.Max(sofa.ConfidenceHigh)
		if entry.RansomwareUse != "" && !strings.EqualFold(entry.RansomwareUse, "Unknown") {
			notes = append(notes, "CISA KEV notes known ransomware campaign use")
		}
	}

	if len(notes) > 0 {
		info.Notes = strings.Join(notes, "; ")
	}
	return info
}

// CrossPlatformWarning builds the spec.md §4.4 "cross-platform" record: a
// CVE known exploited on sourcePlatforms but observed with no local signal
// here. It is never merged into ActivelyExploitedCVEs — callers attach it
// to ReleaseRecord.CrossPlatformWarnings instead.
func CrossPlatformWarning(cveID string, sourcePlatforms []sofa.Platform) sofa.ExploitationInfo {
	names := make([]string, len(sourcePlatforms))
	for i, p := range sourcePlatforms {
		names[i] = string(p)
	}
	sort.Strings(names)
	return sofa.ExploitationInfo{
		CVEID:             cveID,
		IsExploited:       false,
		Confidence:        sofa.ConfidenceMedium,
		Sources:           []sofa.ExploitationSource{sofa.SourceCrossPlatform},
		AffectedPlatforms: sourcePlatforms,
		Notes:             "Known exploited on: " + strings.Join(names, ", "),
	}
}
