// Package kev implements SOFA's KEV Detector & Enricher (spec.md §4.4):
// normalizing CVE exploitation signals from Apple's own "Impact:" prose and
// CISA's Known Exploited Vulnerabilities catalog into a per-CVE
// ExploitationInfo record.
//
// Grounded on _examples/quay-claircore/enricher/kev/kev.go's CISA
// fetch/parse/enrich shape and original_source/.../enrichers/smart_kev_detector.py's
// exact pattern table, accumulate-don't-break semantics, confidence-upgrade
// rule, and cross-platform-warning-only-when-no-local-match rule (see
// DESIGN.md's Open Questions decision #2: this table is the single place new
// signals are added, never hard-coded in the detector).
package kev

import (
	"regexp"

	"github.com/sofa-project/sofa"
)

// Pattern is one Apple-text exploitation signal (spec.md §4.4's table).
// Multiple patterns may match the same CVE's impact text; all their sources
// and flags accumulate rather than the first match short-circuiting the
// rest (smart_kev_detector.py's behavior, carried forward in SPEC_FULL.md's
// SUPPLEMENTED FEATURES).
type Pattern struct {
	Name               string
	Regex              *regexp.Regexp
	Source             sofa.ExploitationSource
	Confidence         sofa.ExploitationConfidence
	SetsTargetedAttack bool
	SetsPhysicalAttack bool
	SetsTargetedVer    bool
	Note               string
}

// Patterns is spec.md §4.4's starting signal table, in declaration order.
// New signals are appended here, never special-cased in detector.go (open
// question resolved in DESIGN.md).
var Patterns = []Pattern{
	{
		Name:       "apple_direct",
		Regex:      regexp.MustCompile(`(?i)Apple is aware of a report that this issue may have been (?:actively )?exploited`),
		Source:     sofa.SourceAppleDirect,
		Confidence: sofa.ConfidenceConfirmed,
	},
	{
		Name:               "apple_targeted",
		Regex:              regexp.MustCompile(`(?i)exploited in an extremely sophisticated attack against specific targeted individuals`),
		Source:             sofa.SourceAppleTargeted,
		Confidence:         sofa.ConfidenceConfirmed,
		SetsTargetedAttack: true,
	},
	{
		Name:            "apple_version_specific",
		Regex:           regexp.MustCompile(`(?i)actively exploited against versions of (\w+) (?:released )?before ([\w.]+)`),
		Source:          sofa.SourceAppleVersionSpecific,
		Confidence:      sofa.ConfidenceConfirmed,
		SetsTargetedVer: true,
	},
	{
		Name:               "apple_physical",
		Regex:              regexp.MustCompile(`(?is)A physical attack may.*?Apple is aware.*?may have been exploited`),
		Source:             sofa.SourceAppleDirect,
		Confidence:         sofa.ConfidenceConfirmed,
		SetsPhysicalAttack: true,
	},
	{
		Name:       "apple_supplementary_fix",
		Regex:      regexp.MustCompile(`(?i)This is a supplementary fix for an attack that was blocked`),
		Source:     sofa.SourceAppleDirect,
		Confidence: sofa.ConfidenceHigh,
		Note:       "supplementary fix for a previously blocked attack",
	},
}
