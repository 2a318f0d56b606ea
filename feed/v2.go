package feed

import (
	"sort"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/internal/component"
	"github.com/sofa-project/sofa/release"
)

// CVEObject is v2's lifted-from-boolean CVE shape (spec.md §3/§6): the v1
// map's boolean is replaced with a full object carrying component,
// confidence, sources, and any targeted/physical-attack flags.
type CVEObject struct {
	ID               string                       `json:"id"`
	IsExploited      bool                         `json:"is_exploited"`
	Component        sofa.ComponentCategory       `json:"component"`
	ComponentRaw     string                       `json:"component_raw"`
	Impact           string                       `json:"impact,omitempty"`
	Description      string                       `json:"description,omitempty"`
	Platforms        []sofa.Platform              `json:"platforms,omitempty"`
	Confidence       sofa.ExploitationConfidence   `json:"confidence,omitempty"`
	Sources          []sofa.ExploitationSource     `json:"sources,omitempty"`
	TargetedAttack   bool                          `json:"targeted_attack,omitempty"`
	PhysicalAttack   bool                          `json:"physical_attack,omitempty"`
	TargetedVersions []string                      `json:"targeted_versions,omitempty"`
	ExploitationNotes string                       `json:"exploitation_notes,omitempty"`
}

// ExploitationWarning is v2's exploitation_warnings entry (spec.md §4.4):
// a cross-platform signal that never counts toward ActivelyExploitedCVEs.
type ExploitationWarning struct {
	CVE  string `json:"cve"`
	Note string `json:"note"`
}

// ComponentBreakdown is a per-release count of CVEs by normalized component
// category (spec.md §4.8 v2 assembly).
type ComponentBreakdown map[sofa.ComponentCategory]int

// CVEMetrics is the per-release CVE summary v2 attaches alongside
// ComponentBreakdown.
type CVEMetrics struct {
	Total           int `json:"total"`
	ActivelyExploited int `json:"actively_exploited"`
}

// ReleaseV2 extends Release with v2's richer per-release annotations.
type ReleaseV2 struct {
	Release
	CVEs                 map[string]CVEObject   `json:"CVEs"`
	ExploitationWarnings []ExploitationWarning  `json:"exploitation_warnings,omitempty"`
	CVEMetrics           CVEMetrics             `json:"CVEMetrics"`
	ComponentBreakdown   ComponentBreakdown     `json:"ComponentBreakdown"`
}

// Statistics is v2's per-OSVersion rollup (spec.md §4.8).
type Statistics struct {
	TotalReleases          int                `json:"total_releases"`
	TotalCVEs              int                `json:"total_cves"`
	TotalKEVs              int                `json:"total_kevs"`
	ComponentDistribution  ComponentBreakdown `json:"component_distribution"`
	ExploitationRate       float64            `json:"exploitation_rate"`
}

// OSVersionBlockV2 is v2's OSVersion block: v1's shape plus Statistics.
type OSVersionBlockV2 struct {
	OSVersion        string      `json:"OSVersion"`
	Latest           ReleaseV2   `json:"Latest"`
	SecurityReleases []ReleaseV2 `json:"SecurityReleases"`
	SupportedModels  []string    `json:"SupportedModels,omitempty"`
	Statistics       Statistics  `json:"Statistics"`
}

// HighRiskRelease is one entry in GlobalInsights.HighRiskReleases: a release
// whose exploitation rate exceeds 50% (spec.md §4.8).
type HighRiskRelease struct {
	OSVersion        string  `json:"os_version"`
	ProductVersion   string  `json:"product_version"`
	ExploitationRate float64 `json:"exploitation_rate"`
}

// GlobalInsights is v2's feed-level rollup (spec.md §4.8).
type GlobalInsights struct {
	MostAffectedComponents []sofa.ComponentCategory `json:"most_affected_components"`
	HighRiskReleases       []HighRiskRelease         `json:"high_risk_releases"`
}

// DocumentV2 is the v2 FeedDocument (spec.md §3/§6): v1's shape preserved,
// plus richer CVE objects, per-release/per-OSVersion/feed-level rollups, a
// schema version, and a generation timestamp.
type DocumentV2 struct {
	SchemaVersion string             `json:"schema_version"`
	GeneratedAt   string             `json:"generated_at"`
	UpdateHash    string             `json:"UpdateHash"`
	OSVersions    []OSVersionBlockV2 `json:"OSVersions"`

	XProtectPayloads        *XProtectBlock    `json:"XProtectPayloads,omitempty"`
	XProtectPlistConfigData *XProtectBlock    `json:"XProtectPlistConfigData,omitempty"`
	Models                  map[string]string `json:"Models,omitempty"`
	InstallationApps        []string          `json:"InstallationApps,omitempty"`

	GlobalInsights GlobalInsights `json:"GlobalInsights"`
}

// buildCVEObject converts one CVE's detail into its v2 object shape.
func buildCVEObject(id string, d sofa.CVEDetail) CVEObject {
	cat := d.Component
	if cat == "" {
		cat = component.Normalize(d.ComponentRaw)
	}
	return CVEObject{
		ID:                id,
		IsExploited:       d.Exploitation.IsExploited,
		Component:         cat,
		ComponentRaw:      d.ComponentRaw,
		Impact:            d.Impact,
		Description:       d.Description,
		Platforms:         d.Exploitation.AffectedPlatforms,
		Confidence:        d.Exploitation.Confidence,
		Sources:           d.Exploitation.Sources,
		TargetedAttack:    d.Exploitation.IsTargetedAttack,
		PhysicalAttack:    d.Exploitation.IsPhysicalAttack,
		TargetedVersions:  d.Exploitation.TargetedVersions,
		ExploitationNotes: d.Exploitation.Notes,
	}
}

// buildReleaseV2 converts one sofa.ReleaseRecord into its v2 JSON shape.
func buildReleaseV2(r *sofa.ReleaseRecord) ReleaseV2 {
	v1 := buildRelease(r)

	cves := make(map[string]CVEObject, len(r.CVEs))
	breakdown := make(ComponentBreakdown)
	exploited := 0
	for _, id := range r.CVEs {
		d := r.CVEDetails[id]
		obj := buildCVEObject(id, d)
		cves[id] = obj
		breakdown[obj.Component]++
		if obj.IsExploited {
			exploited++
		}
	}

	var warnings []ExploitationWarning
	for _, w := range r.CrossPlatformWarnings {
		warnings = append(warnings, ExploitationWarning{CVE: w.CVEID, Note: w.Notes})
	}

	return ReleaseV2{
		Release:               v1,
		CVEs:                  cves,
		ExploitationWarnings:  warnings,
		CVEMetrics:            CVEMetrics{Total: len(r.CVEs), ActivelyExploited: exploited},
		ComponentBreakdown:    breakdown,
	}
}

// GroupByOSVersionV2 is GroupByOSVersion's v2 counterpart: same grouping and
// ordering, with Statistics computed per OSVersion block.
func GroupByOSVersionV2(platform sofa.Platform, recs []*sofa.ReleaseRecord) []OSVersionBlockV2 {
	v1Blocks := GroupByOSVersion(platform, recs)

	groups := make(map[string][]*sofa.ReleaseRecord)
	for _, r := range recs {
		label := release.OSVersionLabel(string(platform), r.Version)
		groups[label] = append(groups[label], r)
	}

	blocks := make([]OSVersionBlockV2, 0, len(v1Blocks))
	for _, b := range v1Blocks {
		g := groups[b.OSVersion]
		// Same newest-first order GroupByOSVersion gives each v1 block.
		sort.SliceStable(g, func(i, j int) bool {
			return release.CompareVersions(g[i].Version, g[j].Version) > 0
		})
		releases := make([]ReleaseV2, len(g))
		for i, r := range g {
			releases[i] = buildReleaseV2(r)
		}
		blocks = append(blocks, OSVersionBlockV2{
			OSVersion:        b.OSVersion,
			Latest:           releases[0],
			SecurityReleases: releases,
			SupportedModels:  b.SupportedModels,
			Statistics:       computeStatistics(releases),
		})
	}
	return blocks
}

// computeStatistics rolls up per-release CVE/component data into a v2
// Statistics block (spec.md §4.8).
func computeStatistics(releases []ReleaseV2) Statistics {
	s := Statistics{ComponentDistribution: make(ComponentBreakdown)}
	s.TotalReleases = len(releases)
	for _, r := range releases {
		s.TotalCVEs += r.CVEMetrics.Total
		s.TotalKEVs += r.CVEMetrics.ActivelyExploited
		for cat, n := range r.ComponentBreakdown {
			s.ComponentDistribution[cat] += n
		}
	}
	if s.TotalCVEs > 0 {
		s.ExploitationRate = float64(s.TotalKEVs) / float64(s.TotalCVEs) * 100
	}
	s.ComponentDistribution = top10(s.ComponentDistribution)
	return s
}

// top10 trims a component distribution to its ten largest entries (spec.md
// §4.8: "component_distribution top-10").
func top10(m ComponentBreakdown) ComponentBreakdown {
	if len(m) <= 10 {
		return m
	}
	type kv struct {
		k sofa.ComponentCategory
		v int
	}
	pairs := make([]kv, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v > pairs[j].v })
	out := make(ComponentBreakdown, 10)
	for _, p := range pairs[:10] {
		out[p.k] = p.v
	}
	return out
}

// BuildGlobalInsights computes v2's feed-level rollup (spec.md §4.8):
// the feed's most-affected components overall, and up to its ten highest
// exploitation-rate releases (rate > 50%).
func BuildGlobalInsights(blocks []OSVersionBlockV2) GlobalInsights {
	totals := make(ComponentBreakdown)
	var highRisk []HighRiskRelease
	for _, b := range blocks {
		for cat, n := range b.Statistics.ComponentDistribution {
			totals[cat] += n
		}
		for _, r := range b.SecurityReleases {
			rate := 0.0
			if r.CVEMetrics.Total > 0 {
				rate = float64(r.CVEMetrics.ActivelyExploited) / float64(r.CVEMetrics.Total) * 100
			}
			if rate > 50 {
				highRisk = append(highRisk, HighRiskRelease{
					OSVersion:        b.OSVersion,
					ProductVersion:   r.ProductVersion,
					ExploitationRate: rate,
				})
			}
		}
	}

	type kv struct {
		k sofa.ComponentCategory
		v int
	}
	pairs := make([]kv, 0, len(totals))
	for k, v := range totals {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v > pairs[j].v })
	var most []sofa.ComponentCategory
	for i, p := range pairs {
		if i >= 10 {
			break
		}
		most = append(most, p.k)
	}

	sort.Slice(highRisk, func(i, j int) bool { return highRisk[i].ExploitationRate > highRisk[j].ExploitationRate })
	if len(highRisk) > 10 {
		highRisk = highRisk[:10]
	}

	return GlobalInsights{MostAffectedComponents: most, HighRiskReleases: highRisk}
}
