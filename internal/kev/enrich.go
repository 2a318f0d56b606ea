package kev

import (
	"github.com/sofa-project/sofa"
)

// EnrichAll analyzes every CVE on every release across all platforms, then
// adds cross-platform warnings (spec.md §4.4): a CVE confirmed exploited
// (via a real, non-cross-platform source) on one platform that reappears on
// another platform with no local Apple signal gets a warning record there,
// never merged into that platform's ActivelyExploitedCVEs.
//
// releases is mutated in place: each ReleaseRecord's CVEDetails[cve].Exploitation
// and CrossPlatformWarnings are populated.
func (d *Detector) EnrichAll(releases map[sofa.Platform][]*sofa.ReleaseRecord) {
	// Pass 1: local analysis per platform, and track which platforms have a
	// real (non-cross-platform) confirmation for each CVE.
	confirmedOn := make(map[string][]sofa.Platform)
	for platform, recs := range releases {
		for _, r := range recs {
			for _, id := range r.CVEs {
				detail := r.CVEDetails[id]
				text := detail.Impact + " " + detail.Description
				info := d.Analyze(id, platform, text)
				detail.Exploitation = info
				r.CVEDetails[id] = detail
				if info.IsExploited {
					confirmedOn[id] = appendPlatform(confirmedOn[id], platform)
				}
			}
		}
	}

	// Pass 2: for a CVE confirmed elsewhere but not locally exploited here,
	// attach a cross-platform warning (never promoted into CVEDetails'
	// Exploitation, so it can never leak into ActivelyExploitedCVEs).
	for platform, recs := range releases {
		for _, r := range recs {
			for _, id := range r.CVEs {
				detail := r.CVEDetails[id]
				if detail.Exploitation.IsExploited {
					continue
				}
				elsewhere := otherPlatforms(confirmedOn[id], platform)
				if len(elsewhere) == 0 {
					continue
				}
				r.CrossPlatformWarnings = append(r.CrossPlatformWarnings, CrossPlatformWarning(id, elsewhere))
			}
		}
	}
}

func appendPlatform(list []sofa.Platform, p sofa.Platform) []sofa.Platform {
	for _, have := range list {
		if have == p {
			return list
		}
	}
	return append(list, p)
}

func otherPlatforms(list []sofa.Platform, exclude sofa.Platform) []sofa.Platform {
	var out []sofa.Platform
	for _, p := range list {
		if p != exclude {
			out = append(out, p)
		}
	}
	return out
}
