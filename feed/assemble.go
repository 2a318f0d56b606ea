package feed

import (
	"fmt"

	"github.com/sofa-project/sofa"
)

// MacOSAnnex carries the macOS-only annex data spec.md §3 attaches to the
// macOS feed: current XProtect versions, the model-identifier lookup table,
// and the list of installer application names GDMF/IPSW discovery surfaces.
// Model identifiers and IPSW/UMA data are external collaborators (spec.md
// §1): SOFA consumes them as read-only inputs here, never parses them.
type MacOSAnnex struct {
	XProtectPayloads        *XProtectBlock
	XProtectPlistConfigData *XProtectBlock
	Models                  map[string]string
	InstallationApps        []string
}

// Assemble builds the v1 FeedDocument for one platform from its retained,
// enriched release list (spec.md §4.8).
func Assemble(platform sofa.Platform, recs []*sofa.ReleaseRecord, annex *MacOSAnnex) (Document, error) {
	doc := Document{OSVersions: GroupByOSVersion(platform, recs)}
	if platform == sofa.PlatformMacOS && annex != nil {
		doc.XProtectPayloads = annex.XProtectPayloads
		doc.XProtectPlistConfigData = annex.XProtectPlistConfigData
		doc.Models = annex.Models
		doc.InstallationApps = annex.InstallationApps
	}
	hash, err := ComputeUpdateHash(doc.Hashable())
	if err != nil {
		return Document{}, fmt.Errorf("feed: compute update hash for %s: %w", platform, err)
	}
	doc.UpdateHash = hash
	return doc, nil
}

// AssembleV2 builds the v2 FeedDocument for one platform (spec.md §4.8).
// generatedAt is injected by the caller (the orchestrator's clock) rather
// than read from time.Now here, keeping this package free of wall-clock
// reads so it stays trivially testable for byte-identical output (testable
// property 7/8).
func AssembleV2(platform sofa.Platform, recs []*sofa.ReleaseRecord, annex *MacOSAnnex, generatedAt string) (DocumentV2, error) {
	blocks := GroupByOSVersionV2(platform, recs)
	doc := DocumentV2{
		SchemaVersion:  "2.0",
		GeneratedAt:    generatedAt,
		OSVersions:     blocks,
		GlobalInsights: BuildGlobalInsights(blocks),
	}
	if platform == sofa.PlatformMacOS && annex != nil {
		doc.XProtectPayloads = annex.XProtectPayloads
		doc.XProtectPlistConfigData = annex.XProtectPlistConfigData
		doc.Models = annex.Models
		doc.InstallationApps = annex.InstallationApps
	}
	hash, err := ComputeUpdateHash(doc.Hashable())
	if err != nil {
		return DocumentV2{}, fmt.Errorf("feed: compute v2 update hash for %s: %w", platform, err)
	}
	doc.UpdateHash = hash
	return doc, nil
}
