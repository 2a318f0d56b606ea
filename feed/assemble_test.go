package feed

import (
	"testing"
	"time"

	"github.com/sofa-project/sofa"
)

func newRecord(version string, daysAgo int) *sofa.ReleaseRecord {
	return &sofa.ReleaseRecord{
		Platform:    sofa.PlatformMacOS,
		Version:     version,
		Build:       "24A" + version,
		AllBuilds:   []string{"24A" + version},
		ReleaseDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
		CVEDetails:  map[string]sofa.CVEDetail{},
	}
}

func TestProperty1UpdateHashStableUnderRecompute(t *testing.T) {
	recs := []*sofa.ReleaseRecord{newRecord("15.3", 0), newRecord("15.2", 30)}
	doc, err := Assemble(sofa.PlatformMacOS, recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	recomputed, err := ComputeUpdateHash(doc.Hashable())
	if err != nil {
		t.Fatal(err)
	}
	if recomputed != doc.UpdateHash {
		t.Errorf("recomputed hash %q != stored %q", recomputed, doc.UpdateHash)
	}
}

func TestProperty6LatestIsFirstAndNewestFirst(t *testing.T) {
	recs := []*sofa.ReleaseRecord{newRecord("15.1", 60), newRecord("15.3", 0), newRecord("15.2", 30)}
	doc, err := Assemble(sofa.PlatformMacOS, recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.OSVersions) != 1 {
		t.Fatalf("expected one OSVersion block, got %d", len(doc.OSVersions))
	}
	block := doc.OSVersions[0]
	if block.Latest.ProductVersion != block.SecurityReleases[0].ProductVersion {
		t.Fatal("Latest must equal SecurityReleases[0]")
	}
	if block.SecurityReleases[0].ProductVersion != "15.3" {
		t.Errorf("newest-first ordering broken: got %q first", block.SecurityReleases[0].ProductVersion)
	}
	last := len(block.SecurityReleases) - 1
	if block.SecurityReleases[last].DaysSincePreviousRelease != 0 {
		t.Errorf("oldest release should have DaysSincePreviousRelease=0, got %d", block.SecurityReleases[last].DaysSincePreviousRelease)
	}
}

func TestProperty8IdempotentEmit(t *testing.T) {
	recs := []*sofa.ReleaseRecord{newRecord("15.3", 0)}
	doc1, err := Assemble(sofa.PlatformMacOS, recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	doc2, err := Assemble(sofa.PlatformMacOS, recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc1.UpdateHash != doc2.UpdateHash {
		t.Error("two assemblies of identical input must hash identically")
	}
}

func TestRetentionEmptyEmitsEmptyOSVersions(t *testing.T) {
	doc, err := Assemble(sofa.PlatformMacOS, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc.OSVersions == nil {
		t.Fatal("OSVersions must be an empty slice, not nil, so it serializes as []")
	}
	if len(doc.OSVersions) != 0 {
		t.Errorf("expected zero OSVersions, got %d", len(doc.OSVersions))
	}
}
