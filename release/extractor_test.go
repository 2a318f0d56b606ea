package release

import (
	"context"
	"testing"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/cache"
	"github.com/sofa-project/sofa/fetch"
)

func TestExtractColdFetchSingleIndex(t *testing.T) {
	// S1 from spec.md §8: three rows (macOS/iOS/Safari), no detail pages
	// cached yet, each row carries its own version in the title.
	store, err := cache.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	e := &Extractor{Store: store}

	pages := []fetch.IndexPage{{
		SourceURL: "https://support.apple.com/en-ca/100100",
		Rows: []fetch.IndexRow{
			{Name: "macOS Sequoia 15.3", Date: "January 27, 2025", OSType: "macos"},
			{Name: "iOS 18.2", Date: "December 11, 2024", OSType: "ios"},
			{Name: "Safari 18.2", Date: "December 11, 2024", OSType: "safari"},
		},
	}}

	out := e.Extract(context.Background(), pages)
	if len(out[sofa.PlatformMacOS]) != 1 || out[sofa.PlatformMacOS][0].Version != "15.3" {
		t.Fatalf("macOS records = %+v", out[sofa.PlatformMacOS])
	}
	if len(out[sofa.PlatformIOS]) != 1 || out[sofa.PlatformIOS][0].Version != "18.2" {
		t.Fatalf("iOS records = %+v", out[sofa.PlatformIOS])
	}
	if len(out[sofa.PlatformSafari]) != 1 {
		t.Fatalf("Safari records = %+v", out[sofa.PlatformSafari])
	}
}

func TestExtractMergesDetailPage(t *testing.T) {
	store, err := cache.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	detailURL := "https://support.apple.com/en-us/HT213983"
	if err := store.PutParsed(fetch.CanonicalDetailURL(detailURL), fetch.DetailPage{
		URL:         detailURL,
		Title:       "macOS Sequoia 15.3",
		ReleaseDate: "January 27, 2025",
		Version:     "15.3",
		Build:       "24D60",
		CVEs: []fetch.DetailCVE{
			{CVEID: "CVE-2024-44308", Component: "WebKit", Impact: "Processing maliciously crafted web content may lead to arbitrary code execution."},
		},
	}); err != nil {
		t.Fatal(err)
	}

	e := &Extractor{Store: store}
	pages := []fetch.IndexPage{{
		Rows: []fetch.IndexRow{{Name: "macOS Sequoia 15.3", Date: "January 27, 2025", OSType: "macos", DetailURL: detailURL}},
	}}
	out := e.Extract(context.Background(), pages)
	recs := out[sofa.PlatformMacOS]
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Build != "24D60" {
		t.Errorf("Build = %q, want 24D60", r.Build)
	}
	if len(r.CVEs) != 1 || r.CVEs[0] != "CVE-2024-44308" {
		t.Errorf("CVEs = %v", r.CVEs)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestExtractVersionFallback(t *testing.T) {
	if v, ok := ExtractVersion("macOS Sequoia 15.3.1"); !ok || v != "15.3.1" {
		t.Errorf("ExtractVersion = (%q, %v)", v, ok)
	}
	if v, ok := ExtractVersion("Some unrelated title 2.0"); !ok || v != "2.0" {
		t.Errorf("ExtractVersion fallback = (%q, %v)", v, ok)
	}
	if _, ok := ExtractVersion("No version here"); ok {
		t.Error("expected no match")
	}
}

func TestCompareVersionsNewestFirst(t *testing.T) {
	if CompareVersions("15.3", "15.3.1") >= 0 {
		t.Error("15.3 should compare less than 15.3.1")
	}
	if CompareVersions("18", "17.7.2") <= 0 {
		t.Error("18 should compare greater than 17.7.2")
	}
}

func TestOSVersionLabel(t *testing.T) {
	if got := OSVersionLabel("macOS", "15.3"); got != "Sequoia 15" {
		t.Errorf("OSVersionLabel = %q", got)
	}
	if got := OSVersionLabel("iOS", "18.2"); got != "18" {
		t.Errorf("OSVersionLabel = %q", got)
	}
}
