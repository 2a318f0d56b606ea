package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/cache"
	"github.com/sofa-project/sofa/fetch"
)

func TestShardURLsDistributesEvenly(t *testing.T) {
	urls := []string{"a", "b", "c", "d", "e"}
	shards := shardURLs(urls, 2)
	if len(shards) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(shards))
	}
	total := 0
	for _, s := range shards {
		total += len(s)
	}
	if total != len(urls) {
		t.Errorf("expected %d total urls across shards, got %d", len(urls), total)
	}
}

func TestShardURLsFewerURLsThanWorkers(t *testing.T) {
	shards := shardURLs([]string{"a"}, 8)
	if len(shards) != 1 {
		t.Fatalf("expected 1 shard when urls < workers, got %d", len(shards))
	}
}

func TestDefaultConfigHasSaneWorkerAndRateLimitDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DetailFetch.Workers != 4 {
		t.Errorf("expected 4 default workers, got %d", cfg.DetailFetch.Workers)
	}
	if cfg.DetailFetch.RateLimitMS != 1500 {
		t.Errorf("expected 1500ms default rate limit, got %d", cfg.DetailFetch.RateLimitMS)
	}
}

func TestWithOptionsOverrideDefaults(t *testing.T) {
	cfg := DefaultConfig(WithCacheDir("/tmp/x"), WithDisableKEV(true))
	if cfg.CacheDir != "/tmp/x" {
		t.Errorf("WithCacheDir not applied: %q", cfg.CacheDir)
	}
	if !cfg.DisableKEV {
		t.Error("WithDisableKEV not applied")
	}
}

// TestProcessAndEmitStagesEndToEnd seeds the cache with a parsed index page
// and a parsed detail page directly (bypassing the Fetch stage's network
// calls), then drives Process and Emit to confirm a feed.json file is
// written with a well-formed v2 document for the one platform that had
// data.
func TestProcessAndEmitStagesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(WithCacheDir(filepath.Join(dir, "cache")), WithOutputDir(filepath.Join(dir, "out")))
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const detailURL = "https://support.apple.com/en-us/100100"
	indexPages := []fetch.IndexPage{
		{
			SourceURL: "https://support.apple.com/en-us/HT201222",
			Rows: []fetch.IndexRow{
				{Name: "macOS Sequoia 15.3", Date: "January 6, 2025", DetailURL: detailURL},
			},
		},
	}
	detail := fetch.DetailPage{
		URL:         detailURL,
		Title:       "macOS Sequoia 15.3",
		Version:     "15.3",
		Build:       "24D60",
		ReleaseDate: "Released January 6, 2025",
		CVEs: []fetch.DetailCVE{
			{CVEID: "CVE-2025-0001", Component: "Kernel", Impact: "An app may be able to execute arbitrary code with kernel privileges"},
		},
	}
	store, err := cache.New(cfg.CacheDir, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	if err := store.PutParsed(detailURL, detail); err != nil {
		t.Fatalf("seed detail page: %v", err)
	}

	ctx := context.Background()
	fetched := fetchedDataFor(indexPages)
	releases := o.runProcessStage(ctx, fetched)

	recs := releases[sofa.PlatformMacOS]
	if len(recs) != 1 {
		t.Fatalf("expected 1 macOS release, got %d", len(recs))
	}
	if recs[0].Version != "15.3" || recs[0].Build != "24D60" {
		t.Errorf("unexpected release: %+v", recs[0])
	}

	manifest, err := o.runEmitStage(ctx, releases, fetched)
	if err != nil {
		t.Fatalf("runEmitStage: %v", err)
	}
	if len(manifest.Files) == 0 {
		t.Fatal("expected at least one emitted file")
	}

	feedPath := filepath.Join(cfg.OutputDir, sofa.PlatformMacOS.Key(), "feed.json")
	if _, err := os.Stat(feedPath); err != nil {
		t.Fatalf("expected feed.json at %s: %v", feedPath, err)
	}
}

func fetchedDataFor(pages []fetch.IndexPage) fetchedData {
	return fetchedData{indexPages: pages}
}
