package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/feed"
	"github.com/sofa-project/sofa/fetch"
	"github.com/sofa-project/sofa/internal/component"
	"github.com/sofa-project/sofa/internal/gdmf"
	"github.com/sofa-project/sofa/internal/kev"
	"github.com/sofa-project/sofa/internal/retention"
	"github.com/sofa-project/sofa/internal/spool"
	"github.com/sofa-project/sofa/release"
)

// runFetchStage pulls the security index, every linked detail page, and the
// four auxiliary sources (GDMF, KEV, XProtect, beta releases). Detail pages
// fan out over a semaphore-bounded worker pool sized by
// cfg.DetailFetch.Workers, grounded directly on
// _examples/quay-claircore/libvuln/updates/manager.go's Manager.Run: a
// semaphore.NewWeighted gate, one goroutine per item, a buffered error
// channel, then an unconditional final Acquire of the full weight to wait
// for every in-flight goroutine before moving on.
func (o *Orchestrator) runFetchStage(ctx context.Context) (fetchedData, []error, error) {
	log := slog.With("stage", "fetch")

	var indexPages []fetch.IndexPage
	var err error
	if o.cfg.SkipFetch || o.cfg.SkipGather {
		log.Info("reading index pages from cache only", "skip_fetch", o.cfg.SkipFetch, "skip_gather", o.cfg.SkipGather)
		indexPages, err = o.cachedIndexPages()
	} else {
		indexPages, err = o.index.Fetch(ctx)
	}
	if err != nil {
		return fetchedData{}, nil, err
	}

	var detailURLs []string
	for _, page := range indexPages {
		for _, row := range page.Rows {
			if row.DetailURL != "" {
				detailURLs = append(detailURLs, row.DetailURL)
			}
		}
	}

	workers := o.cfg.DetailFetch.Workers
	if workers <= 0 {
		workers = 4
	}
	var warnings []error
	var out fetchedData
	out.indexPages = indexPages

	if o.cfg.SkipFetch {
		// --skip-fetch: the Process stage reads whatever detail pages are
		// already in the cache, and GDMF and KEV data are read back from the
		// cache here; XProtect and beta data are not loaded. Nothing is
		// fetched over the network this run.
		var resp fetch.GDMFResponse
		if ok, gerr := o.store.GetParsed(fetch.GDMFURL, &resp); gerr == nil && ok {
			out.gdmf = resp
		}
		if !o.cfg.DisableKEV {
			var entries map[string]sofa.KEVEntry
			if ok, kerr := o.store.GetParsed(fetch.CISAKEVURL, &entries); kerr == nil && ok {
				out.kev = entries
			}
		}
		return out, warnings, nil
	}

	if len(detailURLs) > 0 && !o.cfg.SkipGather {
		warnings = append(warnings, o.fetchDetailPagesBounded(ctx, detailURLs, workers)...)
	}

	warnings = append(warnings, o.fetchAuxiliarySources(ctx, &out)...)
	return out, warnings, nil
}

// fetchAuxiliarySources runs GDMF, KEV, XProtect, and the beta scraper
// concurrently: they hit four independent origins and none depends on
// another's result, so there's no reason to serialize them the way the
// detail-page fan-out must serialize against a shared origin limiter.
// Grounded on golang.org/x/sync/errgroup's standard "launch N independent
// tasks, collect the first error" shape; every source's failure here is
// downgraded to a warning (spec.md §4.9: only a missing security index is
// fatal), so errgroup's own fail-fast Wait() isn't used — each goroutine
// reports into its own slot instead.
func (o *Orchestrator) fetchAuxiliarySources(ctx context.Context, out *fetchedData) []error {
	log := slog.With("stage", "fetch")
	var g errgroup.Group
	errs := make([]error, 4)

	g.Go(func() error {
		resp, err := o.gdmfFetch.Fetch(ctx, o.cfg.DetectChanges)
		if err != nil {
			log.Warn("GDMF fetch failed", "reason", err)
			errs[0] = fmt.Errorf("gdmf: %w", err)
			return nil
		}
		out.gdmf = resp
		return nil
	})

	g.Go(func() error {
		if o.cfg.DisableKEV {
			return nil
		}
		entries, err := o.kevFetch.Fetch(ctx, o.cfg.FullCVE)
		if err != nil {
			log.Warn("KEV fetch failed", "reason", err)
			errs[1] = fmt.Errorf("kev: %w", err)
			return nil
		}
		out.kev = entries
		return nil
	})

	g.Go(func() error {
		xp, err := o.xprotect.Fetch(ctx)
		if err != nil {
			log.Warn("XProtect fetch failed", "reason", err)
			errs[2] = fmt.Errorf("xprotect: %w", err)
			return nil
		}
		out.xprotect = xp
		return nil
	})

	g.Go(func() error {
		archive, err := o.beta.Scrape(ctx)
		if err != nil {
			log.Warn("beta release scrape failed", "reason", err)
			errs[3] = fmt.Errorf("beta: %w", err)
			return nil
		}
		out.beta = archive
		return nil
	})

	g.Wait()
	var warnings []error
	for _, e := range errs {
		if e != nil {
			warnings = append(warnings, e)
		}
	}
	return warnings
}

// cachedIndexPages reads every configured index URL's parsed derivative
// straight from the cache, used when --skip-fetch or --skip-gather keeps the
// run from fetching the index (spec.md §6).
func (o *Orchestrator) cachedIndexPages() ([]fetch.IndexPage, error) {
	var pages []fetch.IndexPage
	for _, u := range o.cfg.IndexURLs {
		var page fetch.IndexPage
		if ok, err := o.store.GetParsed(u, &page); err == nil && ok {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("orchestrator: reading index pages from cache only, but no index page is cached")
	}
	return pages, nil
}

// fetchDetailPagesBounded fetches every detail URL through
// DetailPageFetcher.Fetch, which applies the origin rate limiter and
// include/exclude/max-pages policy sequentially within one call. The
// semaphore here
// bounds a second axis spec.md §4.2 calls for: sharding detailURLs across
// `workers` concurrent DetailPageFetcher.Fetch calls, each responsible for a
// disjoint slice, so the origin limiter (shared across all of them) is the
// only serialization point, not the HTTP round trips themselves.
func (o *Orchestrator) fetchDetailPagesBounded(ctx context.Context, urls []string, workers int) []error {
	shards := shardURLs(urls, workers)
	sem := semaphore.NewWeighted(int64(workers))
	errChan := make(chan error, len(shards)+1)

	for i := range shards {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Warn("fetch: semaphore acquire failed, ending detail-page fan-out", "reason", err)
			break
		}
		go func(shard []string) {
			defer sem.Release(1)
			if _, err := o.detailFetch.Fetch(ctx, shard); err != nil {
				errChan <- err
			}
		}(shards[i])
	}

	// Unconditionally wait for all in-flight goroutines to return before
	// this stage proceeds to its auxiliary fetches.
	sem.Acquire(context.Background(), int64(workers))
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errs
}

// shardURLs splits urls into up to n roughly-equal contiguous shards.
func shardURLs(urls []string, n int) [][]string {
	if n <= 0 || n > len(urls) {
		n = len(urls)
	}
	if n == 0 {
		return nil
	}
	shards := make([][]string, 0, n)
	size := (len(urls) + n - 1) / n
	for i := 0; i < len(urls); i += size {
		end := i + size
		if end > len(urls) {
			end = len(urls)
		}
		shards = append(shards, urls[i:end])
	}
	return shards
}

// runProcessStage builds ReleaseRecords from whatever is now in the cache,
// merges GDMF device/build data, runs exploitation detection, and applies
// each platform's retention policy (spec.md §4.3-§4.7). It never performs
// network I/O; everything it needs was already written to the cache by the
// Fetch stage or an earlier run.
func (o *Orchestrator) runProcessStage(ctx context.Context, fetched fetchedData) map[sofa.Platform][]*sofa.ReleaseRecord {
	log := slog.With("stage", "process")

	extractor := release.Extractor{Store: o.store}
	releases := extractor.Extract(ctx, fetched.indexPages)

	merger := &gdmf.Merger{Assets: fetched.gdmf.PublicAssetSets}
	gdmf.MergeAll(releases, merger)

	if !o.cfg.DisableKEV {
		detector := &kev.Detector{KEV: fetched.kev}
		detector.EnrichAll(releases)
	}

	for platform, recs := range releases {
		for _, r := range recs {
			for _, id := range r.CVEs {
				detail := r.CVEDetails[id]
				if detail.Component == "" {
					detail.Component = component.Normalize(detail.ComponentRaw)
					r.CVEDetails[id] = detail
				}
			}
		}

		if o.cfg.SkipOldReleases {
			recs = dropOlderThan(recs, skipOldReleasesCutoff)
			releases[platform] = recs
		}

		policy, ok := o.cfg.RetentionPolicies[string(platform)]
		if !ok {
			policy = retention.DefaultPolicy(platform)
		}
		pins := toPins(o.cfg.Pins[string(platform)])
		filtered := retention.Apply(recs, policy, pins)
		releases[platform] = filtered
		log.Info("processed platform", "platform", platform, "retained", len(filtered), "total", len(recs))
	}

	return releases
}

// dropOlderThan filters out releases older than cutoff, used only when
// SOFA_SKIP_OLD_RELEASES (spec.md §6) is set: a coarse pre-filter ahead of
// retention, not a replacement for it.
func dropOlderThan(recs []*sofa.ReleaseRecord, cutoff time.Duration) []*sofa.ReleaseRecord {
	threshold := time.Now().Add(-cutoff)
	out := make([]*sofa.ReleaseRecord, 0, len(recs))
	for _, r := range recs {
		if r.ReleaseDate.IsZero() || r.ReleaseDate.After(threshold) {
			out = append(out, r)
		}
	}
	return out
}

func toPins(pins []retention.Pin) []retention.Pin {
	if pins == nil {
		return nil
	}
	out := make([]retention.Pin, len(pins))
	copy(out, pins)
	return out
}

// runEmitStage assembles and writes one feed.json per platform: the v1
// document when UseLegacyV1 is set, otherwise the v2 document plus an RSS
// channel (rss.xml) and timestamp.json. It never writes both schemas in one
// run. It returns the run manifest (spec.md §4.8/§6). Every
// ReleaseRecord.Validate failure aborts the whole stage: emitting a feed
// document built on an invalid
// ReleaseRecord would violate spec.md §3's invariants downstream.
func (o *Orchestrator) runEmitStage(ctx context.Context, releases map[sofa.Platform][]*sofa.ReleaseRecord, fetched fetchedData) (feed.Manifest, error) {
	start := time.Now()
	log := slog.With("stage", "emit")

	var validationErrs []string
	for platform, recs := range releases {
		for _, r := range recs {
			if err := r.Validate(); err != nil {
				validationErrs = append(validationErrs, fmt.Sprintf("%s: %v", platform, err))
			}
		}
	}
	if len(validationErrs) > 0 {
		return feed.Manifest{}, errors.New("orchestrator: invalid release records:\n" + strings.Join(validationErrs, "\n"))
	}

	var annex *feed.MacOSAnnex
	if xp := fetched.xprotect; xp.ConfigData.Version != "" || xp.Payloads.Version != "" {
		annex = &feed.MacOSAnnex{
			XProtectPayloads:        &feed.XProtectBlock{Version: xp.Payloads.Version, ReleaseDate: xp.Payloads.ReleaseDate},
			XProtectPlistConfigData: &feed.XProtectBlock{Version: xp.ConfigData.Version, ReleaseDate: xp.ConfigData.ReleaseDate},
		}
	}

	manifest := feed.Manifest{}
	var emptyPlatforms []string
	generatedAt := time.Now().UTC().Format(time.RFC3339)

	for _, platform := range sofa.Platforms() {
		recs := releases[platform]
		if len(recs) == 0 {
			emptyPlatforms = append(emptyPlatforms, string(platform))
		}

		platformDir := filepath.Join(o.cfg.OutputDir, platform.Key())
		if err := os.MkdirAll(platformDir, 0o755); err != nil {
			return feed.Manifest{}, fmt.Errorf("orchestrator: create output dir for %s: %w", platform, err)
		}

		if o.cfg.UseLegacyV1 {
			doc, err := feed.Assemble(platform, recs, annex)
			if err != nil {
				return feed.Manifest{}, err
			}
			if err := writeJSONEntry(&manifest, filepath.Join(platformDir, "feed.json"), doc); err != nil {
				return feed.Manifest{}, err
			}
		} else {
			doc, err := feed.AssembleV2(platform, recs, annex, generatedAt)
			if err != nil {
				return feed.Manifest{}, err
			}
			if err := writeJSONEntry(&manifest, filepath.Join(platformDir, "feed.json"), doc); err != nil {
				return feed.Manifest{}, err
			}

			blocks := feed.GroupByOSVersion(platform, recs)
			rssChannel := feed.BuildRSSChannel(platform, blocks)
			rssFeed := feed.BuildRSSFeed([]feed.RSSChannel{rssChannel})
			rssBytes, err := rssFeed.Marshal()
			if err != nil {
				return feed.Manifest{}, err
			}
			if err := writeRawEntry(&manifest, filepath.Join(platformDir, "rss.xml"), rssBytes); err != nil {
				return feed.Manifest{}, err
			}

			ts := feed.Timestamp{LastCheck: generatedAt, UpdateHash: doc.UpdateHash}
			if err := writeJSONEntry(&manifest, filepath.Join(platformDir, "timestamp.json"), ts); err != nil {
				return feed.Manifest{}, err
			}
		}
	}

	manifest.EmptyPlatforms = emptyPlatforms
	manifest.DurationSeconds = time.Since(start).Seconds()
	log.Info("emit complete", "files", len(manifest.Files), "empty_platforms", len(emptyPlatforms))
	return manifest, nil
}

func writeJSONEntry(manifest *feed.Manifest, path string, value any) error {
	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: encode %s: %w", path, err)
	}
	return writeRawEntry(manifest, path, b)
}

// writeRawEntry writes b to path atomically (temp file in the same
// directory, fsync, rename) so a crash mid-write never leaves a partially
// written feed.json/rss.xml/timestamp.json behind (spec.md §4.9 "Writes are
// atomic (temp + rename)"; spec.md §7 "no output file is ever partially
// written"). Grounded directly on cache.Store's writeAtomic, which already
// uses internal/spool.File the same way.
//
// Changed reports whether path's content actually differs from what was
// there before this write (spec.md SUPPLEMENTED FEATURES: the manifest
// records per-file change detection, carried from
// original_source/.../scripts/generate_manifest.py). A path with no prior
// content counts as changed.
func writeRawEntry(manifest *feed.Manifest, path string, b []byte) error {
	changed := true
	if prev, err := os.ReadFile(path); err == nil {
		changed = feed.HashBytes(prev) != feed.HashBytes(b)
	}

	if err := writeFileAtomic(path, b); err != nil {
		return fmt.Errorf("orchestrator: write %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	manifest.Files = append(manifest.Files, feed.ManifestEntry{
		Path:         path,
		SizeBytes:    info.Size(),
		ContentHash:  feed.HashBytes(b),
		LastModified: info.ModTime().UTC().Format(time.RFC3339),
		Changed:      changed,
	})
	return nil
}

// writeFileAtomic writes data to path via a temp file in path's directory
// followed by rename, matching cache.go's writeAtomic exactly (spool.File's
// Close removes the temp file unless it has already been renamed away).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := spool.NewFile(dir, ".tmp-emit-*")
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			f.Close()
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	name := f.Name()
	if err := f.File.Close(); err != nil {
		return err
	}
	success = true // the file is closed, not removed; rename takes over
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
