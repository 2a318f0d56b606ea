package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/orchestrator"
)

// configFromFlags builds an orchestrator.Config from the global flags and
// the environment variables spec.md §6 documents (SOFA_CACHE_DIR,
// SOFA_SKIP_OLD_RELEASES, SOFA_DISABLE_KEV). CLI/config-file parsing proper
// is named an external collaborator in spec.md §1 scope; this is the
// minimal typed bridge cmd/sofa owns. API_KEY is read by neither this nor
// any package here: spec.md §1 names the separate CVE-enrichment service
// that consumes it as an out-of-scope external collaborator. LOCALE is
// accepted by nothing in this repo: Apple's pages are English-only in
// every index/detail page SOFA reads, so there is no date format or
// canonical host it would ever change (see DESIGN.md).
func configFromFlags(g *globalFlags) orchestrator.Config {
	var opts []orchestrator.Option
	opts = append(opts, orchestrator.WithCacheDir(g.CacheDir))
	opts = append(opts, orchestrator.WithOutputDir(g.OutputDir))
	disableKEV, _ := strconv.ParseBool(os.Getenv("SOFA_DISABLE_KEV"))
	opts = append(opts, orchestrator.WithDisableKEV(disableKEV))
	skipOld, _ := strconv.ParseBool(os.Getenv("SOFA_SKIP_OLD_RELEASES"))
	opts = append(opts, orchestrator.WithSkipOldReleases(skipOld))

	cfg := orchestrator.DefaultConfig(opts...)
	cfg.SkipGather = g.SkipGather
	cfg.SkipFetch = g.SkipFetch
	cfg.DetectChanges = g.DetectChanges
	cfg.DetectCacheChanges = g.DetectCacheChanges
	cfg.FullCVE = g.FullCVE
	cfg.UseLegacyV1 = g.UseLegacyV1
	return cfg
}

func newOrchestrator(g *globalFlags) (*orchestrator.Orchestrator, error) {
	o, err := orchestrator.New(configFromFlags(g))
	if err != nil {
		return nil, fatalConfig(err)
	}
	return o, nil
}

// cmdGather runs the Fetch stage alone: the security index, every detail
// page it links to, and the auxiliary sources (spec.md §6 "gather").
func cmdGather(ctx context.Context, g *globalFlags, _ []string) error {
	o, err := newOrchestrator(g)
	if err != nil {
		return err
	}
	warnings, err := o.Gather(ctx)
	for _, w := range warnings {
		slog.Warn("gather: non-fatal source warning", "reason", w)
	}
	return err
}

// cmdFetch is spec.md §6's second fetch-stage name; SOFA's CLI surface
// documents both "gather" and "fetch" as subcommands and the spec leaves
// their relationship unspecified beyond both belonging to the Fetch stage,
// so "fetch" runs the identical Gather pass.
func cmdFetch(ctx context.Context, g *globalFlags, args []string) error {
	return cmdGather(ctx, g, args)
}

// cmdBuild rebuilds feeds from whatever is already in the cache, performing
// no network I/O (spec.md §6 "build"): it runs the full Fetch → Process →
// Emit pipeline with SkipFetch forced on, so the Fetch stage only reads
// cached parsed derivatives.
func cmdBuild(ctx context.Context, g *globalFlags, _ []string) error {
	g.SkipFetch = true
	o, err := newOrchestrator(g)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(res)
	return nil
}

// cmdAll runs the complete pipeline: gather, build, and emit in one pass
// (spec.md §6 "all"), the default end-to-end run.
func cmdAll(ctx context.Context, g *globalFlags, _ []string) error {
	o, err := newOrchestrator(g)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(res)
	return nil
}

// cmdRSS rebuilds feeds from the cache exactly like "build" and then calls
// out which files are the RSS view, since Emit already writes rss.xml
// alongside each platform's v2 feed (spec.md §4.8).
func cmdRSS(ctx context.Context, g *globalFlags, _ []string) error {
	g.SkipFetch = true
	g.UseLegacyV1 = false
	o, err := newOrchestrator(g)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}
	for _, entry := range res.Manifest.Files {
		if len(entry.Path) > 7 && entry.Path[len(entry.Path)-7:] == "rss.xml" {
			fmt.Printf("wrote %s (%d bytes)\n", entry.Path, entry.SizeBytes)
		}
	}
	return nil
}

// cmdCVE forces a full CVE/KEV re-enrichment pass: every detail page and
// the CISA catalog are re-requested and re-hashed rather than trusted from
// cache (spec.md §6 --full-cve), then the normal pipeline runs to
// completion so the refreshed exploitation data reaches the feeds.
func cmdCVE(ctx context.Context, g *globalFlags, _ []string) error {
	g.FullCVE = true
	g.DetectChanges = true
	g.DetectCacheChanges = true
	o, err := newOrchestrator(g)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(res)
	return nil
}

// cmdBulletin performs its own cache-only run (SkipFetch forced on, so feeds
// are rebuilt and written) and prints a per-platform human-readable summary
// of that run's releases (spec.md §6 "bulletin"): latest version, CVE count,
// and actively-exploited count, in the platforms' declared order.
func cmdBulletin(ctx context.Context, g *globalFlags, _ []string) error {
	g.SkipFetch = true
	o, err := newOrchestrator(g)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx)
	if err != nil {
		return err
	}
	printBulletin(res)
	return nil
}

func printSummary(res *orchestrator.Result) {
	fmt.Printf("run %s complete in %s (%d warnings)\n", res.RunID, res.Duration.Round(100e6), len(res.Warnings))
	for _, platform := range sofa.Platforms() {
		recs := res.Releases[platform]
		fmt.Printf("  %-10s %d releases retained\n", platform, len(recs))
	}
	if len(res.Manifest.EmptyPlatforms) > 0 {
		fmt.Printf("  empty platforms: %v\n", res.Manifest.EmptyPlatforms)
	}
}

func printBulletin(res *orchestrator.Result) {
	fmt.Printf("SOFA bulletin — run %s\n", res.RunID)
	for _, platform := range sofa.Platforms() {
		recs := res.Releases[platform]
		if len(recs) == 0 {
			continue
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].ReleaseDate.After(recs[j].ReleaseDate) })
		latest := recs[0]
		exploited := 0
		for _, id := range latest.CVEs {
			if latest.CVEDetails[id].Exploitation.IsExploited {
				exploited++
			}
		}
		fmt.Printf("  %-10s %-12s build %-10s %d CVEs (%d actively exploited)\n",
			platform, latest.Version, latest.Build, len(latest.CVEs), exploited)
	}
}
