// Command sofa is SOFA's pipeline orchestrator CLI (spec.md §6 "CLI
// surface"): it parses the global flags and environment variables spec.md
// §6 documents, builds an orchestrator.Config, and dispatches to one of the
// documented subcommands.
//
// Grounded on _examples/quay-claircore/cmd/cctool/main.go: a flag.FlagSet
// with a custom Usage, signal-aware context cancellation, and a subcmd
// function type dispatched by name, with the same 0/1/2 exit-code
// discipline spec.md §6 calls for (0 success, 1 fatal configuration, 2 any
// stage reported failure).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type subcmd func(ctx context.Context, g *globalFlags, args []string) error

var subcommands = map[string]subcmd{
	"gather":   cmdGather,
	"fetch":    cmdFetch,
	"build":    cmdBuild,
	"bulletin": cmdBulletin,
	"rss":      cmdRSS,
	"cve":      cmdCVE,
	"all":      cmdAll,
}

// globalFlags is the fixed struct Design Notes §9 calls for in place of a
// dynamic kwargs object: every flag spec.md §6 documents has a named field,
// constructed once by main before any subcommand runs.
type globalFlags struct {
	SkipGather         bool
	SkipFetch          bool
	DetectChanges      bool
	DetectCacheChanges bool
	FullCVE            bool
	UseLegacyV1        bool

	CacheDir  string
	OutputDir string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var g globalFlags
	fs := flag.NewFlagSet("sofa", flag.ContinueOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: sofa [flags] <subcommand> [args]\n\n")
		fmt.Fprintf(out, "Subcommands:\n")
		fmt.Fprintf(out, "  gather    fetch the security index, detail pages, and GDMF/KEV/XProtect/beta sources into the cache\n")
		fmt.Fprintf(out, "  fetch     alias for gather\n")
		fmt.Fprintf(out, "  build     rebuild feeds from the existing cache, without fetching\n")
		fmt.Fprintf(out, "  bulletin  rebuild feeds from the existing cache and print a per-platform summary\n")
		fmt.Fprintf(out, "  rss       rebuild feeds from the existing cache and list the RSS files written\n")
		fmt.Fprintf(out, "  cve       run a full pass with CVE re-enrichment forced on\n")
		fmt.Fprintf(out, "  all       gather, build, and emit in one run (the default pipeline)\n\n")
		fmt.Fprintf(out, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.BoolVar(&g.SkipGather, "skip-gather", false, "skip the index/detail-page gather step")
	fs.BoolVar(&g.SkipFetch, "skip-fetch", false, "read only from the existing cache, fetch nothing")
	fs.BoolVar(&g.DetectChanges, "detect-changes", false, "force content verification even for unchanged ETags")
	fs.BoolVar(&g.DetectCacheChanges, "detect-cache-changes", false, "force content verification of cached detail pages")
	fs.BoolVar(&g.FullCVE, "full-cve", false, "force a refresh of the CISA KEV catalog instead of trusting the cache")
	fs.BoolVar(&g.UseLegacyV1, "use-legacy-v1", false, "emit only the v1 feed schema, skipping v2 and RSS")
	fs.StringVar(&g.CacheDir, "cache-dir", envOr("SOFA_CACHE_DIR", "data/cache"), "cache root (env SOFA_CACHE_DIR)")
	fs.StringVar(&g.OutputDir, "output-dir", "data", "feed/manifest output root")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	name := fs.Arg(0)
	cmd, ok := subcommands[name]
	if !ok {
		fs.Usage()
		if name != "" {
			fmt.Fprintf(os.Stderr, "\nunknown subcommand %q\n", name)
		}
		return 1
	}

	if err := cmd(ctx, &g, fs.Args()[1:]); err != nil {
		slog.Error("sofa: run failed", "subcommand", name, "reason", err)
		fmt.Fprintf(os.Stderr, "sofa: %s: %v\n", name, err)
		if errIsFatalConfig(err) {
			return 1
		}
		return 2
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// errIsFatalConfig reports whether err represents spec.md §7's ConfigError
// class (fatal at startup, exit code 1) rather than a stage failure (exit
// code 2). Only errors wrapped by fatalConfig (orchestrator.New failures in
// newOrchestrator) count as ConfigError; every other error a subcommand
// returns, including a stage error passed through from Run or Gather, maps
// to exit code 2.
func errIsFatalConfig(err error) bool {
	_, ok := err.(*configError)
	return ok
}

type configError struct{ error }

func fatalConfig(err error) error { return &configError{err} }
