// Package orchestrator implements SOFA's Pipeline Orchestrator (spec.md
// §4.9): the three-stage Fetch → Process → Emit controller, with per-stage
// success/fail accounting and idempotent reruns.
//
// Grounded directly on _examples/quay-claircore/libvuln/updates/manager.go's
// Manager.Run/driveUpdater (bounded semaphore.NewWeighted fan-out, per-item
// status recording, error aggregation into one returned error) and
// _examples/quay-claircore/cmd/cctool/main.go (signal-aware context,
// subcommand dispatch, exit-code discipline).
package orchestrator

import (
	"regexp"
	"time"

	"github.com/sofa-project/sofa/internal/retention"
)

// Config is the typed, explicitly enumerated configuration record Design
// Notes §9 calls for in place of a dynamic kwargs object ("Dynamic
// config/kwargs objects... replace with a typed, explicitly enumerated
// configuration record per component, constructed once at orchestrator
// startup").
type Config struct {
	CacheDir  string
	OutputDir string

	IndexURLs []string

	DetailFetch DetailFetchConfig
	GDMF        GDMFConfig
	Beta        BetaConfig

	RetentionPolicies map[string]retention.Policy
	Pins              map[string][]retention.Pin

	DisableKEV      bool
	SkipOldReleases bool

	// Fetch toggles (spec.md §6 CLI surface): a fixed struct, never a map.
	SkipGather         bool
	SkipFetch          bool
	DetectChanges      bool
	DetectCacheChanges bool
	FullCVE            bool
	UseLegacyV1        bool
}

// DetailFetchConfig configures DetailPageFetcher (spec.md §4.2).
type DetailFetchConfig struct {
	Workers        int
	RateLimitMS    int
	IncludePattern *regexp.Regexp
	ExcludePattern *regexp.Regexp
	MaxPages       int
}

// GDMFConfig configures fetch.GDMFClient's TLS trust policy (spec.md §6
// Trust).
type GDMFConfig struct {
	RootPEMPath string
	Insecure    bool
}

// BetaConfig configures fetch.BetaReleasesScraper (spec.md §4.2).
type BetaConfig struct {
	ArchivePath string
	WindowDays  int
}

// Option is a functional option over Config, matching
// _examples/quay-claircore/libvuln/options.go's Option-slice idiom (Design
// Notes §9: a typed config record "constructed once at startup by cmd/sofa's
// flag-parsing main, never a map/kwargs bag").
type Option func(*Config)

// DefaultIndexURLs are the Apple security-release index pages
// SecurityIndexFetcher polls when cmd/sofa is not given an explicit list
// (spec.md §4.2: "a configurable set of Apple security-release index
// URLs"). HT201222 is Apple's canonical "about the security content of"
// index; 100100 is the same index under its numeric article path.
var DefaultIndexURLs = []string{
	"https://support.apple.com/en-us/HT201222",
	"https://support.apple.com/en-us/100100",
}

// DefaultConfig returns a Config with spec.md's documented defaults:
// 4 detail-page workers, 1.5s per-origin rate limit, a 90-day beta window,
// and per-platform retention defaults from package retention. The 30s
// per-request HTTP timeout is set in package fetch, which does not retry
// failed requests.
func DefaultConfig(opts ...Option) Config {
	c := Config{
		CacheDir:  "data/cache",
		OutputDir: "data",
		IndexURLs: append([]string(nil), DefaultIndexURLs...),
		DetailFetch: DetailFetchConfig{
			Workers:     4,
			RateLimitMS: 1500,
		},
		Beta: BetaConfig{
			ArchivePath: "data/resources/apple_beta_os_history.json",
			WindowDays:  90,
		},
		RetentionPolicies: make(map[string]retention.Policy),
		Pins:              make(map[string][]retention.Pin),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithCacheDir overrides the cache root (spec.md §6: SOFA_CACHE_DIR).
func WithCacheDir(dir string) Option { return func(c *Config) { c.CacheDir = dir } }

// WithOutputDir overrides the feed/manifest output root.
func WithOutputDir(dir string) Option { return func(c *Config) { c.OutputDir = dir } }

// WithIndexURLs sets the configured security-release index URLs
// SecurityIndexFetcher polls.
func WithIndexURLs(urls []string) Option { return func(c *Config) { c.IndexURLs = urls } }

// WithDisableKEV implements spec.md §6's SOFA_DISABLE_KEV toggle.
func WithDisableKEV(disabled bool) Option { return func(c *Config) { c.DisableKEV = disabled } }

// WithSkipOldReleases implements spec.md §6's SOFA_SKIP_OLD_RELEASES
// toggle: drop releases older than skipOldReleasesCutoff before retention
// even runs, so whitelist/pin policies never have to consider them.
func WithSkipOldReleases(skip bool) Option { return func(c *Config) { c.SkipOldReleases = skip } }

// skipOldReleasesCutoff is how far back SOFA_SKIP_OLD_RELEASES looks before
// dropping a release outright; chosen generously relative to every
// platform's retention window (spec.md §4.7's last_n_major=2 rarely spans
// more than 18 months of point releases) so it only prunes releases no
// policy would ever have retained anyway.
const skipOldReleasesCutoff = 3 * 365 * 24 * time.Hour

// StageTimeout is a five-minute per-source budget for the Fetch stage. No
// code applies it: each source runs until it returns, bounded only by
// fetch's own per-request timeout.
const StageTimeout = 5 * time.Minute
