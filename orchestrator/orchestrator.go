package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sofa-project/sofa"
	"github.com/sofa-project/sofa/cache"
	"github.com/sofa-project/sofa/feed"
	"github.com/sofa-project/sofa/fetch"
)

// Orchestrator drives the Fetch → Process → Emit pipeline (spec.md §4.9)
// over a single Config, grounded on
// _examples/quay-claircore/libvuln/updates/manager.go's Manager: a long-
// lived struct holding the HTTP client(s) and store(s) every stage shares,
// with Run doing the per-invocation work.
type Orchestrator struct {
	cfg Config

	store       *cache.Store
	httpClient  *http.Client
	gdmfClient  *http.Client
	index       *fetch.SecurityIndexFetcher
	detailFetch *fetch.DetailPageFetcher
	gdmfFetch   *fetch.GDMFClient
	kevFetch    *fetch.KEVClient
	xprotect    *fetch.XProtectClient
	beta        *fetch.BetaReleasesScraper

	metrics *Metrics
	tracer  *Tracer
}

// New builds an Orchestrator from cfg: the cache store and every source
// fetcher are constructed once here and reused across runs, matching
// Manager's long-lived-struct shape.
func New(cfg Config) (*Orchestrator, error) {
	httpClient := fetch.NewClient()
	store, err := cache.New(cfg.CacheDir, httpClient)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build cache store: %w", err)
	}

	gdmfClient, err := fetch.NewGDMFClient(cfg.GDMF.RootPEMPath, cfg.GDMF.Insecure)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build GDMF client: %w", err)
	}
	if cfg.GDMF.RootPEMPath == "" && !cfg.GDMF.Insecure {
		slog.Warn("GDMF root certificate not configured, falling back to system trust store")
	}
	gdmfStore, err := cache.New(cfg.CacheDir, gdmfClient)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build GDMF cache store: %w", err)
	}

	limiter := fetch.NewOriginLimiter(cfg.DetailFetch.RateLimitMS)

	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		httpClient: httpClient,
		gdmfClient: gdmfClient,
		index: &fetch.SecurityIndexFetcher{
			Store:         store,
			URLs:          cfg.IndexURLs,
			VerifyContent: cfg.DetectChanges,
		},
		detailFetch: &fetch.DetailPageFetcher{
			Store:          store,
			Limiter:        limiter,
			IncludePattern: cfg.DetailFetch.IncludePattern,
			ExcludePattern: cfg.DetailFetch.ExcludePattern,
			MaxPages:       cfg.DetailFetch.MaxPages,
			VerifyContent:  cfg.DetectCacheChanges,
		},
		gdmfFetch: &fetch.GDMFClient{Store: gdmfStore},
		kevFetch:  &fetch.KEVClient{Store: store},
		xprotect:  &fetch.XProtectClient{Store: store},
		beta:      &fetch.BetaReleasesScraper{Store: store, ArchivePath: cfg.Beta.ArchivePath, WindowDays: cfg.Beta.WindowDays},
		metrics:   NewMetrics(),
		tracer:    NewTracer(),
	}
	return o, nil
}

// Result is one Run's outcome: a run identifier, per-platform release
// counts, and whatever non-fatal warnings each stage logged, returned
// alongside the first fatal error (if any) so cmd/sofa can report both
// per spec.md §6's exit-code discipline (0 success, 1 fatal configuration
// error, 2 stage failure).
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Releases map[sofa.Platform][]*sofa.ReleaseRecord
	Manifest feed.Manifest

	Warnings []error
}

// Run executes one full Fetch → Process → Emit pass (spec.md §4.9). Each
// stage's fatal/non-fatal distinction follows spec.md §4.9: FetchStageFailed
// only when no index page was fetched or cached (package fetch already
// enforces this); everything else downgrades to a logged warning so a
// single flaky source never aborts the whole run.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	ctx = withRunID(ctx, runID)
	log := slog.With("run_id", runID)
	start := time.Now()

	res := &Result{RunID: runID, StartedAt: start}
	o.metrics.runsTotal.Inc()

	span, ctx := o.tracer.StartStage(ctx, "fetch")
	fetched, warnings, err := o.runFetchStage(ctx)
	span.End()
	res.Warnings = append(res.Warnings, warnings...)
	o.metrics.ObserveStage("fetch", time.Since(start), err)
	if err != nil {
		log.Error("fetch stage failed", "reason", err)
		return res, fmt.Errorf("orchestrator: fetch stage: %w", err)
	}

	processStart := time.Now()
	span, ctx = o.tracer.StartStage(ctx, "process")
	releases := o.runProcessStage(ctx, fetched)
	span.End()
	o.metrics.ObserveStage("process", time.Since(processStart), nil)
	res.Releases = releases

	emitStart := time.Now()
	span, ctx = o.tracer.StartStage(ctx, "emit")
	manifest, err := o.runEmitStage(ctx, releases, fetched)
	span.End()
	o.metrics.ObserveStage("emit", time.Since(emitStart), err)
	if err != nil {
		log.Error("emit stage failed", "reason", err)
		return res, fmt.Errorf("orchestrator: emit stage: %w", err)
	}
	res.Manifest = manifest

	res.Duration = time.Since(start)
	log.Info("run complete", "duration", res.Duration, "warnings", len(res.Warnings))
	return res, nil
}

// Gather runs the Fetch stage alone and returns without processing or
// emitting anything: cmd/sofa's "gather"/"fetch" subcommands use this to
// populate the cache without rebuilding feeds (spec.md §6). Non-fatal
// per-source warnings are returned alongside a nil error; only a missing
// security index (spec.md §4.9 FetchStageFailed) is fatal.
func (o *Orchestrator) Gather(ctx context.Context) ([]error, error) {
	runID := uuid.NewString()
	ctx = withRunID(ctx, runID)
	log := slog.With("run_id", runID, "stage", "gather")
	start := time.Now()

	span, ctx := o.tracer.StartStage(ctx, "fetch")
	_, warnings, err := o.runFetchStage(ctx)
	span.End()
	o.metrics.ObserveStage("fetch", time.Since(start), err)
	if err != nil {
		log.Error("gather failed", "reason", err)
		return warnings, fmt.Errorf("orchestrator: gather: %w", err)
	}
	log.Info("gather complete", "duration", time.Since(start), "warnings", len(warnings))
	return warnings, nil
}

type runIDKey struct{}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// components gathered by the Fetch stage for the Process stage to consume;
// kept as a struct rather than a tuple of return values so stages.go's
// signatures stay short.
type fetchedData struct {
	indexPages []fetch.IndexPage
	gdmf       fetch.GDMFResponse
	kev        map[string]sofa.KEVEntry
	xprotect   fetch.XProtectVersions
	beta       *fetch.BetaArchive
}
