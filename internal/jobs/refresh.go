// SPDX-License-Identifier: MIT

// Package jobs runs the catalog refresh pipeline: build every registered
// dataset's record, render and lint its page, write it atomically and record
// the outcome in the store.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/irfnrdh/tensorflow-datasets/internal/builder"
	"github.com/irfnrdh/tensorflow-datasets/internal/cache"
	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
	"github.com/irfnrdh/tensorflow-datasets/internal/download"
	"github.com/irfnrdh/tensorflow-datasets/internal/lint"
	xglog "github.com/irfnrdh/tensorflow-datasets/internal/log"
	"github.com/irfnrdh/tensorflow-datasets/internal/metrics"
	"github.com/irfnrdh/tensorflow-datasets/internal/page"
	"github.com/irfnrdh/tensorflow-datasets/internal/store"
	"github.com/irfnrdh/tensorflow-datasets/internal/telemetry"
)

// ErrRefreshInProgress is returned when a refresh is triggered while another
// one is still running.
var ErrRefreshInProgress = errors.New("jobs: refresh already in progress")

// IndexFile is the name of the catalog index page.
const IndexFile = "index.md"

// RunnerOptions wires the refresh pipeline's collaborators.
type RunnerOptions struct {
	Registry *builder.Registry
	Store    *store.Store
	Cache    cache.Cache
	Linter   *lint.Linter

	// Downloads fetches the sources of split-generating datasets. When nil,
	// builds are catalog-only and declared sources are not fetched.
	Downloads *download.Manager

	// CatalogDir is where rendered pages land.
	CatalogDir string

	// Concurrency bounds parallel dataset builds. Defaults to 4.
	Concurrency int

	// CacheTTL is how long rendered pages stay cached. Defaults to 15m.
	CacheTTL time.Duration
}

// Runner executes catalog refreshes. At most one refresh runs at a time.
type Runner struct {
	registry    *builder.Registry
	store       *store.Store
	cache       cache.Cache
	linter      *lint.Linter
	downloads   *download.Manager
	catalogDir  string
	concurrency int
	cacheTTL    time.Duration

	inFlight atomic.Bool

	mu   sync.RWMutex
	last *Status
}

// NewRunner creates a refresh runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Registry == nil {
		return nil, errors.New("jobs: registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("jobs: store is required")
	}
	if opts.CatalogDir == "" {
		return nil, errors.New("jobs: catalog directory is required")
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNoOp()
	}
	if opts.Linter == nil {
		l, err := lint.New(lint.Options{})
		if err != nil {
			return nil, err
		}
		opts.Linter = l
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 15 * time.Minute
	}
	return &Runner{
		registry:    opts.Registry,
		store:       opts.Store,
		cache:       opts.Cache,
		linter:      opts.Linter,
		downloads:   opts.Downloads,
		catalogDir:  opts.CatalogDir,
		concurrency: opts.Concurrency,
		cacheTTL:    opts.CacheTTL,
	}, nil
}

// Last returns a copy of the most recent refresh status, nil before the
// first refresh.
func (r *Runner) Last() *Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	if r.last.Errors != nil {
		cp.Errors = make(map[string]string, len(r.last.Errors))
		for k, v := range r.last.Errors {
			cp.Errors[k] = v
		}
	}
	return &cp
}

// LastBuild reports the finish time and error of the last completed refresh.
// Feeds the readiness checker.
func (r *Runner) LastBuild() (time.Time, string) {
	s := r.Last()
	if s == nil || s.Running {
		return time.Time{}, ""
	}
	errMsg := s.Error
	if errMsg == "" && s.DatasetsFailed > 0 {
		errMsg = fmt.Sprintf("%d of %d datasets failed", s.DatasetsFailed, s.DatasetsTotal)
	}
	return s.FinishedAt, errMsg
}

// Refresh builds the catalog pages for the named datasets, or for every
// registered dataset when names is empty. A failing dataset does not abort
// the others; per-dataset errors land in the returned status.
func (r *Runner) Refresh(ctx context.Context, names []string) (*Status, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer r.inFlight.Store(false)

	if len(names) == 0 {
		names = r.registry.Names()
	}

	status := &Status{
		JobID:         uuid.NewString(),
		Running:       true,
		StartedAt:     time.Now(),
		DatasetsTotal: len(names),
		Errors:        make(map[string]string),
	}
	r.setLast(status)

	ctx = xglog.ContextWithJobID(ctx, status.JobID)
	logger := xglog.WithComponentFromContext(ctx, "jobs")
	logger.Info().
		Str(xglog.FieldEvent, "refresh.start").
		Str("job_id", status.JobID).
		Int("datasets", len(names)).
		Msg("catalog refresh started")

	tracer := telemetry.Tracer("jobs")
	ctx, span := tracer.Start(ctx, "catalog.refresh")
	defer span.End()

	if err := r.store.BeginBuild(ctx, status.JobID, status.StartedAt, len(names)); err != nil {
		return r.finish(ctx, status, fmt.Errorf("record build start: %w", err))
	}

	if err := os.MkdirAll(r.catalogDir, 0o750); err != nil {
		return r.finish(ctx, status, fmt.Errorf("create catalog directory: %w", err))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, name := range names {
		g.Go(func() error {
			report, err := r.buildOne(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status.DatasetsFailed++
				status.Errors[name] = err.Error()
				metrics.IncDatasetBuild("error")
				return nil // one dataset failing must not cancel the group
			}
			status.DatasetsSucceeded++
			status.LintErrors += report.Errors()
			status.LintWarnings += report.Warnings()
			metrics.IncDatasetBuild("ok")
			return nil
		})
	}
	_ = g.Wait()

	if err := r.writeIndex(ctx); err != nil {
		return r.finish(ctx, status, fmt.Errorf("write catalog index: %w", err))
	}
	return r.finish(ctx, status, nil)
}

// buildOne builds, renders, lints, writes and records a single dataset.
func (r *Runner) buildOne(ctx context.Context, name string) (*lint.Report, error) {
	ctx = xglog.ContextWithDataset(ctx, name)
	logger := xglog.WithComponentFromContext(ctx, "jobs")

	tracer := telemetry.Tracer("jobs")
	ctx, span := tracer.Start(ctx, "catalog.build_dataset")
	span.SetAttributes(telemetry.Dataset(name))
	defer span.End()

	b, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}
	info, err := b.Info()
	if err != nil {
		return nil, fmt.Errorf("dataset info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	if err := r.generateSplits(ctx, b, info, logger); err != nil {
		return nil, err
	}

	raw, err := page.Render(info)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	report, err := r.linter.LintPage(raw)
	if err != nil {
		return nil, fmt.Errorf("lint page: %w", err)
	}
	for _, f := range report.Findings {
		metrics.IncLintFinding(f.Rule, string(f.Severity))
	}
	span.SetAttributes(telemetry.LintCounts(report.Errors(), report.Warnings())...)
	span.SetAttributes(attribute.Int(telemetry.DatasetConfigsKey, len(info.EffectiveConfigs())))

	pagePath := filepath.Join(r.catalogDir, name+".md")
	if err := writePage(ctx, pagePath, raw); err != nil {
		metrics.IncPageWriteError()
		return nil, err
	}
	metrics.IncPageWritten()

	row := store.DatasetRow{
		Name:         name,
		Version:      info.Version.String(),
		ConfigCount:  len(info.EffectiveConfigs()),
		LintErrors:   report.Errors(),
		LintWarnings: report.Warnings(),
		PagePath:     pagePath,
		PageSHA256:   pageChecksum(raw),
		BuiltAt:      time.Now(),
	}
	if err := r.store.UpsertDataset(ctx, row); err != nil {
		return nil, fmt.Errorf("upsert catalog row: %w", err)
	}

	r.cache.Set(ctx, cache.PageKey(name), raw, r.cacheTTL)

	logger.Info().
		Str(xglog.FieldEvent, "refresh.dataset_built").
		Str("version", row.Version).
		Int("lint_errors", row.LintErrors).
		Int("lint_warnings", row.LintWarnings).
		Msg("dataset page built")
	return report, nil
}

// generateSplits fetches a dataset's declared sources and materializes its
// split examples, checking each one against the feature schema. Catalog-only
// builders declare no splits and pass through.
func (r *Runner) generateSplits(ctx context.Context, b builder.Builder, info *catalog.DatasetInfo, logger zerolog.Logger) error {
	if r.downloads == nil {
		return nil
	}
	splits, err := b.Splits(ctx, r.downloads)
	if err != nil {
		return fmt.Errorf("split sources: %w", err)
	}
	for _, src := range splits {
		examples, err := builder.Collect(ctx, src)
		if err != nil {
			return err
		}
		if info.Features != nil {
			for _, ex := range examples {
				if err := builder.ConformsTo(info.Features, ex); err != nil {
					return fmt.Errorf("split %q: %w", src.Name, err)
				}
			}
		}
		logger.Info().
			Str(xglog.FieldEvent, "refresh.split_generated").
			Str("split", src.Name).
			Int("examples", len(examples)).
			Msg("split examples generated")
	}
	return nil
}

// writeIndex rewrites the catalog index page from the store's current rows.
func (r *Runner) writeIndex(ctx context.Context) error {
	rows, err := r.store.ListDatasets(ctx)
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	var b strings.Builder
	b.WriteString("# Datasets\n\n")
	for _, row := range rows {
		configs := "config"
		if row.ConfigCount != 1 {
			configs = "configs"
		}
		fmt.Fprintf(&b, "*   `%s` — `%s` (%d %s)\n", row.Name, row.Version, row.ConfigCount, configs)
	}
	return writePage(ctx, filepath.Join(r.catalogDir, IndexFile), []byte(b.String()))
}

func (r *Runner) finish(ctx context.Context, status *Status, fatal error) (*Status, error) {
	status.FinishedAt = time.Now()
	status.Running = false

	buildStatus := store.BuildOK
	outcome := "success"
	if fatal != nil {
		status.Error = fatal.Error()
	}
	if status.Failed() {
		buildStatus = store.BuildFailed
		outcome = "error"
	}

	logger := xglog.WithComponentFromContext(ctx, "jobs")
	if err := r.store.FinishBuild(ctx, status.JobID, status.FinishedAt, buildStatus, status.DatasetsFailed, status.Error); err != nil {
		logger.Error().Err(err).
			Str("job_id", status.JobID).
			Msg("failed to record build finish")
	}

	metrics.IncRefresh(outcome)
	metrics.ObserveRefreshDuration(status.FinishedAt.Sub(status.StartedAt).Seconds())
	metrics.RecordDatasetsRefreshed(status.DatasetsSucceeded)
	metrics.RecordLintTotals(status.LintErrors, status.LintWarnings)

	r.setLast(status)

	evt := logger.Info()
	if status.Failed() {
		evt = logger.Error()
	}
	evt.Str(xglog.FieldEvent, "refresh.done").
		Str("job_id", status.JobID).
		Int("succeeded", status.DatasetsSucceeded).
		Int("failed", status.DatasetsFailed).
		Dur("duration", status.FinishedAt.Sub(status.StartedAt)).
		Msg("catalog refresh finished")

	return r.Last(), fatal
}

func (r *Runner) setLast(status *Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *status
	// deep-copy so in-flight builds never mutate what readers hold
	cp.Errors = make(map[string]string, len(status.Errors))
	for k, v := range status.Errors {
		cp.Errors[k] = v
	}
	r.last = &cp
}

// CatalogPagePath resolves the on-disk page path of a dataset, guarding
// against path traversal in API-supplied names.
func CatalogPagePath(catalogDir, name string) (string, error) {
	if !catalog.IsNormalized(name) {
		return "", fmt.Errorf("jobs: %q is not a canonical dataset name", name)
	}
	path := filepath.Join(catalogDir, name+".md")
	if !strings.HasPrefix(path, filepath.Clean(catalogDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("jobs: page path escapes catalog directory")
	}
	return path, nil
}
