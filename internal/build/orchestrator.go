package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"personaforge/internal/cache"
	"personaforge/internal/config"
	"personaforge/internal/logging"
	"personaforge/internal/merge"
	"personaforge/internal/persona"
	"personaforge/internal/registry"
	"personaforge/internal/render"
	"personaforge/internal/resolver"
	"personaforge/internal/validate"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Orchestrator runs the pipeline for a set of personas. All shared
// state it touches during the parallel phase is either immutable (the
// registry, the template, the schema) or internally synchronized (the
// cache manager).
type Orchestrator struct {
	cfg       *config.Config
	loader    *persona.Loader
	registry  *registry.Registry
	resolver  *resolver.Resolver
	merger    *merge.Merger
	validator *validate.Validator
	template  *render.Template

	// cache is nil when caching is disabled.
	cache *cache.Manager

	// setupWarnings carries degraded-tier notices into every report.
	setupWarnings []string
}

// NewOrchestrator assembles the engine from its configuration: loads
// the trait registry, parses the template, and opens the cache tiers.
// A tier that fails to open degrades to a warning, never an error; the
// run proceeds uncached on that tier.
func NewOrchestrator(cfg *config.Config) (*Orchestrator, error) {
	timer := logging.StartTimer(logging.CategoryBuild, "NewOrchestrator")
	defer timer.Stop()

	loader := persona.NewLoader()

	traits, err := loader.LoadTraitDir(cfg.Sources.TraitDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load traits: %w", err)
	}
	reg, err := registry.New(traits)
	if err != nil {
		return nil, fmt.Errorf("failed to build trait registry: %w", err)
	}

	tmpl, err := render.LoadTemplate(cfg.Sources.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	schema := validate.DefaultSchema()

	o := &Orchestrator{
		cfg:       cfg,
		loader:    loader,
		registry:  reg,
		resolver:  resolver.New(reg),
		merger:    merge.New(schema.ImmutableFields()),
		validator: validate.New(schema),
		template:  tmpl,
	}

	if cfg.Cache.Enabled {
		o.cache = o.openCache(cfg)
	}
	return o, nil
}

// openCache assembles the tier stack, skipping tiers that fail to
// open. An empty stack still yields a valid always-miss manager.
func (o *Orchestrator) openCache(cfg *config.Config) *cache.Manager {
	var tiers []cache.Tier

	if mem, err := cache.NewMemoryTier(cfg.Cache.MemoryMaxBytes); err != nil {
		o.setupWarnings = append(o.setupWarnings,
			fmt.Sprintf("memory cache tier disabled: %v", err))
	} else {
		tiers = append(tiers, mem)
	}

	if disk, err := cache.NewDiskTier(cfg.Cache.Dir, cfg.CacheTTL()); err != nil {
		o.setupWarnings = append(o.setupWarnings,
			fmt.Sprintf("disk cache tier disabled: %v", err))
	} else {
		tiers = append(tiers, disk)
	}

	if cfg.Cache.SharedDir != "" {
		if shared, err := cache.NewSharedTier(cfg.Cache.SharedDir); err != nil {
			o.setupWarnings = append(o.setupWarnings,
				fmt.Sprintf("shared cache tier disabled: %v", err))
		} else {
			tiers = append(tiers, shared)
		}
	}

	return cache.NewManager(tiers...)
}

// Registry exposes the immutable trait registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Close releases cache resources.
func (o *Orchestrator) Close() error {
	if o.cache != nil {
		return o.cache.Close()
	}
	return nil
}

// Options tune one run.
type Options struct {
	// Personas restricts the run to the named personas. Empty builds
	// everything in the persona directory.
	Personas []string

	// Parallel bounds the worker pool. Zero falls back to the
	// configured value, then to GOMAXPROCS.
	Parallel int

	// ValidateOnly stops the pipeline after validation: no render, no
	// cache, no output files.
	ValidateOnly bool
}

func (o *Orchestrator) parallelism(opts Options) int64 {
	n := opts.Parallel
	if n <= 0 {
		n = o.cfg.Build.Parallel
	}
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return int64(n)
}

// BuildAll runs the pipeline for the selected personas, up to the
// configured number at a time. Per-persona failures land in their own
// Result and never abort sibling builds; only system-level failures
// (an unloadable persona directory, an unwritable output directory)
// return an error.
func (o *Orchestrator) BuildAll(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	report.CacheWarnings = append(report.CacheWarnings, o.setupWarnings...)

	docs, err := o.selectPersonas(opts.Personas)
	if err != nil {
		return nil, err
	}

	if !opts.ValidateOnly {
		if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("output directory unwritable: %w", err)
		}
	}

	logging.Get(logging.CategoryBuild).Info(
		"Run %s: building %d personas (parallel=%d)", report.RunID, len(docs), o.parallelism(opts))

	results := make([]Result, len(docs))
	sem := semaphore.NewWeighted(o.parallelism(opts))
	g, gctx := errgroup.WithContext(ctx)

	for i, doc := range docs {
		// Acquire before dispatch: once the context is cancelled no
		// new work starts, while in-flight tasks run to completion.
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = Result{Persona: doc.Name, Err: err, ErrKind: KindBuild}
			continue
		}
		i, doc := i, doc
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = o.buildOne(gctx, doc, opts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Results = results
	o.finishReport(report)
	return report, nil
}

// finishReport runs the batch-level boundary check, folds in cache
// telemetry, and sorts the results by persona name.
func (o *Orchestrator) finishReport(report *Report) {
	var canonical []*merge.CanonicalDocument
	for i := range report.Results {
		if report.Results[i].canonical != nil {
			canonical = append(canonical, report.Results[i].canonical)
		}
	}
	report.Boundary = o.validator.CheckBoundaries(canonical)

	if o.cache != nil {
		report.CacheWarnings = append(report.CacheWarnings, o.cache.DrainWarnings()...)
		report.CacheStats = o.cache.Stats()
		report.CacheTiers = o.cache.TierNames()
	}

	report.sortResults()
	report.Finished = time.Now()

	logging.Get(logging.CategoryBuild).Info(
		"Run %s: %d succeeded, %d failed", report.RunID, report.Succeeded(), report.Failed())
}

// selectPersonas loads the persona directory and filters by name.
func (o *Orchestrator) selectPersonas(names []string) ([]*persona.Document, error) {
	docs, err := o.loader.LoadPersonaDir(o.cfg.Sources.PersonaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load personas: %w", err)
	}
	if len(names) == 0 {
		return docs, nil
	}

	byName := make(map[string]*persona.Document, len(docs))
	for _, d := range docs {
		byName[d.Name] = d
	}

	var selected []*persona.Document
	for _, name := range names {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("persona %q not found in %s", name, o.cfg.Sources.PersonaDir)
		}
		selected = append(selected, d)
	}
	return selected, nil
}

// buildOne runs the full pipeline for a single persona. All failures
// are captured in the Result.
func (o *Orchestrator) buildOne(ctx context.Context, doc *persona.Document, opts Options) Result {
	start := time.Now()
	res := Result{Persona: doc.Name}

	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.ErrKind = classify(res.Err)
			logging.Get(logging.CategoryBuild).Error(
				"Persona %s failed (%s): %v", doc.Name, res.ErrKind, res.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	resolution, err := o.resolver.Resolve(doc.Name, doc.Imports)
	if err != nil {
		res.Err = err
		return res
	}

	canonical, err := o.merger.Merge(doc, resolution.Traits)
	if err != nil {
		res.Err = err
		return res
	}
	res.canonical = canonical

	res.Validation = o.validator.Validate(canonical)
	if !res.Validation.Valid() {
		res.Err = &validate.SchemaValidationError{
			Persona: doc.Name,
			Issues:  res.Validation.Errors,
		}
		return res
	}

	if opts.ValidateOnly {
		return res
	}

	output, cached, err := o.renderOrReuse(doc, resolution, canonical)
	if err != nil {
		res.Err = err
		return res
	}
	res.Cached = cached

	outPath := filepath.Join(o.cfg.OutputDir, doc.Name+".md")
	if err := writeFileAtomic(outPath, output); err != nil {
		res.Err = fmt.Errorf("failed to write output for %q: %w", doc.Name, err)
		return res
	}
	res.OutputPath = outPath
	return res
}

// renderOrReuse returns the rendered output, consulting the cache
// first. Cache trouble is never fatal: it surfaces as a warning and
// the persona renders from scratch.
func (o *Orchestrator) renderOrReuse(doc *persona.Document, resolution *resolver.Resolution, canonical *merge.CanonicalDocument) ([]byte, bool, error) {
	var key cache.Key
	if o.cache != nil {
		traitHashes := make([]string, len(resolution.Traits))
		for i, t := range resolution.Traits {
			traitHashes[i] = t.Provenance.ContentHash
		}
		key = cache.ComputeKey(doc.Provenance.ContentHash, traitHashes, o.template.Hash)

		if entry, ok := o.cache.Lookup(key); ok {
			return entry.Output, true, nil
		}
	}

	output, err := render.Render(o.template, canonical)
	if err != nil {
		return nil, false, err
	}

	if o.cache != nil {
		o.cache.Store(key, cache.Entry{Output: output, StoredAt: time.Now()})
	}
	return output, false, nil
}

// writeFileAtomic writes via temp file and rename so a cancelled run
// never leaves a truncated output.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".out-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
