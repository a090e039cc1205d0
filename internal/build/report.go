// Package build drives the full pipeline per persona - load, resolve,
// merge, validate, render or reuse from cache, write output - with a
// bounded worker pool, and aggregates per-persona outcomes into a
// deterministic report.
package build

import (
	"errors"
	"sort"
	"time"

	"personaforge/internal/cache"
	"personaforge/internal/merge"
	"personaforge/internal/render"
	"personaforge/internal/resolver"
	"personaforge/internal/validate"
)

// Error kind names surfaced in reports. Operators see these instead of
// raw error chains.
const (
	KindUnknownTrait           = "UnknownTrait"
	KindCyclicDependency       = "CyclicDependency"
	KindTraitConflict          = "TraitConflict"
	KindImmutableFieldConflict = "ImmutableFieldConflict"
	KindSchemaValidation       = "SchemaValidationError"
	KindRender                 = "RenderError"
	KindBuild                  = "BuildError"
)

// Result is one persona's build outcome.
type Result struct {
	Persona string

	// Err is nil on success. ErrKind classifies it for the report.
	Err     error
	ErrKind string

	// OutputPath is set when an output file was written.
	OutputPath string

	// Cached marks a build satisfied from the cache.
	Cached bool

	// Validation carries non-blocking findings even on success.
	Validation validate.Result

	Duration time.Duration

	// canonical is retained for the batch-level boundary check.
	canonical *merge.CanonicalDocument
}

// OK reports build success.
func (r *Result) OK() bool {
	return r.Err == nil
}

// classify maps an error to its report kind.
func classify(err error) string {
	var (
		unknown  *resolver.UnknownTraitError
		cyclic   *resolver.CyclicDependencyError
		conflict *resolver.TraitConflictError
		immut    *merge.ImmutableFieldConflictError
		schema   *validate.SchemaValidationError
		rerr     *render.RenderError
	)
	switch {
	case errors.As(err, &unknown):
		return KindUnknownTrait
	case errors.As(err, &cyclic):
		return KindCyclicDependency
	case errors.As(err, &conflict):
		return KindTraitConflict
	case errors.As(err, &immut):
		return KindImmutableFieldConflict
	case errors.As(err, &schema):
		return KindSchemaValidation
	case errors.As(err, &rerr):
		return KindRender
	default:
		return KindBuild
	}
}

// Report aggregates a run. Results are sorted by persona name
// regardless of completion order.
type Report struct {
	RunID string

	Results []Result

	// Boundary holds cross-persona warnings from the batch check.
	Boundary []validate.BoundaryConflictWarning

	// CacheWarnings lists degraded cache operations during the run.
	CacheWarnings []string

	// CacheStats snapshots tier activity at the end of the run.
	CacheStats cache.Stats
	CacheTiers []string

	Started  time.Time
	Finished time.Time
}

// Succeeded counts successful builds.
func (r *Report) Succeeded() int {
	n := 0
	for i := range r.Results {
		if r.Results[i].OK() {
			n++
		}
	}
	return n
}

// Failed counts failed builds.
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// OK reports whether every persona built.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

// HasValidationErrors reports whether any persona's errors bucket is
// non-empty. Used by the validate command's exit code.
func (r *Report) HasValidationErrors() bool {
	for i := range r.Results {
		if len(r.Results[i].Validation.Errors) > 0 || !r.Results[i].OK() {
			return true
		}
	}
	return false
}

func (r *Report) sortResults() {
	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].Persona < r.Results[j].Persona
	})
}
