// Package registry indexes every available trait by name and category.
// The registry is built once at process start, is immutable afterward,
// and is passed by reference into every build; concurrent reads from
// the worker pool need no locking.
package registry

import (
	"fmt"
	"sort"

	"personaforge/internal/logging"
	"personaforge/internal/persona"
)

// Registry is the immutable trait index shared across all builds in a
// run. Construct with New; there is no way to mutate it afterward.
type Registry struct {
	traits map[string]*persona.Trait

	// names is the sorted trait name list, for deterministic listings.
	names []string

	// categoryRank maps category name to its declaration rank, the
	// order categories were first seen during the (lexically ordered)
	// load. Rank is the second tie-break during resolution.
	categoryRank map[string]int
	categories   []string
}

// New builds a registry from loaded traits. Trait names must be unique
// across categories; a duplicate is a load-time error.
func New(traits []*persona.Trait) (*Registry, error) {
	r := &Registry{
		traits:       make(map[string]*persona.Trait, len(traits)),
		categoryRank: make(map[string]int),
	}

	for _, t := range traits {
		if prev, exists := r.traits[t.Name]; exists {
			return nil, fmt.Errorf("duplicate trait %q (declared in %s and %s)",
				t.Name, prev.Provenance.SourcePath, t.Provenance.SourcePath)
		}
		r.traits[t.Name] = t
		r.names = append(r.names, t.Name)

		if _, seen := r.categoryRank[t.Category]; !seen {
			r.categoryRank[t.Category] = len(r.categories)
			r.categories = append(r.categories, t.Category)
		}
	}
	sort.Strings(r.names)

	logging.Get(logging.CategoryRegistry).Info(
		"Registry built: %d traits in %d categories", len(r.traits), len(r.categories))
	return r, nil
}

// Get looks up a trait by name.
func (r *Registry) Get(name string) (*persona.Trait, bool) {
	t, ok := r.traits[name]
	return t, ok
}

// Names returns all trait names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Categories returns category names in declaration order.
func (r *Registry) Categories() []string {
	return append([]string(nil), r.categories...)
}

// CategoryRank returns the declaration rank of a category. Unknown
// categories rank after all known ones.
func (r *Registry) CategoryRank(category string) int {
	if rank, ok := r.categoryRank[category]; ok {
		return rank
	}
	return len(r.categories)
}

// ByCategory returns the traits of one category, sorted by name.
func (r *Registry) ByCategory(category string) []*persona.Trait {
	var out []*persona.Trait
	for _, name := range r.names {
		if t := r.traits[name]; t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of registered traits.
func (r *Registry) Len() int {
	return len(r.traits)
}
