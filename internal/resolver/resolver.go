// Package resolver expands a persona's trait imports into a complete,
// cycle-free, conflict-free, topologically ordered trait list. It
// performs a depth-first walk over the registry with an on-stack marker
// set, so a revisited in-progress node yields the exact cycle path.
package resolver

import (
	"sort"

	"personaforge/internal/logging"
	"personaforge/internal/persona"
	"personaforge/internal/registry"
)

// Resolution is the outcome of resolving one persona's imports: the
// transitive trait closure in topological order, dependencies before
// dependents.
type Resolution struct {
	Persona string

	// Traits in merge order. Position in this slice also fixes the
	// order of trait hashes inside the cache key.
	Traits []*persona.Trait
}

// Names returns the resolved trait names in merge order.
func (r *Resolution) Names() []string {
	out := make([]string, len(r.Traits))
	for i, t := range r.Traits {
		out[i] = t.Name
	}
	return out
}

// Resolver resolves trait imports against an immutable registry. It
// holds no mutable state, so one instance serves all personas
// concurrently.
type Resolver struct {
	reg *registry.Registry
}

// New creates a resolver over the given registry.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Visit colors for the depth-first walk.
const (
	white = 0 // unvisited
	gray  = 1 // on stack
	black = 2 // done
)

// Resolve expands imports into their transitive closure and orders the
// result. Ties between traits with no dependency relation break by
// first-requested order, then by category declaration order, so the
// output is reproducible across machines.
func (r *Resolver) Resolve(personaName string, imports []persona.TraitRef) (*Resolution, error) {
	timer := logging.StartTimer(logging.CategoryResolver, "Resolve")
	defer timer.Stop()

	color := make(map[string]int)
	var stack []string
	var order []*persona.Trait

	var visit func(name, requiredBy string) error
	visit = func(name, requiredBy string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			// The node is on the current walk stack: exact cycle is
			// the stack suffix starting at its first occurrence.
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), stack[start:]...), name)
			return &CyclicDependencyError{Persona: personaName, Cycle: cycle}
		}

		trait, ok := r.reg.Get(name)
		if !ok {
			return &UnknownTraitError{Persona: personaName, Trait: name, RequiredBy: requiredBy}
		}

		color[name] = gray
		stack = append(stack, name)

		for _, dep := range r.orderedRequires(trait) {
			if err := visit(dep, name); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		order = append(order, trait)
		return nil
	}

	for _, ref := range imports {
		if err := visit(ref.Name, ""); err != nil {
			return nil, err
		}
	}

	if err := r.checkConflicts(personaName, order); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryResolver).Debug(
		"Persona %s: resolved %d traits from %d imports", personaName, len(order), len(imports))
	return &Resolution{Persona: personaName, Traits: order}, nil
}

// orderedRequires returns a trait's dependencies in deterministic visit
// order: category declaration rank first, then the position in the
// requires list. Unknown dependencies sort last so the walk reaches
// them (and fails) only after every known dependency is placed.
func (r *Resolver) orderedRequires(trait *persona.Trait) []string {
	if len(trait.Requires) < 2 {
		return trait.Requires
	}

	deps := append([]string(nil), trait.Requires...)
	rank := func(name string) int {
		if dep, ok := r.reg.Get(name); ok {
			return r.reg.CategoryRank(dep.Category)
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(deps, func(i, j int) bool {
		return rank(deps[i]) < rank(deps[j])
	})
	return deps
}

// checkConflicts scans the full resolved set for declared conflicts.
// A conflict declared by either side of a pair is fatal.
func (r *Resolver) checkConflicts(personaName string, order []*persona.Trait) error {
	resolved := make(map[string]bool, len(order))
	for _, t := range order {
		resolved[t.Name] = true
	}

	for _, t := range order {
		for _, c := range t.ConflictsWith {
			if resolved[c] {
				return &TraitConflictError{Persona: personaName, TraitA: t.Name, TraitB: c}
			}
		}
	}
	return nil
}
