package resolver

import (
	"fmt"
	"strings"
)

// UnknownTraitError reports a reference to a trait that is not in the
// registry.
type UnknownTraitError struct {
	Persona string
	Trait   string

	// RequiredBy names the trait whose requires list pulled this one
	// in; empty for a direct persona import.
	RequiredBy string
}

func (e *UnknownTraitError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("persona %q: unknown trait %q (required by %q)",
			e.Persona, e.Trait, e.RequiredBy)
	}
	return fmt.Sprintf("persona %q: unknown trait %q", e.Persona, e.Trait)
}

// CyclicDependencyError reports a dependency cycle. Cycle holds the
// exact path, first and last element equal.
type CyclicDependencyError struct {
	Persona string
	Cycle   []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("persona %q: cyclic trait dependency: %s",
		e.Persona, strings.Join(e.Cycle, " -> "))
}

// TraitConflictError reports two resolved traits that declare a
// conflict. TraitA is the declaring side.
type TraitConflictError struct {
	Persona string
	TraitA  string
	TraitB  string
}

func (e *TraitConflictError) Error() string {
	return fmt.Sprintf("persona %q: trait %q conflicts with trait %q",
		e.Persona, e.TraitA, e.TraitB)
}
