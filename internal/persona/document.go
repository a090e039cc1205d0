package persona

import (
	"crypto/sha256"
	"encoding/hex"
)

// TraitRef is a persona's request for one trait, as written in the
// source document. Refs keep their request order; that order is the
// first tie-break when the resolver sequences unrelated traits.
type TraitRef struct {
	Name     string
	Category string
}

// Provenance records where a document came from and what its source
// bytes hashed to. The hash feeds the cache key.
type Provenance struct {
	SourcePath  string
	ContentHash string
}

// Document is a parsed persona definition. Immutable after load; one
// instance per build.
type Document struct {
	// Name identifies the persona and derives the output file name.
	Name string

	// Imports lists requested traits in source order, already grouped
	// by category the way the document declares them.
	Imports []TraitRef

	// Fields is the persona's inline field tree (base layer).
	Fields *Value

	// Overrides is the optional override layer, merged last.
	Overrides *Value

	Provenance Provenance
}

// Trait is a reusable configuration fragment. Loaded once into the
// registry and shared read-only across every build in a session.
type Trait struct {
	Name     string
	Category string

	// Requires names traits that must be resolved before this one.
	Requires []string

	// ConflictsWith names traits that must never co-occur with this
	// one in a resolved set.
	ConflictsWith []string

	// Fields is the fragment merged into the canonical document.
	Fields *Value

	Provenance Provenance
}

// ConflictsWithTrait reports whether the trait declares a conflict
// against the named trait.
func (t *Trait) ConflictsWithTrait(name string) bool {
	for _, c := range t.ConflictsWith {
		if c == name {
			return true
		}
	}
	return false
}

// HashContent computes the sha256 hex digest of raw document bytes.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
