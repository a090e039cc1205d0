// Package merge deep-merges a persona's resolved traits, its own base
// fields, and its override layer into one canonical document. Traits
// fill in around the persona: trait layers apply first in resolved
// order, the persona's base fields stay authoritative over them, and
// the override layer wins last. Output is deterministic: the same
// layers in the same order produce the same bytes on any machine,
// because every tree walk follows explicit key insertion order.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"personaforge/internal/logging"
	"personaforge/internal/persona"
)

// CanonicalDocument is the fully merged field tree for one persona,
// ready for validation and rendering. Owned by a single build and
// discarded after render.
type CanonicalDocument struct {
	Persona string

	// TraitOrder records the topological order the traits merged in.
	TraitOrder []string

	// Fields is the merged tree.
	Fields *persona.Value
}

// Encode renders the canonical document as deterministic YAML bytes.
func (d *CanonicalDocument) Encode() ([]byte, error) {
	return d.Fields.EncodeCanonical()
}

// ImmutableFieldConflictError reports a layer trying to overwrite a
// field the schema marks immutable.
type ImmutableFieldConflictError struct {
	Persona string
	Field   string

	// Source names the offending layer: a trait name, "fields", or
	// "overrides".
	Source string
}

func (e *ImmutableFieldConflictError) Error() string {
	return fmt.Sprintf("persona %q: layer %q attempts to override immutable field %q",
		e.Persona, e.Source, e.Field)
}

// Merger merges document layers. Immutable field paths come from the
// schema; writes to an already-set immutable field fail regardless of
// the written value.
type Merger struct {
	immutable map[string]bool
}

// New creates a merger. immutableFields holds dot-separated paths
// (e.g. "identity" or "identity.name").
func New(immutableFields []string) *Merger {
	m := &Merger{immutable: make(map[string]bool, len(immutableFields))}
	for _, f := range immutableFields {
		m.immutable[f] = true
	}
	return m
}

// Merge applies each trait in resolved order, then the persona's own
// fields, then overrides. Later traits overwrite earlier ones, but the
// persona's base fields win over every trait write; only the override
// layer replaces them.
func (m *Merger) Merge(doc *persona.Document, traits []*persona.Trait) (*CanonicalDocument, error) {
	timer := logging.StartTimer(logging.CategoryMerge, "Merge")
	defer timer.Stop()

	result := persona.NewMap()

	// Immutable fields the persona itself defines are off limits to
	// traits even though the base layer has not landed yet.
	protected := m.protectedPaths(doc.Fields)

	order := make([]string, 0, len(traits))
	for _, t := range traits {
		order = append(order, t.Name)
		if err := m.mergeLayer(doc.Name, result, t.Fields, t.Name, protected); err != nil {
			return nil, err
		}
	}

	if err := m.mergeLayer(doc.Name, result, doc.Fields, "fields", nil); err != nil {
		return nil, err
	}

	if doc.Overrides != nil {
		if err := m.mergeLayer(doc.Name, result, doc.Overrides, "overrides", nil); err != nil {
			return nil, err
		}
	}

	logging.Get(logging.CategoryMerge).Debug(
		"Persona %s: merged %d trait layers, %d top-level fields",
		doc.Name, len(traits), result.Len())

	return &CanonicalDocument{
		Persona:    doc.Name,
		TraitOrder: order,
		Fields:     result,
	}, nil
}

// protectedPaths returns the immutable paths the base layer defines,
// checked against trait writes before the base layer itself lands.
func (m *Merger) protectedPaths(base *persona.Value) map[string]bool {
	if base == nil || len(m.immutable) == 0 {
		return nil
	}
	out := make(map[string]bool, len(m.immutable))
	for path := range m.immutable {
		if hasPath(base, path) {
			out[path] = true
		}
	}
	return out
}

func hasPath(v *persona.Value, path string) bool {
	cur := v
	for _, part := range strings.Split(path, ".") {
		if cur == nil || cur.Kind() != persona.KindMap {
			return false
		}
		next, ok := cur.Get(part)
		if !ok {
			return false
		}
		cur = next
	}
	return true
}

func (m *Merger) mergeLayer(personaName string, dst, src *persona.Value, source string, protected map[string]bool) error {
	if src == nil {
		return nil
	}
	return m.mergeMap(personaName, dst, src, source, "", protected)
}

// mergeMap merges src into dst key by key, in src's declaration order.
func (m *Merger) mergeMap(personaName string, dst, src *persona.Value, source, path string, protected map[string]bool) error {
	for _, key := range src.Keys() {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		srcChild, _ := src.Get(key)
		dstChild, exists := dst.Get(key)

		if m.immutable[childPath] && (exists || protected[childPath]) {
			return &ImmutableFieldConflictError{
				Persona: personaName,
				Field:   childPath,
				Source:  source,
			}
		}

		if !exists {
			// A wholesale subtree insert can still smuggle in a write
			// to a protected nested path.
			if p := protectedUnder(protected, childPath, srcChild); p != "" {
				return &ImmutableFieldConflictError{
					Persona: personaName,
					Field:   p,
					Source:  source,
				}
			}
			dst.Set(key, srcChild.Clone())
			continue
		}

		merged, err := m.mergeValue(personaName, dstChild, srcChild, source, childPath, protected)
		if err != nil {
			return err
		}
		dst.Set(key, merged)
	}
	return nil
}

// mergeValue combines an existing value with an incoming one:
// mappings merge recursively, lists concatenate and de-duplicate, and
// everything else (including a kind change) is last-writer-wins.
func (m *Merger) mergeValue(personaName string, dst, src *persona.Value, source, path string, protected map[string]bool) (*persona.Value, error) {
	if dst.Kind() == persona.KindMap && src.Kind() == persona.KindMap {
		if err := m.mergeMap(personaName, dst, src, source, path, protected); err != nil {
			return nil, err
		}
		return dst, nil
	}

	if dst.Kind() == persona.KindList && src.Kind() == persona.KindList {
		return mergeLists(dst, src), nil
	}

	if p := protectedUnder(protected, path, src); p != "" {
		return nil, &ImmutableFieldConflictError{
			Persona: personaName,
			Field:   p,
			Source:  source,
		}
	}
	return src.Clone(), nil
}

// protectedUnder reports the first protected path (in lexical order)
// that lies at or below path and that src actually writes.
func protectedUnder(protected map[string]bool, path string, src *persona.Value) string {
	if len(protected) == 0 {
		return ""
	}
	paths := make([]string, 0, len(protected))
	for p := range protected {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if p == path {
			return p
		}
		if strings.HasPrefix(p, path+".") && hasPath(src, strings.TrimPrefix(p, path+".")) {
			return p
		}
	}
	return ""
}

// mergeLists concatenates then de-duplicates by value equality,
// preserving first-seen order.
func mergeLists(dst, src *persona.Value) *persona.Value {
	out := persona.NewList()
	for _, item := range dst.Items() {
		if !containsValue(out, item) {
			out.Append(item.Clone())
		}
	}
	for _, item := range src.Items() {
		if !containsValue(out, item) {
			out.Append(item.Clone())
		}
	}
	return out
}

func containsValue(list *persona.Value, v *persona.Value) bool {
	for _, item := range list.Items() {
		if item.Equal(v) {
			return true
		}
	}
	return false
}
