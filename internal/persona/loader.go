package persona

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"personaforge/internal/logging"

	"gopkg.in/yaml.v3"
)

// Loader parses persona and trait source files into immutable
// documents. It checks surface syntax only; semantic validation is the
// validator's job and dependency checks are the resolver's.
type Loader struct{}

// NewLoader creates a document loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadPersona reads and parses a single persona file.
func (l *Loader) LoadPersona(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	tree, err := FromNode(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if tree.Kind() != KindMap {
		return nil, fmt.Errorf("%s: persona document must be a mapping", path)
	}

	doc := &Document{
		Provenance: Provenance{
			SourcePath:  path,
			ContentHash: HashContent(data),
		},
	}

	if name, ok := tree.Get("name"); ok && name.Kind() == KindString {
		doc.Name = name.AsString()
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("%s: persona name is required", path)
	}

	if traits, ok := tree.Get("traits"); ok {
		imports, err := parseImports(traits)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		doc.Imports = imports
	}

	if fields, ok := tree.Get("fields"); ok {
		if fields.Kind() != KindMap {
			return nil, fmt.Errorf("%s: fields must be a mapping, got %s", path, fields.Kind())
		}
		doc.Fields = fields
	} else {
		doc.Fields = NewMap()
	}

	if overrides, ok := tree.Get("overrides"); ok {
		if overrides.Kind() != KindMap {
			return nil, fmt.Errorf("%s: overrides must be a mapping, got %s", path, overrides.Kind())
		}
		doc.Overrides = overrides
	}

	logging.Get(logging.CategoryLoader).Debug(
		"Loaded persona %s (%d trait refs) from %s", doc.Name, len(doc.Imports), path)
	return doc, nil
}

// parseImports flattens the traits block, an ordered mapping of
// category to trait-name list, into a flat request-ordered ref list.
func parseImports(traits *Value) ([]TraitRef, error) {
	if traits.Kind() != KindMap {
		return nil, fmt.Errorf("traits must be a mapping of category to name list")
	}

	var refs []TraitRef
	for _, category := range traits.Keys() {
		entry, _ := traits.Get(category)
		switch entry.Kind() {
		case KindList:
			for _, item := range entry.Items() {
				if item.Kind() != KindString || item.AsString() == "" {
					return nil, fmt.Errorf("traits.%s: entries must be trait names", category)
				}
				refs = append(refs, TraitRef{Name: item.AsString(), Category: category})
			}
		case KindString:
			// A bare scalar is shorthand for a single-element list.
			// A null category entry parses as an empty string and
			// means no imports from that category.
			if entry.AsString() == "" {
				continue
			}
			refs = append(refs, TraitRef{Name: entry.AsString(), Category: category})
		default:
			return nil, fmt.Errorf("traits.%s: must be a trait name or list of names", category)
		}
	}
	return refs, nil
}

// LoadTrait reads and parses a single trait file. When the file does
// not declare a category, the parent directory name is used.
func (l *Loader) LoadTrait(path string) (*Trait, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trait file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	tree, err := FromNode(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if tree.Kind() != KindMap {
		return nil, fmt.Errorf("%s: trait document must be a mapping", path)
	}

	trait := &Trait{
		Provenance: Provenance{
			SourcePath:  path,
			ContentHash: HashContent(data),
		},
	}

	if name, ok := tree.Get("name"); ok && name.Kind() == KindString {
		trait.Name = name.AsString()
	}
	if trait.Name == "" {
		return nil, fmt.Errorf("%s: trait name is required", path)
	}

	if category, ok := tree.Get("category"); ok && category.Kind() == KindString {
		trait.Category = category.AsString()
	}
	if trait.Category == "" {
		trait.Category = filepath.Base(filepath.Dir(path))
	}

	trait.Requires, err = parseNameList(tree, "requires")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	trait.ConflictsWith, err = parseNameList(tree, "conflicts_with")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for _, dep := range trait.Requires {
		if dep == trait.Name {
			return nil, fmt.Errorf("%s: trait %q cannot require itself", path, trait.Name)
		}
	}
	for _, c := range trait.ConflictsWith {
		if c == trait.Name {
			return nil, fmt.Errorf("%s: trait %q cannot conflict with itself", path, trait.Name)
		}
	}

	if fields, ok := tree.Get("fields"); ok {
		if fields.Kind() != KindMap {
			return nil, fmt.Errorf("%s: fields must be a mapping, got %s", path, fields.Kind())
		}
		trait.Fields = fields
	} else {
		trait.Fields = NewMap()
	}

	logging.Get(logging.CategoryLoader).Debug(
		"Loaded trait %s/%s from %s", trait.Category, trait.Name, path)
	return trait, nil
}

func parseNameList(tree *Value, key string) ([]string, error) {
	entry, ok := tree.Get(key)
	if !ok {
		return nil, nil
	}
	if entry.Kind() == KindString {
		if entry.AsString() == "" {
			return nil, nil
		}
		return []string{entry.AsString()}, nil
	}
	if entry.Kind() != KindList {
		return nil, fmt.Errorf("%s must be a list of trait names", key)
	}
	var names []string
	for _, item := range entry.Items() {
		if item.Kind() != KindString || item.AsString() == "" {
			return nil, fmt.Errorf("%s entries must be trait names", key)
		}
		names = append(names, item.AsString())
	}
	return names, nil
}

// LoadPersonaDir loads every persona file in a directory. Files are
// visited in lexical order so repeated loads see identical sequences.
func (l *Loader) LoadPersonaDir(dir string) ([]*Document, error) {
	timer := logging.StartTimer(logging.CategoryLoader, "LoadPersonaDir")
	defer timer.Stop()

	var docs []*Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		doc, loadErr := l.LoadPersona(path)
		if loadErr != nil {
			return loadErr
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load personas from %s: %w", dir, err)
	}
	return docs, nil
}

// LoadTraitDir recursively loads every trait file under a directory.
func (l *Loader) LoadTraitDir(dir string) ([]*Trait, error) {
	timer := logging.StartTimer(logging.CategoryLoader, "LoadTraitDir")
	defer timer.Stop()

	var traits []*Trait
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		trait, loadErr := l.LoadTrait(path)
		if loadErr != nil {
			return loadErr
		}
		traits = append(traits, trait)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load traits from %s: %w", dir, err)
	}
	return traits, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
