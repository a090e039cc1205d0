// Package render is the thin shim between the engine and its external
// templating collaborator (text/template). The engine owns nothing of
// template semantics; it hands over the canonical document and surfaces
// failures as RenderError.
package render

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"personaforge/internal/logging"
	"personaforge/internal/merge"
	"personaforge/internal/persona"
)

// Template is a parsed output template plus the provenance needed for
// cache keying.
type Template struct {
	Name string
	Hash string

	tmpl *template.Template
}

// LoadTemplate reads and parses the template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	tmpl, err := template.New(path).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}

	return &Template{
		Name: path,
		Hash: persona.HashContent(data),
		tmpl: tmpl,
	}, nil
}

// RenderError wraps a templating failure with the persona it affected.
type RenderError struct {
	Persona string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("persona %q: render failed: %v", e.Persona, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Context is the data handed to the template for one persona.
type Context struct {
	// Name is the persona name.
	Name string

	// Fields is the merged field tree as plain Go values. Template
	// range over maps is key-sorted by text/template, so output stays
	// deterministic.
	Fields map[string]interface{}

	// Traits lists the resolved trait names in merge order.
	Traits []string

	// Canonical is the canonical document as YAML text.
	Canonical string
}

// Render executes the template against a canonical document.
func Render(t *Template, doc *merge.CanonicalDocument) ([]byte, error) {
	timer := logging.StartTimer(logging.CategoryRender, "Render")
	defer timer.Stop()

	canonical, err := doc.Encode()
	if err != nil {
		return nil, &RenderError{Persona: doc.Persona, Err: err}
	}

	ctx := Context{
		Name:      doc.Persona,
		Fields:    toGoMap(doc.Fields),
		Traits:    append([]string(nil), doc.TraitOrder...),
		Canonical: string(canonical),
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, ctx); err != nil {
		return nil, &RenderError{Persona: doc.Persona, Err: err}
	}
	return buf.Bytes(), nil
}

// toGo converts a variant tree into plain Go values for the template.
func toGo(v *persona.Value) interface{} {
	switch v.Kind() {
	case persona.KindString:
		return v.AsString()
	case persona.KindNumber:
		return v.AsNumber()
	case persona.KindBool:
		return v.AsBool()
	case persona.KindList:
		out := make([]interface{}, 0, v.Len())
		for _, item := range v.Items() {
			out = append(out, toGo(item))
		}
		return out
	case persona.KindMap:
		return toGoMap(v)
	}
	return nil
}

func toGoMap(v *persona.Value) map[string]interface{} {
	out := make(map[string]interface{}, v.Len())
	for _, k := range v.Keys() {
		child, _ := v.Get(k)
		out[k] = toGo(child)
	}
	return out
}
