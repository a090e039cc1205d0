package validate

import (
	"fmt"
	"sort"
	"strings"

	"personaforge/internal/logging"
	"personaforge/internal/merge"
	"personaforge/internal/persona"
)

// Issue is one validation finding tied to a field.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Result buckets findings by severity. Errors block the build;
// warnings and suggestions are surfaced only.
type Result struct {
	Errors      []Issue
	Warnings    []Issue
	Suggestions []Issue
}

// Valid reports whether the errors bucket is empty.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// SchemaValidationError wraps a failed Result as the error attached to
// a build.
type SchemaValidationError struct {
	Persona string
	Issues  []Issue
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("persona %q: schema validation failed: %s",
		e.Persona, strings.Join(parts, "; "))
}

// BoundaryConflictWarning flags two personas sharing an activation
// trigger phrase. Non-fatal.
type BoundaryConflictWarning struct {
	PersonaA string
	PersonaB string
	Trigger  string
}

func (w BoundaryConflictWarning) String() string {
	return fmt.Sprintf("personas %q and %q share activation trigger %q",
		w.PersonaA, w.PersonaB, w.Trigger)
}

// Validator checks canonical documents against a schema.
type Validator struct {
	schema *Schema
}

// New creates a validator for the given schema.
func New(schema *Schema) *Validator {
	return &Validator{schema: schema}
}

// Schema returns the validator's schema.
func (v *Validator) Schema() *Schema {
	return v.schema
}

// Validate runs structural checks on one canonical document.
func (v *Validator) Validate(doc *merge.CanonicalDocument) Result {
	timer := logging.StartTimer(logging.CategoryValidate, "Validate")
	defer timer.Stop()

	var res Result
	fields := doc.Fields

	for _, rule := range v.schema.Rules() {
		value, present := fields.Get(rule.Name)
		if !present {
			if rule.Required {
				res.Errors = append(res.Errors, Issue{
					Field:   rule.Name,
					Message: "required field is missing",
				})
			}
			continue
		}
		v.checkType(rule, value, &res)
	}

	// Unknown top-level fields warn rather than fail so documents
	// written against newer schemas still build.
	for _, key := range fields.Keys() {
		if _, known := v.schema.Rule(key); !known {
			res.Warnings = append(res.Warnings, Issue{
				Field:   key,
				Message: "unknown field (ignored by the schema)",
			})
		}
	}

	if _, ok := fields.Get("description"); !ok {
		res.Suggestions = append(res.Suggestions, Issue{
			Field:   "description",
			Message: "adding a description improves list-agents output",
		})
	}

	logging.Get(logging.CategoryValidate).Debug(
		"Persona %s: %d errors, %d warnings, %d suggestions",
		doc.Persona, len(res.Errors), len(res.Warnings), len(res.Suggestions))
	return res
}

func (v *Validator) checkType(rule FieldRule, value *persona.Value, res *Result) {
	want := rule.Type
	got := value.Kind()

	switch want {
	case TypeString:
		if got != persona.KindString {
			res.Errors = append(res.Errors, typeIssue(rule.Name, "string", got))
		}
	case TypeNumber:
		if got != persona.KindNumber {
			res.Errors = append(res.Errors, typeIssue(rule.Name, "number", got))
		}
	case TypeBool:
		if got != persona.KindBool {
			res.Errors = append(res.Errors, typeIssue(rule.Name, "bool", got))
		}
	case TypeList:
		if got != persona.KindList {
			res.Errors = append(res.Errors, typeIssue(rule.Name, "list", got))
		}
	case TypeMapping:
		if got != persona.KindMap {
			res.Errors = append(res.Errors, typeIssue(rule.Name, "mapping", got))
		}
	case TypeEnum:
		if got != persona.KindString {
			res.Errors = append(res.Errors, typeIssue(rule.Name, "enum string", got))
			return
		}
		val := value.AsString()
		for _, allowed := range rule.Enum {
			if val == allowed {
				return
			}
		}
		res.Errors = append(res.Errors, Issue{
			Field: rule.Name,
			Message: fmt.Sprintf("value %q not in allowed set [%s]",
				val, strings.Join(rule.Enum, ", ")),
		})
	}
}

func typeIssue(field, want string, got persona.Kind) Issue {
	return Issue{
		Field:   field,
		Message: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// CheckBoundaries runs the batch-level cross-persona check: two
// personas with an identical trigger phrase produce a warning naming
// both. Output is sorted for reproducible reports.
func (v *Validator) CheckBoundaries(docs []*merge.CanonicalDocument) []BoundaryConflictWarning {
	byTrigger := make(map[string][]string)
	for _, doc := range docs {
		trigger, ok := doc.Fields.Get("trigger")
		if !ok || trigger.Kind() != persona.KindString || trigger.AsString() == "" {
			continue
		}
		byTrigger[trigger.AsString()] = append(byTrigger[trigger.AsString()], doc.Persona)
	}

	triggers := make([]string, 0, len(byTrigger))
	for t := range byTrigger {
		triggers = append(triggers, t)
	}
	sort.Strings(triggers)

	var warnings []BoundaryConflictWarning
	for _, t := range triggers {
		names := byTrigger[t]
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				warnings = append(warnings, BoundaryConflictWarning{
					PersonaA: names[i],
					PersonaB: names[j],
					Trigger:  t,
				})
			}
		}
	}
	return warnings
}
