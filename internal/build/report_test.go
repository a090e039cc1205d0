package build

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"personaforge/internal/merge"
	"personaforge/internal/render"
	"personaforge/internal/resolver"
	"personaforge/internal/validate"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown trait", &resolver.UnknownTraitError{Trait: "x"}, KindUnknownTrait},
		{"cycle", &resolver.CyclicDependencyError{Cycle: []string{"a", "a"}}, KindCyclicDependency},
		{"conflict", &resolver.TraitConflictError{TraitA: "a", TraitB: "b"}, KindTraitConflict},
		{"immutable", &merge.ImmutableFieldConflictError{Field: "name"}, KindImmutableFieldConflict},
		{"schema", &validate.SchemaValidationError{Persona: "p"}, KindSchemaValidation},
		{"render", &render.RenderError{Persona: "p", Err: errors.New("boom")}, KindRender},
		{"anything else", errors.New("disk full"), KindBuild},
		{"wrapped errors unwrap", fmt.Errorf("while resolving: %w", &resolver.UnknownTraitError{Trait: "x"}), KindUnknownTrait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestReport_Counts(t *testing.T) {
	report := &Report{Results: []Result{
		{Persona: "a"},
		{Persona: "b", Err: errors.New("x"), ErrKind: KindBuild},
		{Persona: "c"},
	}}

	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 1, report.Failed())
	assert.False(t, report.OK())

	assert.True(t, (&Report{Results: []Result{{Persona: "a"}}}).OK())
	assert.True(t, (&Report{}).OK())
}

func TestReport_HasValidationErrors(t *testing.T) {
	clean := &Report{Results: []Result{{Persona: "a"}}}
	assert.False(t, clean.HasValidationErrors())

	warnOnly := &Report{Results: []Result{{
		Persona: "a",
		Validation: validate.Result{
			Warnings: []validate.Issue{{Field: "x", Message: "unknown field"}},
		},
	}}}
	assert.False(t, warnOnly.HasValidationErrors())

	withErrors := &Report{Results: []Result{{
		Persona: "a",
		Validation: validate.Result{
			Errors: []validate.Issue{{Field: "role", Message: "required field is missing"}},
		},
	}}}
	assert.True(t, withErrors.HasValidationErrors())

	failed := &Report{Results: []Result{{Persona: "a", Err: errors.New("x")}}}
	assert.True(t, failed.HasValidationErrors())
}

func TestReport_SortResults(t *testing.T) {
	report := &Report{Results: []Result{
		{Persona: "zoe"}, {Persona: "amy"}, {Persona: "mia"},
	}}
	report.sortResults()

	names := make([]string, len(report.Results))
	for i := range report.Results {
		names[i] = report.Results[i].Persona
	}
	assert.Equal(t, []string{"amy", "mia", "zoe"}, names)
}
