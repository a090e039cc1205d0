// Package validate checks canonical documents against the persona
// field schema and runs batch-level cross-persona checks. Errors block
// a build; warnings and suggestions surface in the report without
// blocking.
package validate

// FieldType is the schema-level type of a persona field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBool    FieldType = "bool"
	TypeList    FieldType = "list"
	TypeMapping FieldType = "mapping"
	TypeEnum    FieldType = "enum"
)

// FieldRule describes one top-level field of the canonical document.
type FieldRule struct {
	Name      string
	Type      FieldType
	Required  bool
	Immutable bool

	// Enum lists the allowed values when Type is TypeEnum.
	Enum []string
}

// Schema is the ordered rule set for canonical documents.
type Schema struct {
	rules []FieldRule
	index map[string]*FieldRule
}

// NewSchema builds a schema from ordered field rules.
func NewSchema(rules []FieldRule) *Schema {
	s := &Schema{rules: rules, index: make(map[string]*FieldRule, len(rules))}
	for i := range s.rules {
		s.index[s.rules[i].Name] = &s.rules[i]
	}
	return s
}

// DefaultSchema returns the built-in persona document schema.
func DefaultSchema() *Schema {
	return NewSchema([]FieldRule{
		{Name: "name", Type: TypeString, Required: true, Immutable: true},
		{Name: "role", Type: TypeString, Required: true},
		{Name: "description", Type: TypeString},
		{Name: "trigger", Type: TypeString},
		{Name: "mode", Type: TypeEnum, Enum: []string{"assistant", "reviewer", "planner", "specialist"}},
		{Name: "priority", Type: TypeNumber},
		{Name: "enabled", Type: TypeBool},
		{Name: "capabilities", Type: TypeList},
		{Name: "guidelines", Type: TypeList},
		{Name: "settings", Type: TypeMapping},
		{Name: "metadata", Type: TypeMapping},
	})
}

// Rules returns the rules in declaration order.
func (s *Schema) Rules() []FieldRule {
	return append([]FieldRule(nil), s.rules...)
}

// Rule looks up the rule for a field name.
func (s *Schema) Rule(name string) (*FieldRule, bool) {
	r, ok := s.index[name]
	return r, ok
}

// ImmutableFields returns the dot paths of immutable fields, in rule
// order. Fed to the merger.
func (s *Schema) ImmutableFields() []string {
	var out []string
	for _, r := range s.rules {
		if r.Immutable {
			out = append(out, r.Name)
		}
	}
	return out
}
