// Package persona defines the document model for the build engine:
// persona definitions, reusable trait fragments, and the ordered field
// trees both are made of. Documents are parsed once, hashed, and treated
// as immutable for the rest of the run.
package persona

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindString is a text scalar.
	KindString Kind = iota

	// KindNumber is a numeric scalar (int or float source form).
	KindNumber

	// KindBool is a boolean scalar.
	KindBool

	// KindList is an ordered sequence of values.
	KindList

	// KindMap is a mapping that preserves key insertion order.
	KindMap
)

// String returns the schema name for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a tagged-variant field tree node. Mappings remember key
// insertion order explicitly so that every traversal of the tree is
// deterministic; nothing in this package iterates a Go map.
type Value struct {
	kind Kind

	// Scalar forms. raw preserves the source text of the scalar so a
	// reloaded document re-encodes byte-identically.
	raw string
	num float64
	b   bool

	// List form.
	list []*Value

	// Map form: keys carries insertion order, children the lookup.
	keys     []string
	children map[string]*Value
}

// NewString creates a string scalar.
func NewString(s string) *Value {
	return &Value{kind: KindString, raw: s}
}

// NewNumber creates a numeric scalar.
func NewNumber(n float64) *Value {
	raw := strconv.FormatFloat(n, 'g', -1, 64)
	return &Value{kind: KindNumber, raw: raw, num: n}
}

// NewBool creates a boolean scalar.
func NewBool(b bool) *Value {
	raw := "false"
	if b {
		raw = "true"
	}
	return &Value{kind: KindBool, raw: raw, b: b}
}

// NewList creates a list from the given items.
func NewList(items ...*Value) *Value {
	return &Value{kind: KindList, list: items}
}

// NewMap creates an empty ordered mapping.
func NewMap() *Value {
	return &Value{kind: KindMap, children: make(map[string]*Value)}
}

// Kind returns the variant tag.
func (v *Value) Kind() Kind { return v.kind }

// AsString returns the scalar text. Valid for any scalar kind.
func (v *Value) AsString() string { return v.raw }

// AsNumber returns the numeric value.
func (v *Value) AsNumber() float64 { return v.num }

// AsBool returns the boolean value.
func (v *Value) AsBool() bool { return v.b }

// Items returns the list elements. Nil for non-lists.
func (v *Value) Items() []*Value { return v.list }

// Keys returns mapping keys in insertion order. Nil for non-maps.
func (v *Value) Keys() []string { return v.keys }

// Get looks up a mapping child by key.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	child, ok := v.children[key]
	return child, ok
}

// Set inserts or replaces a mapping child. New keys append to the
// insertion order; existing keys keep their position.
func (v *Value) Set(key string, child *Value) {
	if v.kind != KindMap {
		return
	}
	if _, exists := v.children[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.children[key] = child
}

// Append adds an element to a list value.
func (v *Value) Append(item *Value) {
	if v.kind == KindList {
		v.list = append(v.list, item)
	}
}

// Len returns the element count for lists and maps, 0 for scalars.
func (v *Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.keys)
	default:
		return 0
	}
}

// Equal reports deep value equality. Scalars compare by parsed value,
// lists element-wise, maps by key set and per-key equality (insertion
// order does not affect equality, only encoding).
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.raw == o.raw
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for _, k := range v.keys {
			oc, ok := o.children[k]
			if !ok || !v.children[k].Equal(oc) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the tree.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	clone := &Value{kind: v.kind, raw: v.raw, num: v.num, b: v.b}
	if v.list != nil {
		clone.list = make([]*Value, len(v.list))
		for i, item := range v.list {
			clone.list[i] = item.Clone()
		}
	}
	if v.children != nil {
		clone.keys = append([]string(nil), v.keys...)
		clone.children = make(map[string]*Value, len(v.children))
		for _, k := range v.keys {
			clone.children[k] = v.children[k].Clone()
		}
	}
	return clone
}

// FromNode converts a parsed YAML node into a Value tree, preserving
// mapping key order as it appears in the source document.
func FromNode(node *yaml.Node) (*Value, error) {
	if node == nil {
		return nil, fmt.Errorf("nil yaml node")
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return NewMap(), nil
		}
		return FromNode(node.Content[0])
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: non-scalar mapping key", keyNode.Line)
			}
			if _, dup := m.children[keyNode.Value]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", keyNode.Line, keyNode.Value)
			}
			child, err := FromNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(keyNode.Value, child)
		}
		return m, nil
	case yaml.SequenceNode:
		l := NewList()
		for _, item := range node.Content {
			child, err := FromNode(item)
			if err != nil {
				return nil, err
			}
			l.Append(child)
		}
		return l, nil
	case yaml.ScalarNode:
		return scalarFromNode(node)
	case yaml.AliasNode:
		return FromNode(node.Alias)
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind", node.Line)
	}
}

func scalarFromNode(node *yaml.Node) (*Value, error) {
	switch node.Tag {
	case "!!int":
		n, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad integer %q", node.Line, node.Value)
		}
		return &Value{kind: KindNumber, raw: node.Value, num: float64(n)}, nil
	case "!!float":
		n, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad float %q", node.Line, node.Value)
		}
		return &Value{kind: KindNumber, raw: node.Value, num: n}, nil
	case "!!bool":
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad bool %q", node.Line, node.Value)
		}
		return &Value{kind: KindBool, raw: node.Value, b: b}, nil
	case "!!null":
		// Null fields collapse to the empty string; the schema has no
		// null kind and treats absence and emptiness the same way.
		return NewString(""), nil
	default:
		return NewString(node.Value), nil
	}
}

// ToNode converts the tree back into a YAML node. The inverse of
// FromNode up to scalar formatting, which is preserved via raw text.
func (v *Value) ToNode() *yaml.Node {
	switch v.kind {
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.raw}
	case KindNumber:
		tag := "!!int"
		if strings.ContainsAny(v.raw, ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.raw}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: v.raw}
	case KindList:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.list {
			node.Content = append(node.Content, item.ToNode())
		}
		return node
	case KindMap:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.keys {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				v.children[k].ToNode())
		}
		return node
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// EncodeCanonical renders the tree as YAML with mapping keys in
// insertion order. Identical trees encode to identical bytes on any
// machine, which is the property the cache key and the determinism
// guarantee rest on.
func (v *Value) EncodeCanonical() ([]byte, error) {
	out, err := yaml.Marshal(v.ToNode())
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return out, nil
}

// SortedKeys returns mapping keys in lexical order. Used by validators
// that report on fields without caring about document position.
func (v *Value) SortedKeys() []string {
	out := append([]string(nil), v.keys...)
	sort.Strings(out)
	return out
}
