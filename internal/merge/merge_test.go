package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"personaforge/internal/persona"
)

func fields(t *testing.T, src string) *persona.Value {
	t.Helper()
	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &root))
	v, err := persona.FromNode(&root)
	require.NoError(t, err)
	return v
}

func doc(t *testing.T, name, base, overrides string) *persona.Document {
	t.Helper()
	d := &persona.Document{Name: name, Fields: fields(t, base)}
	if overrides != "" {
		d.Overrides = fields(t, overrides)
	}
	return d
}

func layer(t *testing.T, name, src string) *persona.Trait {
	t.Helper()
	return &persona.Trait{Name: name, Fields: fields(t, src)}
}

func getString(t *testing.T, v *persona.Value, key string) string {
	t.Helper()
	child, ok := v.Get(key)
	require.True(t, ok, "missing key %q", key)
	return child.AsString()
}

func TestMerger_Merge(t *testing.T) {
	t.Run("override layer wins last", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p", "role: alpha", "role: gamma"),
			[]*persona.Trait{layer(t, "t1", "role: beta")},
		)
		require.NoError(t, err)
		assert.Equal(t, "gamma", getString(t, out.Fields, "role"))
		assert.Equal(t, []string{"t1"}, out.TraitOrder)
	})

	t.Run("base fields survive trait writes", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p", "role: alpha", ""),
			[]*persona.Trait{layer(t, "t1", "role: beta")},
		)
		require.NoError(t, err)
		assert.Equal(t, "alpha", getString(t, out.Fields, "role"))
	})

	t.Run("later trait wins over earlier trait", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p", "name: p", ""),
			[]*persona.Trait{
				layer(t, "t1", "role: beta"),
				layer(t, "t2", "role: delta"),
			},
		)
		require.NoError(t, err)
		assert.Equal(t, "delta", getString(t, out.Fields, "role"))
	})

	t.Run("kind change between traits is last writer wins", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p", "name: p", ""),
			[]*persona.Trait{
				layer(t, "t1", "value: plain"),
				layer(t, "t2", "value:\n  nested: true\n"),
			},
		)
		require.NoError(t, err)
		v, _ := out.Fields.Get("value")
		assert.Equal(t, persona.KindMap, v.Kind())
	})

	t.Run("maps merge recursively with base leaves authoritative", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p", "settings:\n  depth: 1\n", ""),
			[]*persona.Trait{
				layer(t, "t1", "settings:\n  depth: 9\n  keep: untouched\n"),
				layer(t, "t2", "settings:\n  added: new\n"),
			},
		)
		require.NoError(t, err)

		settings, _ := out.Fields.Get("settings")
		depth, _ := settings.Get("depth")
		assert.Equal(t, 1.0, depth.AsNumber())
		assert.Equal(t, "untouched", getString(t, settings, "keep"))
		assert.Equal(t, "new", getString(t, settings, "added"))
	})

	t.Run("lists concatenate and dedupe", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p", "name: p", ""),
			[]*persona.Trait{
				layer(t, "t1", "capabilities: [read, write]"),
				layer(t, "t2", "capabilities: [write, review]"),
			},
		)
		require.NoError(t, err)

		caps, _ := out.Fields.Get("capabilities")
		require.Equal(t, 3, caps.Len())
		assert.Equal(t, "read", caps.Items()[0].AsString())
		assert.Equal(t, "write", caps.Items()[1].AsString())
		assert.Equal(t, "review", caps.Items()[2].AsString())
	})

	t.Run("trait chain fills in around the base", func(t *testing.T) {
		m := New(nil)
		out, err := m.Merge(
			doc(t, "p1", "c: 5\n", ""),
			[]*persona.Trait{
				layer(t, "t1", "a: 1\nb: 2\n"),
				layer(t, "t2", "b: 3\nc: 4\n"),
			},
		)
		require.NoError(t, err)

		a, _ := out.Fields.Get("a")
		b, _ := out.Fields.Get("b")
		c, _ := out.Fields.Get("c")
		assert.Equal(t, 1.0, a.AsNumber())
		assert.Equal(t, 3.0, b.AsNumber())
		assert.Equal(t, 5.0, c.AsNumber())
		assert.Equal(t, []string{"t1", "t2"}, out.TraitOrder)
	})

	t.Run("source documents are not mutated", func(t *testing.T) {
		m := New(nil)
		d := doc(t, "p", "a: 1", "")
		tr := layer(t, "t1", "a: 2\nb: 3\n")
		_, err := m.Merge(d, []*persona.Trait{tr})
		require.NoError(t, err)

		orig, _ := d.Fields.Get("a")
		assert.Equal(t, 1.0, orig.AsNumber())
		assert.Equal(t, 1, d.Fields.Len())
	})
}

func TestMerger_ImmutableFields(t *testing.T) {
	t.Run("trait writing an existing immutable field fails", func(t *testing.T) {
		m := New([]string{"name"})
		_, err := m.Merge(
			doc(t, "p", "name: alice", ""),
			[]*persona.Trait{layer(t, "sneaky", "name: mallory")},
		)

		var ice *ImmutableFieldConflictError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, "name", ice.Field)
		assert.Equal(t, "sneaky", ice.Source)
		assert.Contains(t, err.Error(), `immutable field "name"`)
	})

	t.Run("identical value still fails", func(t *testing.T) {
		m := New([]string{"name"})
		_, err := m.Merge(
			doc(t, "p", "name: alice", ""),
			[]*persona.Trait{layer(t, "echo", "name: alice")},
		)
		require.Error(t, err)
	})

	t.Run("overrides layer is named as the source", func(t *testing.T) {
		m := New([]string{"name"})
		_, err := m.Merge(doc(t, "p", "name: alice", "name: bob"), nil)

		var ice *ImmutableFieldConflictError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, "overrides", ice.Source)
	})

	t.Run("second trait writing an immutable field fails", func(t *testing.T) {
		m := New([]string{"name"})
		_, err := m.Merge(
			doc(t, "p", "role: x", ""),
			[]*persona.Trait{
				layer(t, "first", "name: alice"),
				layer(t, "second", "name: bob"),
			},
		)

		var ice *ImmutableFieldConflictError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, "second", ice.Source)
	})

	t.Run("first write to an immutable field is allowed", func(t *testing.T) {
		m := New([]string{"name"})
		out, err := m.Merge(
			doc(t, "p", "role: x", ""),
			[]*persona.Trait{layer(t, "namer", "name: alice")},
		)
		require.NoError(t, err)
		assert.Equal(t, "alice", getString(t, out.Fields, "name"))
	})

	t.Run("dotted paths protect nested fields", func(t *testing.T) {
		m := New([]string{"identity.id"})
		_, err := m.Merge(
			doc(t, "p", "identity:\n  id: 7\n", ""),
			[]*persona.Trait{layer(t, "t1", "identity:\n  id: 8\n")},
		)

		var ice *ImmutableFieldConflictError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, "identity.id", ice.Field)
		assert.Equal(t, "t1", ice.Source)
	})

	t.Run("kind change cannot smuggle a protected nested write", func(t *testing.T) {
		m := New([]string{"identity.id"})
		_, err := m.Merge(
			doc(t, "p", "identity:\n  id: 7\n", ""),
			[]*persona.Trait{
				layer(t, "t1", "identity: plain"),
				layer(t, "t2", "identity:\n  id: 8\n"),
			},
		)

		var ice *ImmutableFieldConflictError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, "identity.id", ice.Field)
		assert.Equal(t, "t2", ice.Source)
	})
}

func TestMerger_Deterministic(t *testing.T) {
	m := New(nil)
	build := func() []byte {
		out, err := m.Merge(
			doc(t, "p", "name: p\nsettings:\n  a: 1\n", "priority: 9"),
			[]*persona.Trait{
				layer(t, "t1", "settings:\n  b: 2\ncapabilities: [x]\n"),
				layer(t, "t2", "capabilities: [y, x]\n"),
			},
		)
		require.NoError(t, err)
		data, err := out.Encode()
		require.NoError(t, err)
		return data
	}

	first := build()
	for i := 0; i < 10; i++ {
		require.Equal(t, first, build())
	}
}
