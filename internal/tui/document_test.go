package tui

import (
	"testing"

	"github.com/joeycumines/elmhost/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(pairs ...any) value.Value { return value.MapOf(pairs...) }

func path(segs ...any) []any { return segs }

func TestParseHandlers(t *testing.T) {
	hs := ParseHandlers(value.List(
		value.MapOf("id", 1, "name", "inc", "key", "+"),
		value.MapOf("id", 2, "name", "noKey"),
		value.MapOf("name", "missingID"),
		value.MapOf("id", -1, "name", "negative"),
		value.MapOf("id", 3, "name", ""),
		value.String("junk"),
	))
	assert.Equal(t, []Handler{{ID: 1, Name: "inc", Key: "+"}, {ID: 2, Name: "noKey"}}, hs)
	assert.Nil(t, ParseHandlers(value.Null()))
}

func TestDocument_Reset(t *testing.T) {
	var d Document
	d.Reset(value.MapOf("n", 1), value.List(value.MapOf("id", 9, "name", "x", "key", "x")))
	assert.True(t, d.Rendered)
	assert.Equal(t, `{"n":1}`, d.Tree.String())

	h, ok := d.HandlerFor("x")
	require.True(t, ok)
	assert.Equal(t, uint64(9), h.ID)
	_, ok = d.HandlerFor("")
	assert.False(t, ok)
}

func TestDocument_ApplyOps(t *testing.T) {
	var d Document
	d.Reset(value.MapOf("title", "t", "items", []any{"a", "b"}), value.List())
	before := d.Tree

	require.NoError(t, d.Apply(value.List(
		op("op", "set", "path", path("count"), "value", 3),
		op("op", "set", "path", path("items", 2), "value", "c"),
		op("op", "set", "path", path("items", 0), "value", "A"),
		op("op", "set", "path", path("nested", "deep"), "value", true),
		op("op", "remove", "path", path("title")),
		op("op", "remove", "path", path("items", 1)),
	)))
	assert.Equal(t, `{"items":["A","c"],"count":3,"nested":{"deep":true}}`, d.Tree.String())
	assert.Equal(t, `{"title":"t","items":["a","b"]}`, before.String(), "earlier trees are not mutated")

	require.NoError(t, d.Apply(op("op", "handlers", "value", []any{map[string]any{"id": 4, "name": "go", "key": "g"}})))
	_, ok := d.HandlerFor("g")
	assert.True(t, ok)

	require.NoError(t, d.Apply(op("op", "replace", "value", "plain")))
	assert.Equal(t, `"plain"`, d.Tree.String())

	require.NoError(t, d.Apply(op("op", "remove")))
	assert.True(t, d.Tree.IsNull())
}

func TestDocument_ApplyErrors(t *testing.T) {
	var d Document
	d.Reset(value.MapOf("list", []any{1}), value.List())

	for name, patch := range map[string]value.Value{
		"no op":        value.MapOf("x", 1),
		"unknown op":   op("op", "frobnicate"),
		"scalar":       value.Number(1),
		"bad path":     op("op", "set", "path", "count", "value", 1),
		"out of range": op("op", "set", "path", path("list", 5), "value", 1),
		"fraction":     op("op", "set", "path", path("list", 0.5), "value", 1),
		"index map":    op("op", "set", "path", path(0), "value", 1),
		"key on list":  op("op", "set", "path", path("list", "k"), "value", 1),
		"bad segment":  op("op", "set", "path", path(true), "value", 1),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, d.Apply(patch))
		})
	}
	assert.ErrorIs(t, d.Apply(value.String("x")), ErrUnsupportedPatch)
	assert.Equal(t, `{"list":[1]}`, d.Tree.String())
}

func TestDocument_ApplyPartialList(t *testing.T) {
	var d Document
	d.Reset(value.MapOf(), value.List())
	err := d.Apply(value.List(
		op("op", "set", "path", path("a"), "value", 1),
		op("op", "bogus"),
		op("op", "set", "path", path("b"), "value", 2),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op 1")
	assert.Equal(t, `{"a":1}`, d.Tree.String())
}
