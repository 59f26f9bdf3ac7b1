package tui

import (
	"testing"

	"github.com/joeycumines/elmhost/internal/value"
	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
)

func TestOutline(t *testing.T) {
	tree := value.MapOf(
		"title", "Counter",
		"count", 3,
		"items", []any{"a", map[string]any{"b": true}, []any{}},
		"empty", map[string]any{},
		"none", nil,
	)
	assert.Equal(t, []string{
		"title: Counter",
		"count: 3",
		"items:",
		"  - a",
		"  -",
		"    b: true",
		"  - []",
		"empty: {}",
		"none: null",
	}, Outline(tree, 0))
}

func TestOutline_Scalars(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Outline(value.String("hello"), 0))
	assert.Equal(t, []string{"null"}, Outline(value.Null(), 0))
	assert.Equal(t, []string{"[]"}, Outline(value.List(), 0))
}

func TestOutline_Truncates(t *testing.T) {
	lines := Outline(value.MapOf("label", "a fairly long value"), 10)
	assert.Equal(t, []string{"label: a …"}, lines)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "", Truncate("anything", 0))
	assert.Equal(t, "…", Truncate("ab", 1))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))

	wide := Truncate("日本語テキスト", 7)
	assert.Equal(t, "日本語…", wide)
	assert.LessOrEqual(t, uniseg.StringWidth(wide), 7)

	// flag emoji is one grapheme cluster of two code points
	flags := Truncate("🇦🇺🇦🇺🇦🇺", 5)
	assert.Equal(t, "🇦🇺🇦🇺…", flags)
}

func TestThumbBounds(t *testing.T) {
	for _, tc := range []struct {
		name                    string
		height, content, offset int
		top, size               int
	}{
		{"fits", 5, 3, 0, 0, 5},
		{"top", 10, 100, 0, 0, 1},
		{"bottom", 10, 100, 90, 9, 1},
		{"half", 10, 20, 5, 2, 5},
		{"clamped offset", 10, 20, 50, 5, 5},
		{"negative offset", 10, 20, -3, 0, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			top, size := thumbBounds(tc.height, tc.content, tc.offset)
			assert.Equal(t, tc.top, top, "top")
			assert.Equal(t, tc.size, size, "size")
		})
	}
}

func TestScrollbarView(t *testing.T) {
	assert.Empty(t, newScrollbar().View(0, 10, 0))
	out := newScrollbar().View(4, 2, 0)
	assert.Equal(t, 4, len(splitLines(out)))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
