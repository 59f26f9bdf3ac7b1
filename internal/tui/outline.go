package tui

import (
	"strings"

	"github.com/joeycumines/elmhost/internal/value"
	"github.com/rivo/uniseg"
)

const indentUnit = "  "

// Outline renders v as indented lines. Mappings render as "key: value",
// lists as "- item", and nested containers open a new indentation level.
// Lines wider than width cells are truncated; width <= 0 disables
// truncation.
func Outline(v value.Value, width int) []string {
	var lines []string
	if isScalar(v) {
		lines = append(lines, scalar(v))
	} else {
		lines = outline(lines, v, "")
	}
	if width > 0 {
		for i, l := range lines {
			lines[i] = Truncate(l, width)
		}
	}
	return lines
}

func outline(lines []string, v value.Value, indent string) []string {
	switch v.Kind() {
	case value.KindMap:
		obj, _ := v.AsObject()
		obj.Range(func(k string, child value.Value) bool {
			if isScalar(child) {
				lines = append(lines, indent+k+": "+scalar(child))
			} else {
				lines = append(lines, indent+k+":")
				lines = outline(lines, child, indent+indentUnit)
			}
			return true
		})
	case value.KindList:
		items, _ := v.AsList()
		for _, child := range items {
			if isScalar(child) {
				lines = append(lines, indent+"- "+scalar(child))
			} else {
				lines = append(lines, indent+"-")
				lines = outline(lines, child, indent+indentUnit)
			}
		}
	}
	return lines
}

func isScalar(v value.Value) bool {
	switch v.Kind() {
	case value.KindMap, value.KindList:
		return v.Len() == 0
	default:
		return true
	}
}

func scalar(v value.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return v.String()
}

// Truncate shortens s to at most width terminal cells, ending with an
// ellipsis when anything was cut. Grapheme clusters are never split.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if used+w > width-1 {
			break
		}
		b.WriteString(g.Str())
		used += w
	}
	b.WriteString("…")
	return b.String()
}
