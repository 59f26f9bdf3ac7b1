package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// scrollbar renders a vertical bar for a pane of height rows showing
// content lines from offset. The thumb size is proportional to the visible
// share of the content; content that fits renders a full-height thumb.
type scrollbar struct {
	thumb lipgloss.Style
	track lipgloss.Style
}

func newScrollbar() scrollbar {
	return scrollbar{
		thumb: lipgloss.NewStyle().Background(lipgloss.Color("57")),
		track: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (s scrollbar) View(height, content, offset int) string {
	if height <= 0 {
		return ""
	}
	top, size := thumbBounds(height, content, offset)
	var b strings.Builder
	for i := 0; i < height; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		if top <= i && i < top+size {
			// non-breaking space keeps lipgloss from dropping the background
			b.WriteString(s.thumb.Render("\u00a0"))
		} else {
			b.WriteString(s.track.Render("│"))
		}
	}
	return b.String()
}

func thumbBounds(height, content, offset int) (top, size int) {
	if content <= height {
		return 0, height
	}
	maxOffset := content - height
	offset = min(max(offset, 0), maxOffset)

	size = min(max(height*height/content, 1), height)
	maxTop := height - size
	if maxTop > 0 {
		top = offset * maxTop / maxOffset
	}
	return top, size
}
