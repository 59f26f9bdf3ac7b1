package tui

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joeycumines/elmhost/internal/scripting"
	"github.com/joeycumines/elmhost/internal/value"
)

// DefaultRefreshInterval is how often the diagnostics pane is refreshed.
const DefaultRefreshInterval = 250 * time.Millisecond

const maxPatchLog = 500

// Messages delivered by Renderer.
type (
	InitialRenderMsg struct {
		Tree     value.Value
		Handlers value.Value
	}
	PatchesMsg struct {
		Patches value.Value
	}
)

type refreshMsg time.Time

type pane int

const (
	panePatches pane = iota
	paneDiagnostics
)

func (p pane) String() string {
	if p == paneDiagnostics {
		return "diagnostics"
	}
	return "patches"
}

// Options configure a Model.
type Options struct {
	// Dispatch sends an event to the program.
	Dispatch func(id uint64, name string, data value.Value) error
	// Diagnostics returns the most recent n diagnostic entries.
	Diagnostics func(n int) []scripting.LogEntry
	Logger      *slog.Logger
	Title       string
	// RefreshInterval defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model is the bubbletea model of the terminal host.
type Model struct {
	opts     Options
	doc      Document
	log      viewport.Model
	bar      scrollbar
	patches  []string
	status   string
	statusOK bool
	pane     pane
	width    int
	height   int
	nPatches int
}

// NewModel creates a Model. Dispatch is required.
func NewModel(opts Options) Model {
	if opts.Dispatch == nil {
		panic("tui: NewModel requires Dispatch")
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = func(int) []scripting.LogEntry { return nil }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Title == "" {
		opts.Title = "elmhost"
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return Model{
		opts:     opts,
		log:      viewport.New(80, 8),
		bar:      newScrollbar(),
		width:    80,
		height:   24,
		status:   "waiting for initial render",
		statusOK: true,
	}
}

// Document returns the current document.
func (m Model) Document() Document { return m.doc }

func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) refresh() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.syncLog()
		return m, nil

	case InitialRenderMsg:
		m.doc.Reset(msg.Tree, msg.Handlers)
		m.setStatus(true, "rendered %d handler(s)", len(m.doc.Handlers))
		m.syncLog()
		return m, nil

	case PatchesMsg:
		m.nPatches++
		m.patches = append(m.patches, fmt.Sprintf("#%d %s", m.nPatches, msg.Patches))
		if over := len(m.patches) - maxPatchLog; over > 0 {
			m.patches = append(m.patches[:0], m.patches[over:]...)
		}
		if err := m.doc.Apply(msg.Patches); err != nil {
			m.opts.Logger.Warn("patch not applied", "patch", m.nPatches, "error", err)
			m.setStatus(false, "patch #%d: %v", m.nPatches, err)
		}
		m.syncLog()
		return m, nil

	case refreshMsg:
		m.syncLog()
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if h, ok := m.doc.HandlerFor(key); ok {
		if err := m.opts.Dispatch(h.ID, h.Name, value.MapOf("key", key)); err != nil {
			m.setStatus(false, "%s: %v", h.Name, err)
		} else {
			m.setStatus(true, "sent %s", h.Name)
		}
		return m, nil
	}
	switch key {
	case "q", "esc":
		return m, tea.Quit
	case "tab":
		m.pane = (m.pane + 1) % 2
		m.syncLog()
		return m, nil
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(ok bool, format string, args ...any) {
	m.statusOK = ok
	m.status = fmt.Sprintf(format, args...)
}

// logHeight is the pane height: a third of the screen, at least three rows.
func (m Model) logHeight() int {
	return max(m.height/3, 3)
}

func (m *Model) resize() {
	m.log.Width = max(m.width-1, 1)
	m.log.Height = m.logHeight()
}

func (m *Model) syncLog() {
	var lines []string
	switch m.pane {
	case panePatches:
		lines = m.patches
	case paneDiagnostics:
		for _, e := range m.opts.Diagnostics(maxPatchLog) {
			lines = append(lines, formatEntry(e))
		}
	}
	follow := m.log.AtBottom()
	m.log.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.log.GotoBottom()
	}
}

func formatEntry(e scripting.LogEntry) string {
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		if k != "stack" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
	}
	return b.String()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	if m.statusOK {
		b.WriteString(dimStyle.Render("  " + m.status))
	} else {
		b.WriteString(errStyle.Render("  " + m.status))
	}
	b.WriteByte('\n')

	treeRows := max(m.height-m.logHeight()-4, 1)
	var tree []string
	if m.doc.Rendered {
		tree = Outline(m.doc.Tree, m.width)
	}
	if len(tree) > treeRows {
		tree = append(tree[:treeRows-1], dimStyle.Render(fmt.Sprintf("… %d more", len(tree)-treeRows+1)))
	}
	for len(tree) < treeRows {
		tree = append(tree, "")
	}
	b.WriteString(strings.Join(tree, "\n"))
	b.WriteByte('\n')

	b.WriteString(headerStyle.Render(Truncate(fmt.Sprintf("── %s (tab to switch) ", m.pane), m.width)))
	b.WriteByte('\n')
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.log.View(),
		m.bar.View(m.log.Height, m.log.TotalLineCount(), m.log.YOffset),
	))
	b.WriteByte('\n')
	b.WriteString(m.helpLine())
	return b.String()
}

func (m Model) helpLine() string {
	parts := make([]string, 0, len(m.doc.Handlers)+1)
	for _, h := range m.doc.Handlers {
		if h.Key != "" {
			parts = append(parts, keyStyle.Render(h.Key)+" "+h.Name)
		}
	}
	parts = append(parts, keyStyle.Render("q")+" quit")
	return strings.Join(parts, dimStyle.Render(" • "))
}
