package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joeycumines/elmhost/internal/value"
)

// Sender is the part of *tea.Program used by Renderer.
type Sender interface {
	Send(msg tea.Msg)
}

// Renderer forwards render calls to a running program as messages. Send
// blocks until the program accepts the message, so calls keep their order.
type Renderer struct {
	p Sender
}

func NewRenderer(p Sender) *Renderer {
	return &Renderer{p: p}
}

func (r *Renderer) InitialRender(tree, handlers value.Value) error {
	r.p.Send(InitialRenderMsg{Tree: tree, Handlers: handlers})
	return nil
}

func (r *Renderer) ApplyPatches(patches value.Value) error {
	r.p.Send(PatchesMsg{Patches: patches})
	return nil
}
