package bridge

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/elmhost/internal/scripting"
	"github.com/joeycumines/elmhost/internal/value"
)

// ErrAlreadyRendered is reported when a strict bridge drops a second
// initialRender.
var ErrAlreadyRendered = errors.New("bridge: initial render already delivered")

// Renderer is the UI collaborator. Its methods run on the UI context, one at
// a time, in the order the program issued the corresponding calls. Payloads
// are opaque to the bridge.
type Renderer interface {
	InitialRender(tree, handlers value.Value) error
	ApplyPatches(patches value.Value) error
}

// RenderBridge implements scripting.UI, handing each call to a Renderer on
// the UI context. Calls never block the program and never report back to
// it; failures go to the sink.
type RenderBridge struct {
	ui       *UIContext
	renderer Renderer
	sink     scripting.Sink
	strict   bool

	rendered atomic.Bool
	initial  atomic.Int64
	patches  atomic.Int64
}

// RenderOption configures NewRenderBridge.
type RenderOption func(*RenderBridge)

// WithStrictInitialRender drops, and reports, every initialRender after the
// first. By default repeated calls are forwarded.
func WithStrictInitialRender(strict bool) RenderOption {
	return func(b *RenderBridge) { b.strict = strict }
}

// NewRenderBridge creates a bridge delivering to renderer on ui.
func NewRenderBridge(ui *UIContext, renderer Renderer, sink scripting.Sink, opts ...RenderOption) *RenderBridge {
	b := &RenderBridge{ui: ui, renderer: renderer, sink: sink}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InitialRender forwards the initial tree and handler descriptors.
func (b *RenderBridge) InitialRender(tree, handlers value.Value) {
	if b.rendered.Swap(true) && b.strict {
		b.sink.Exception(scripting.PhaseBinding, ErrAlreadyRendered)
		return
	}
	b.initial.Add(1)
	b.submit("initialRender", func() error { return b.renderer.InitialRender(tree, handlers) })
}

// ApplyPatches forwards one patch list. Patch lists are delivered whole, in
// issue order, and never merged.
func (b *RenderBridge) ApplyPatches(patches value.Value) {
	b.patches.Add(1)
	b.submit("applyPatches", func() error { return b.renderer.ApplyPatches(patches) })
}

// Counts reports how many initial renders and patch lists were handed off.
func (b *RenderBridge) Counts() (initial, patches int64) {
	return b.initial.Load(), b.patches.Load()
}

func (b *RenderBridge) submit(op string, fn func() error) {
	err := b.ui.Submit(func() {
		if err := fn(); err != nil {
			b.sink.Exception(scripting.PhaseRender, fmt.Errorf("%s: %w", op, err))
		}
	})
	if err != nil {
		b.sink.Exception(scripting.PhaseRender, fmt.Errorf("%s: %w", op, err))
	}
}

var _ scripting.UI = (*RenderBridge)(nil)
