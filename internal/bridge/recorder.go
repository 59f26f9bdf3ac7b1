package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/joeycumines/elmhost/internal/value"
)

// Call is one render call observed by a Recorder.
type Call struct {
	Args   []value.Value
	Method string
}

// Recorder is a Renderer that records every call. It is safe for concurrent
// use, and is what tests and the headless host observe a program through.
type Recorder struct {
	calls   []Call
	changed chan struct{}
	mu      sync.Mutex
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{changed: make(chan struct{})}
}

func (r *Recorder) InitialRender(tree, handlers value.Value) error {
	r.add(Call{Method: "initialRender", Args: []value.Value{tree, handlers}})
	return nil
}

func (r *Recorder) ApplyPatches(patches value.Value) error {
	r.add(Call{Method: "applyPatches", Args: []value.Value{patches}})
	return nil
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	close(r.changed)
	r.changed = make(chan struct{})
}

// Calls returns a copy of every call, in delivery order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Patches returns the payload of every applyPatches call, in delivery order.
func (r *Recorder) Patches() []value.Value {
	var out []value.Value
	for _, c := range r.Calls() {
		if c.Method == "applyPatches" {
			out = append(out, c.Args[0])
		}
	}
	return out
}

// WaitFor blocks until at least n calls have been recorded or ctx is done,
// returning the calls seen so far.
func (r *Recorder) WaitFor(ctx context.Context, n int) ([]Call, error) {
	for {
		r.mu.Lock()
		if len(r.calls) >= n {
			out := append([]Call(nil), r.calls...)
			r.mu.Unlock()
			return out, nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return r.Calls(), fmt.Errorf("waiting for %d render calls: %w", n, ctx.Err())
		}
	}
}

// LogRenderer writes one line per render call to w: the method name followed
// by the JSON encoding of each argument.
type LogRenderer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLogRenderer returns a LogRenderer writing to w.
func NewLogRenderer(w io.Writer) *LogRenderer {
	return &LogRenderer{w: w}
}

func (l *LogRenderer) InitialRender(tree, handlers value.Value) error {
	return l.write("initialRender", tree, handlers)
}

func (l *LogRenderer) ApplyPatches(patches value.Value) error {
	return l.write("applyPatches", patches)
}

func (l *LogRenderer) write(method string, args ...value.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := method
	for _, a := range args {
		line += " " + a.String()
	}
	_, err := io.WriteString(l.w, line+"\n")
	return err
}

var (
	_ Renderer = (*Recorder)(nil)
	_ Renderer = (*LogRenderer)(nil)
)
