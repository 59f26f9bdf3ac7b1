// Package bridge connects a program's script context to a UI collaborator.
//
// The UI context is a single serial queue. Render calls issued by the program
// are handed to it in the order they were issued, from the single script
// goroutine, and it runs them in that order. Events flow the other way
// through an [EventChannel], which queues them on the script context.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goeventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/elmhost/internal/scripting"
)

// ErrClosed is returned when work is handed to a closed bridge component.
var ErrClosed = errors.New("bridge: closed")

// UIContext is the UI execution context, backed by a go-eventloop Loop. Its
// queue is FIFO, so work submitted by one goroutine runs in submission order.
type UIContext struct {
	loop   *goeventloop.Loop
	sink   scripting.Sink
	done   chan struct{}
	runErr error

	closeOnce sync.Once
	closeErr  error
}

// NewUIContext starts a UI context. Panics raised by submitted work are
// recovered and reported to sink.
func NewUIContext(sink scripting.Sink) (*UIContext, error) {
	if sink == nil {
		return nil, errors.New("bridge: nil sink")
	}
	loop, err := goeventloop.New()
	if err != nil {
		return nil, fmt.Errorf("ui context: %w", err)
	}
	u := &UIContext{
		loop: loop,
		sink: sink,
		done: make(chan struct{}),
	}
	go func() {
		defer close(u.done)
		u.runErr = loop.Run(context.Background())
	}()

	// Shutdown of a loop that never ran discards its queue, so wait for the
	// loop to be processing work before handing it out.
	started := make(chan struct{})
	if err := loop.Submit(func() { close(started) }); err != nil {
		return nil, fmt.Errorf("ui context: %w", err)
	}
	select {
	case <-started:
	case <-u.done:
		return nil, fmt.Errorf("ui context: loop exited: %v", u.runErr)
	}
	return u, nil
}

// Submit enqueues fn on the UI context and returns immediately.
func (u *UIContext) Submit(fn func()) error {
	if err := u.loop.Submit(func() { u.run(fn) }); err != nil {
		if errors.Is(err, goeventloop.ErrLoopTerminated) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (u *UIContext) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			u.sink.Exception(scripting.PhaseRender, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// Barrier waits until all work submitted before the call has run.
func (u *UIContext) Barrier(ctx context.Context) error {
	reached := make(chan struct{})
	if err := u.Submit(func() { close(reached) }); err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-u.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued work and stops the loop. If ctx is done first, the
// loop is told to stop without waiting and ctx's error is returned. Safe to
// call multiple times, but not from work running on the UI context.
func (u *UIContext) Close(ctx context.Context) error {
	u.closeOnce.Do(func() {
		err := u.loop.Shutdown(ctx)
		if err != nil && !errors.Is(err, goeventloop.ErrLoopTerminated) {
			u.closeErr = err
			_ = u.loop.Close()
			return
		}
		<-u.done
	})
	return u.closeErr
}

// Done is closed once the loop has exited.
func (u *UIContext) Done() <-chan struct{} {
	return u.done
}
