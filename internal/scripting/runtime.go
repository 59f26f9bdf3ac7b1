package scripting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/elmhost/internal/goroutineid"
	"github.com/joeycumines/elmhost/internal/timers"
)

// ErrNotRunning is returned when work is submitted to a runtime whose event
// loop has not started or has been closed.
var ErrNotRunning = errors.New("scripting: event loop not running")

// Runtime owns the goja runtime and the event loop that is the script
// context: a single serial queue through which every call into program code
// is funnelled.
//
// Key Design Principles:
//   - goja.Runtime is NOT goroutine-safe; all access MUST happen via RunOnLoop
//   - Jobs run in the order they were enqueued, timer fires included
//   - Lifecycle: the loop starts in NewRuntime and stops in Close
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	// vm is captured on the loop goroutine at start, and only used by Do when
	// the caller is already on that goroutine.
	vm    *goja.Runtime
	owner goroutineid.Owner

	// timeout bounds how long RunOnLoopSync waits; it does not interrupt the
	// job itself.
	timeout time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx        context.Context
	cancel     context.CancelFunc
	terminated chan struct{}
}

// DefaultSyncTimeout is the default bound for RunOnLoopSync waits.
const DefaultSyncTimeout = 5 * time.Second

// closeGrace is how long Close lets the running job finish before it
// interrupts the script.
const closeGrace = 100 * time.Millisecond

// RuntimeOption configures NewRuntime.
type RuntimeOption func(*Runtime)

// WithRegistry shares an existing require registry, so native modules
// registered elsewhere are visible to require() in the program.
func WithRegistry(registry *require.Registry) RuntimeOption {
	return func(rt *Runtime) { rt.registry = registry }
}

// WithSyncTimeout overrides DefaultSyncTimeout. Zero waits indefinitely.
func WithSyncTimeout(timeout time.Duration) RuntimeOption {
	return func(rt *Runtime) { rt.timeout = timeout }
}

// NewRuntime creates and starts the script context. Call Close when done;
// cancelling ctx closes it too.
func NewRuntime(ctx context.Context, opts ...RuntimeOption) (*Runtime, error) {
	childCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		timeout:    DefaultSyncTimeout,
		ctx:        childCtx,
		cancel:     cancel,
		terminated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.registry == nil {
		rt.registry = require.NewRegistry()
	}

	// console is installed by the host, routed to the diagnostic sink
	rt.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(rt.registry),
		eventloop.EnableConsole(false),
	)
	rt.loop.Start()

	ready := make(chan struct{})
	ok := rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		rt.vm = vm
		rt.owner.Claim()
		close(ready)
	})
	if !ok {
		cancel()
		rt.loop.Stop()
		return nil, fmt.Errorf("failed to initialize runtime: %w", ErrNotRunning)
	}
	<-ready

	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() {
			_ = rt.Close()
		})
	}

	return rt, nil
}

// Registry returns the require registry the loop was built with.
func (rt *Runtime) Registry() *require.Registry {
	return rt.registry
}

// Close stops the event loop. Jobs still queued are discarded; callers that
// need them to run should Barrier first. Script code still running after
// closeGrace is interrupted, and pending timers are cleared. Safe to call
// multiple times; every call returns once the loop has stopped. It must not
// be called from the loop goroutine.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		<-rt.terminated
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()
	defer close(rt.terminated)

	rt.cancel()

	stopped := make(chan struct{})
	go func() {
		rt.loop.Stop()
		close(stopped)
	}()
	grace := time.NewTimer(closeGrace)
	defer grace.Stop()
	select {
	case <-stopped:
	case <-grace.C:
		rt.Interrupt(ErrNotRunning)
		<-stopped
	}

	// Terminate cancels armed timers, so none is left blocked on the loop
	rt.loop.Terminate()
	rt.owner.Release()
	return nil
}

// Done is closed once Close has been called.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// IsRunning reports whether the loop accepts work.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// OnLoop reports whether the caller is the loop goroutine.
func (rt *Runtime) OnLoop() bool {
	return rt.owner.Held()
}

// RunOnLoop enqueues fn on the script context and returns immediately. It
// returns false if the loop is not running.
//
// IMPORTANT: All goja.Runtime operations must happen inside this callback.
// The goja.Runtime passed to the callback must not be used outside the callback.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return false
	}
	rt.mu.RUnlock()

	return rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		if rt.ctx.Err() != nil {
			return
		}
		fn(vm)
	})
}

// RunOnLoopSync enqueues fn and waits for it. It must not be called from the
// loop goroutine; see Do.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	rt.mu.RLock()
	timeout := rt.timeout
	rt.mu.RUnlock()

	errCh := make(chan error, 1)
	if !rt.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- fn(vm)
	}) {
		return ErrNotRunning
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return fmt.Errorf("runtime stopped before completion: %w", ErrNotRunning)
	case <-expired:
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Do runs fn on the script context and waits. When the caller is already on
// the loop goroutine fn runs inline, which avoids deadlocking on itself.
func (rt *Runtime) Do(fn func(*goja.Runtime) error) error {
	if !rt.IsRunning() {
		return ErrNotRunning
	}
	if rt.OnLoop() {
		return fn(rt.vm)
	}
	return rt.RunOnLoopSync(fn)
}

// Barrier waits until every job enqueued before the call has run. Timer
// fires that become due while waiting may run before it returns.
func (rt *Runtime) Barrier() error {
	if rt.OnLoop() {
		return nil
	}
	return rt.RunOnLoopSync(func(*goja.Runtime) error { return nil })
}

// Interrupt aborts the currently running script code with v. It is safe to
// call from any goroutine.
func (rt *Runtime) Interrupt(v any) {
	if rt.vm != nil {
		rt.vm.Interrupt(v)
	}
}

// Scheduler returns a timers.Scheduler that arms work on this loop. Fired
// work runs on the script context.
func (rt *Runtime) Scheduler() timers.Scheduler {
	return loopScheduler{rt: rt}
}

type loopScheduler struct {
	rt *Runtime
}

// run skips work that fires while the runtime is closing.
func (s loopScheduler) run(fn func()) func(*goja.Runtime) {
	return func(*goja.Runtime) {
		if s.rt.ctx.Err() == nil {
			fn()
		}
	}
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := s.rt.loop.SetTimeout(s.run(fn), d)
	var once sync.Once
	return func() { once.Do(func() { s.rt.loop.ClearTimeout(t) }) }
}

func (s loopScheduler) EveryFunc(d time.Duration, fn func()) func() {
	iv := s.rt.loop.SetInterval(s.run(fn), d)
	var once sync.Once
	return func() { once.Do(func() { s.rt.loop.ClearInterval(iv) }) }
}
