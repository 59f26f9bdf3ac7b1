package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/elmhost/internal/scripting"
	"github.com/joeycumines/elmhost/internal/timers"
	"github.com/joeycumines/elmhost/internal/value"
)

// DefaultDrainTimeout bounds how long Close waits for the UI context to drain.
const DefaultDrainTimeout = 5 * time.Second

// Options configures a Session.
type Options struct {
	// Logger receives diagnostics. A fresh in-memory logger is used if nil.
	Logger *scripting.Logger
	// Host names the program resource and entry points.
	Host scripting.HostConfig
	// SyncTimeout bounds synchronous waits on the script context.
	SyncTimeout time.Duration
	// DrainTimeout bounds the UI drain in Close.
	DrainTimeout time.Duration
	// StrictInitialRender drops every initialRender after the first.
	StrictInitialRender bool
}

// DefaultOptions returns options for a compiled Elm program.
func DefaultOptions() Options {
	return Options{
		Host:         scripting.DefaultHostConfig(),
		SyncTimeout:  scripting.DefaultSyncTimeout,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Session is one running program: its script context, UI context, and the
// bridge between them.
//
// Lifecycle: NewSession constructs and starts both contexts, Start launches
// the program, and Close tears everything down in this order: the event
// channel stops accepting, timers are cancelled, queued script work drains
// and the script context stops, then queued UI work drains and the UI
// context stops.
type Session struct {
	id     string
	logger *scripting.Logger
	opts   Options

	rt     *scripting.Runtime
	host   *scripting.Host
	ui     *UIContext
	render *RenderBridge
	events *EventChannel

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewSession creates a session delivering render calls to renderer.
// Cancelling ctx closes the session.
func NewSession(ctx context.Context, renderer Renderer, opts Options) (*Session, error) {
	if renderer == nil {
		return nil, errors.New("bridge: nil renderer")
	}
	if opts.Logger == nil {
		opts.Logger = scripting.NewLogger(scripting.DefaultMaxEntries, nil)
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	s := &Session{
		id:   uuid.NewString(),
		opts: opts,
		done: make(chan struct{}),
	}
	s.logger = opts.Logger.With("session", s.id)

	ui, err := NewUIContext(s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.ui = ui

	rtOpts := []scripting.RuntimeOption{}
	if opts.SyncTimeout > 0 {
		rtOpts = append(rtOpts, scripting.WithSyncTimeout(opts.SyncTimeout))
	}
	rt, err := scripting.NewRuntime(context.Background(), rtOpts...)
	if err != nil {
		_ = ui.Close(context.Background())
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.rt = rt

	s.render = NewRenderBridge(ui, renderer, s.logger, WithStrictInitialRender(opts.StrictInitialRender))
	s.host = scripting.NewHost(rt, s.render, s.logger, opts.Host)
	s.events = NewEventChannel(s.host)

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = s.Close() })
	}

	s.logger.Slog().Debug("session created", "source", scripting.SourceBridge)
	return s, nil
}

// ID is the session's unique identifier, attached to every diagnostic.
func (s *Session) ID() string { return s.id }

// Logger returns the session's diagnostic logger.
func (s *Session) Logger() *scripting.Logger { return s.logger }

// Host returns the script engine host.
func (s *Session) Host() *scripting.Host { return s.host }

// Timers returns the session's timer registry.
func (s *Session) Timers() *timers.Registry { return s.host.Timers() }

// Render returns the render bridge.
func (s *Session) Render() *RenderBridge { return s.render }

// Events returns the session's event channel.
func (s *Session) Events() *EventChannel { return s.events }

// Start launches the program from loader. It does not wait for the program.
func (s *Session) Start(loader scripting.ResourceLoader) error {
	if s.closed() {
		return ErrClosed
	}
	return s.host.Initialize(loader)
}

// DispatchEvent queues an event for the program. See EventChannel.
func (s *Session) DispatchEvent(id uint64, name string, data value.Value) error {
	return s.events.DispatchEvent(id, name, data)
}

// Barrier waits until all script work queued before the call has run, and
// then until every render call that work issued has been delivered.
func (s *Session) Barrier(ctx context.Context) error {
	if err := s.rt.Barrier(); err != nil {
		return err
	}
	return s.ui.Barrier(ctx)
}

// Close shuts the session down; see Session. Safe to call multiple times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		defer close(s.done)

		s.events.Close()
		s.host.Close()

		// queued script work may still issue render calls, so drain it
		// before the UI context
		if err := s.rt.Barrier(); err != nil && !errors.Is(err, scripting.ErrNotRunning) {
			s.logger.Slog().Warn("script drain incomplete", "source", scripting.SourceBridge, "error", err)
		}
		_ = s.rt.Close()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DrainTimeout)
		defer cancel()
		s.closeErr = s.ui.Close(ctx)

		s.logger.Slog().Debug("session closed", "source", scripting.SourceBridge)
	})
	return s.closeErr
}

// Done is closed once Close has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
