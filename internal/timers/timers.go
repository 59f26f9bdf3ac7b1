// Package timers implements the timer registry behind the setTimeout,
// setInterval, clearTimeout and clearInterval bindings.
//
// A [Registry] owns the mapping from timer id to cancellable scheduled work.
// Ids come from a single counter, start at 1, strictly increase and are never
// reused. The counter and the mapping are guarded by one mutex, so the
// registry may be used from any goroutine, although the bindings only ever
// touch it from the script context.
//
// The registry never runs callbacks itself. It arms work on a [Scheduler],
// which is expected to run fired callbacks on the script context, and it
// checks the mapping under the same mutex immediately before invoking the
// callback, which makes cancellation race-free against a concurrent firing.
package timers

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind selects one-shot or repeating behaviour.
type Kind uint8

const (
	// OneShot fires once after the delay and is then removed.
	OneShot Kind = iota
	// Repeating fires every interval, first after one interval, until
	// cancelled.
	Repeating
)

func (k Kind) String() string {
	switch k {
	case OneShot:
		return "oneshot"
	case Repeating:
		return "repeating"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MinInterval is the smallest period a repeating timer is armed with.
const MinInterval = time.Millisecond

var (
	// ErrClosed is returned by [Registry.Create] after [Registry.Close].
	ErrClosed = errors.New("timers: registry closed")
	// ErrNilCallback is returned by [Registry.Create] for a nil callback.
	ErrNilCallback = errors.New("timers: nil callback")
)

// Scheduler arms work on the script context.
//
// Implementations must not invoke fn before the arming call has returned,
// and the returned cancel func must be safe to call from any goroutine, more
// than once, including after fn has run.
type Scheduler interface {
	// AfterFunc runs fn once, after d.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// EveryFunc runs fn every d, the first run after d.
	EveryFunc(d time.Duration, fn func()) (cancel func())
}

// Registry maps timer ids to armed work.
type Registry struct {
	sched   Scheduler
	entries map[int64]*entry
	mu      sync.Mutex
	nextID  int64
	closed  bool
}

type entry struct {
	cancel func()
	kind   Kind
}

// NewRegistry returns an empty registry arming work on sched.
func NewRegistry(sched Scheduler) *Registry {
	if sched == nil {
		panic("timers: nil scheduler")
	}
	return &Registry{
		sched:   sched,
		entries: make(map[int64]*entry),
	}
}

// Create allocates the next id and arms onFire.
//
// A OneShot timer fires once after delay; its entry is removed immediately
// before onFire runs, so cancelling its id from inside onFire, or any time
// later, is a no-op. A Repeating timer ignores delay and fires every
// interval (at least [MinInterval]) until cancelled. Negative delays are
// treated as zero.
func (r *Registry) Create(kind Kind, delay, interval time.Duration, onFire func()) (int64, error) {
	if onFire == nil {
		return 0, ErrNilCallback
	}
	if kind != OneShot && kind != Repeating {
		return 0, fmt.Errorf("timers: unknown kind %d", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	r.nextID++
	id := r.nextID
	e := &entry{kind: kind}

	// armed while holding the lock: a fire cannot observe the map until the
	// entry and its cancel func are both in place
	switch kind {
	case OneShot:
		if delay < 0 {
			delay = 0
		}
		e.cancel = r.sched.AfterFunc(delay, func() { r.fire(id, onFire) })
	case Repeating:
		if interval < MinInterval {
			interval = MinInterval
		}
		e.cancel = r.sched.EveryFunc(interval, func() { r.fire(id, onFire) })
	}
	r.entries[id] = e

	return id, nil
}

func (r *Registry) fire(id int64, onFire func()) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && e.kind == OneShot {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		onFire()
	}
}

// Cancel disarms id and removes it, reporting whether it was live. Unknown,
// fired and already cancelled ids are a silent no-op.
func (r *Registry) Cancel(id int64) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
	return ok
}

// Has reports whether id is live.
func (r *Registry) Has(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len is the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close cancels every live timer and rejects further creation. It is safe to
// call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[int64]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
}
