package bridge

import (
	"sync/atomic"

	"github.com/joeycumines/elmhost/internal/scripting"
	"github.com/joeycumines/elmhost/internal/value"
)

// Event is one UI-originated occurrence.
type Event struct {
	Data value.Value
	Name string
	ID   uint64
}

// EventChannel delivers events to the program's event entry point on the
// script context. Events dispatched in sequence are delivered in that
// sequence, interleaved FIFO with timer fires and any other queued calls.
type EventChannel struct {
	host   *scripting.Host
	entry  string
	closed atomic.Bool
}

// NewEventChannel routes events to the host's configured event entry point.
func NewEventChannel(host *scripting.Host) *EventChannel {
	return &EventChannel{host: host, entry: host.Config().EventEntry}
}

// DispatchEvent queues a call of the event entry point with (id, name, data)
// and returns without waiting for it. The only error is a failure to queue;
// errors raised by the program go to the diagnostic sink.
func (c *EventChannel) DispatchEvent(id uint64, name string, data value.Value) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.host.InvokeProgram(c.entry, value.Number(float64(id)), value.String(name), data)
}

// Dispatch is DispatchEvent for an Event.
func (c *EventChannel) Dispatch(ev Event) error {
	return c.DispatchEvent(ev.ID, ev.Name, ev.Data)
}

// Close rejects further events. Events already queued still run.
func (c *EventChannel) Close() {
	c.closed.Store(true)
}
