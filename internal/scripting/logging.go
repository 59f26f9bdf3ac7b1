package scripting

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Phase names the part of the program lifecycle a diagnostic came from.
type Phase string

const (
	PhaseLoad     Phase = "load"
	PhaseEvaluate Phase = "evaluate"
	PhaseStart    Phase = "start"
	PhaseTimer    Phase = "timer"
	PhaseEvent    Phase = "event"
	PhaseBinding  Phase = "binding"
	PhaseRender   Phase = "render"
)

// Diagnostic sources, recorded as the "source" attribute.
const (
	SourceConsole   = "console"
	SourceException = "exception"
	SourceBridge    = "bridge"
)

// Sink receives console output and uncaught exceptions from the script
// context. Implementations must be safe for concurrent use.
type Sink interface {
	Console(level slog.Level, msg string)
	Exception(phase Phase, err error)
}

// LogEntry represents a single recorded diagnostic.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs"`
}

// Logger is the default Sink. Records are kept in a bounded in-memory ring,
// for display and inspection, and optionally forwarded to another handler.
type Logger struct {
	logger *slog.Logger
	ring   *ringBuffer
}

// DefaultMaxEntries bounds the ring when NewLogger is given a non-positive
// size.
const DefaultMaxEntries = 1000

// NewLogger creates a Logger holding at most maxEntries records. When next is
// non-nil every record is also passed to it.
func NewLogger(maxEntries int, next slog.Handler) *Logger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	ring := &ringBuffer{
		entries: make([]LogEntry, 0, maxEntries),
		maxSize: maxEntries,
	}
	return &Logger{
		logger: slog.New(&ringHandler{ring: ring, next: next}),
		ring:   ring,
	}
}

// Slog exposes the underlying structured logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// With returns a Logger sharing the same ring, with args added to every
// record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), ring: l.ring}
}

// Console records a console.* call.
func (l *Logger) Console(level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg, slog.String("source", SourceConsole))
}

// Exception records an uncaught error. Script exceptions keep their stack.
func (l *Logger) Exception(phase Phase, err error) {
	if err == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("source", SourceException),
		slog.String("phase", string(phase)),
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if stack := strings.TrimSpace(ex.String()); stack != "" && stack != ex.Error() {
			attrs = append(attrs, slog.String("stack", stack))
		}
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, err.Error(), attrs...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Entries returns a copy of every retained record, oldest first.
func (l *Logger) Entries() []LogEntry {
	return l.ring.snapshot(0)
}

// Recent returns up to count of the newest records, oldest first.
func (l *Logger) Recent(count int) []LogEntry {
	return l.ring.snapshot(count)
}

// Search returns the records whose message or attribute values contain
// query, case-insensitively.
func (l *Logger) Search(query string) []LogEntry {
	query = strings.ToLower(query)
	var out []LogEntry
	for _, e := range l.ring.snapshot(0) {
		if strings.Contains(strings.ToLower(e.Message), query) {
			out = append(out, e)
			continue
		}
		for _, v := range e.Attrs {
			if strings.Contains(strings.ToLower(v), query) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Clear drops every retained record.
func (l *Logger) Clear() {
	l.ring.mu.Lock()
	defer l.ring.mu.Unlock()
	l.ring.entries = l.ring.entries[:0]
}

var _ Sink = (*Logger)(nil)

type ringBuffer struct {
	entries []LogEntry
	maxSize int
	mu      sync.RWMutex
}

func (r *ringBuffer) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.maxSize {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, e)
}

func (r *ringBuffer) snapshot(count int) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if count <= 0 || count > len(r.entries) {
		count = len(r.entries)
	}
	out := make([]LogEntry, count)
	copy(out, r.entries[len(r.entries)-count:])
	return out
}

// ringHandler implements slog.Handler, flattening attributes (groups become
// dotted key prefixes) into the ring.
type ringHandler struct {
	ring   *ringBuffer
	next   slog.Handler
	attrs  []slog.Attr
	groups []string
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// the ring records everything; level filtering applies to next only
	return true
}

func (h *ringHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		flatten(attrs, "", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		flatten(attrs, prefix, a)
		return true
	})

	h.ring.add(LogEntry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	})

	if h.next != nil && h.next.Enabled(ctx, record.Level) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	prefix := strings.Join(h.groups, ".")
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Attr{Key: prefix + "." + a.Key, Value: a.Value}
		}
		clone.attrs = append(clone.attrs, a)
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}

func flatten(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flatten(dst, key, ga)
		}
		return
	}
	dst[key] = a.Value.String()
}
