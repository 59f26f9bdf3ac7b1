package scripting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_RingIsBounded(t *testing.T) {
	l := NewLogger(3, nil)
	for i := 0; i < 5; i++ {
		l.Info(fmt.Sprintf("msg %d", i))
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "msg 2", entries[0].Message)
	assert.Equal(t, "msg 4", entries[2].Message)

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "msg 3", recent[0].Message)
	assert.Len(t, l.Recent(0), 3)
	assert.Len(t, l.Recent(99), 3)

	l.Clear()
	assert.Empty(t, l.Entries())
}

func TestLogger_DefaultSize(t *testing.T) {
	l := NewLogger(0, nil)
	for i := 0; i < DefaultMaxEntries+10; i++ {
		l.Debug("x")
	}
	assert.Len(t, l.Entries(), DefaultMaxEntries)
}

func TestLogger_Console(t *testing.T) {
	l := NewLogger(10, nil)
	l.Console(slog.LevelWarn, "careful")

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, slog.LevelWarn, entries[0].Level)
	assert.Equal(t, "careful", entries[0].Message)
	assert.Equal(t, SourceConsole, entries[0].Attrs["source"])
}

func TestLogger_Exception(t *testing.T) {
	l := NewLogger(10, nil)
	l.Exception(PhaseTimer, errors.New("bad"))
	l.Exception(PhaseTimer, nil)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, slog.LevelError, entries[0].Level)
	assert.Equal(t, "bad", entries[0].Message)
	assert.Equal(t, SourceException, entries[0].Attrs["source"])
	assert.Equal(t, "timer", entries[0].Attrs["phase"])
}

func TestLogger_ExceptionKeepsStack(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString("function f() { throw new Error('deep'); }\nf();")
	require.Error(t, err)

	l := NewLogger(10, nil)
	l.Exception(PhaseEvaluate, err)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "deep")
	assert.Contains(t, entries[0].Attrs["stack"], "at f")
}

func TestLogger_WithAndGroups(t *testing.T) {
	l := NewLogger(10, nil)
	child := l.With("session", "abc")
	child.Slog().WithGroup("req").Info("hello", "id", 7, slog.Group("g", slog.String("k", "v")))

	entries := l.Entries()
	require.Len(t, entries, 1, "children share the ring")
	attrs := entries[0].Attrs
	assert.Equal(t, "abc", attrs["session"])
	assert.Equal(t, "7", attrs["req.id"])
	assert.Equal(t, "v", attrs["req.g.k"])
}

func TestLogger_Search(t *testing.T) {
	l := NewLogger(10, nil)
	l.Info("Timer fired")
	l.Info("other", "detail", "TIMER")
	l.Info("unrelated")

	assert.Len(t, l.Search("timer"), 2)
	assert.Empty(t, l.Search("nope"))
}

func TestLogger_ForwardsToNext(t *testing.T) {
	var buf bytes.Buffer
	next := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	l := NewLogger(10, next).With("session", "s1")

	l.Info("ring only")
	l.Exception(PhaseStart, errors.New("both"))

	assert.Len(t, l.Entries(), 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "both", rec["msg"])
	assert.Equal(t, "start", rec["phase"])
	assert.Equal(t, "s1", rec["session"])
}
