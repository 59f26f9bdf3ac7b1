package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/joeycumines/elmhost/internal/scripting"
	"github.com/joeycumines/elmhost/internal/testutil"
	"github.com/joeycumines/elmhost/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, renderer Renderer, mutate ...func(*Options)) *Session {
	t.Helper()
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	s, err := NewSession(context.Background(), renderer, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func program(src string) scripting.ResourceLoader {
	return scripting.FSLoader{FS: fstest.MapFS{"compiledElm.js": {Data: []byte(src)}}}
}

func barrier(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultTimeout)
	defer cancel()
	require.NoError(t, s.Barrier(ctx))
}

func exceptionEntries(l *scripting.Logger) []scripting.LogEntry {
	var out []scripting.LogEntry
	for _, e := range l.Entries() {
		if e.Attrs["source"] == scripting.SourceException {
			out = append(out, e)
		}
	}
	return out
}

func patchStrings(r *Recorder) []string {
	var out []string
	for _, p := range r.Patches() {
		out = append(out, p.String())
	}
	return out
}

const echoProgram = `
var Elm = {Main: {
	start: function () {
		initialRender({text: "ready"}, [{id: 7, name: "tap"}]);
	},
	handleEvent: function (id, name, data) {
		applyPatches({id: id, name: name, data: data, argc: arguments.length});
	}
}};
`

func TestSession_EventReachesHandler(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(program(echoProgram)))

	require.NoError(t, s.DispatchEvent(7, "tap", value.MapOf("x", 10)))
	barrier(t, s)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "initialRender", calls[0].Method)
	assert.Equal(t, `{"text":"ready"}`, calls[0].Args[0].String())
	assert.Equal(t, `[{"id":7,"name":"tap"}]`, calls[0].Args[1].String())
	assert.Equal(t, "applyPatches", calls[1].Method)
	assert.Equal(t, `{"id":7,"name":"tap","data":{"x":10},"argc":3}`, calls[1].Args[0].String())
}

func TestSession_PatchOrderPreserved(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(program(`
var Elm = {Main: {start: function () {
	applyPatches({op: "A"});
	applyPatches({op: "B"});
	for (var i = 0; i < 1000; i++) applyPatches([i]);
}}};`)))
	barrier(t, s)

	patches := patchStrings(rec)
	require.Len(t, patches, 1002)
	assert.Equal(t, `{"op":"A"}`, patches[0])
	assert.Equal(t, `{"op":"B"}`, patches[1])
	for i := 0; i < 1000; i++ {
		require.Equal(t, fmt.Sprintf("[%d]", i), patches[i+2])
	}
}

func TestSession_EventsDeliveredInOrder(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(program(echoProgram)))

	const n = 200
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Events().Dispatch(Event{ID: uint64(i), Name: "tap", Data: value.Null()}))
	}
	barrier(t, s)

	patches := rec.Patches()
	require.Len(t, patches, n)
	for i, p := range patches {
		id, ok := p.Field("id").AsNumber()
		require.True(t, ok)
		assert.Equal(t, float64(i+1), id)
	}
}

func TestSession_EventsInterleaveWithTimersFIFO(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(program(`
var Elm = {Main: {
	start: function () {},
	handleEvent: function (id, name) {
		applyPatches(name);
		if (name === "arm") setTimeout(function () { applyPatches("fired"); }, 0);
	}
}};`)))

	require.NoError(t, s.DispatchEvent(1, "arm", value.Null()))
	testutil.RequireEventually(t, func() bool { return len(rec.Patches()) == 2 })
	require.NoError(t, s.DispatchEvent(2, "after", value.Null()))
	barrier(t, s)

	assert.Equal(t, []string{`"arm"`, `"fired"`, `"after"`}, patchStrings(rec))
}

func TestSession_MalformedProgramDoesNotCrash(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(program(`var Elm = {Main: {start: function () {`)))
	barrier(t, s)

	assert.Empty(t, rec.Calls())
	ex := exceptionEntries(s.Logger())
	require.Len(t, ex, 1)
	assert.Equal(t, "evaluate", ex[0].Attrs["phase"])
	assert.Equal(t, s.ID(), ex[0].Attrs["session"])

	require.NoError(t, s.Host().Evaluate("after.js", `applyPatches("still works")`))
	barrier(t, s)
	assert.Equal(t, []string{`"still works"`}, patchStrings(rec))
}

func TestSession_MissingResource(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(scripting.FSLoader{FS: fstest.MapFS{}}))
	barrier(t, s)

	assert.Empty(t, rec.Calls())
	ex := exceptionEntries(s.Logger())
	require.Len(t, ex, 1)
	assert.Equal(t, "load", ex[0].Attrs["phase"])
}

func TestSession_CancelUnknownTimer(t *testing.T) {
	rec := NewRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Start(program(`
var Elm = {Main: {start: function () {
	var n = 0;
	var live = setInterval(function () {
		n++;
		applyPatches(n);
		if (n === 3) clearInterval(live);
	}, 1);
	clearTimeout(12345);
	clearInterval(12345);
}}};`)))

	testutil.RequireEventually(t, func() bool { return len(rec.Patches()) == 3 })
	barrier(t, s)
	assert.Equal(t, []string{"1", "2", "3"}, patchStrings(rec))
	assert.Empty(t, exceptionEntries(s.Logger()))
	assert.Zero(t, s.Timers().Len())
}

func TestSession_StrictInitialRender(t *testing.T) {
	src := `var Elm = {Main: {start: function () {
	initialRender({n: 1}, []);
	initialRender({n: 2}, []);
}}};`

	t.Run("permissive", func(t *testing.T) {
		rec := NewRecorder()
		s := newTestSession(t, rec)
		require.NoError(t, s.Start(program(src)))
		barrier(t, s)
		assert.Len(t, rec.Calls(), 2)
		initial, _ := s.Render().Counts()
		assert.Equal(t, int64(2), initial)
	})

	t.Run("strict", func(t *testing.T) {
		rec := NewRecorder()
		s := newTestSession(t, rec, func(o *Options) { o.StrictInitialRender = true })
		require.NoError(t, s.Start(program(src)))
		barrier(t, s)

		calls := rec.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, `{"n":1}`, calls[0].Args[0].String())
		ex := exceptionEntries(s.Logger())
		require.Len(t, ex, 1)
		assert.Contains(t, ex[0].Message, ErrAlreadyRendered.Error())
	})
}

type failingRenderer struct {
	*Recorder
}

func (f *failingRenderer) ApplyPatches(patches value.Value) error {
	if s, _ := patches.AsString(); s == "fail" {
		return errors.New("layout failed")
	}
	if s, _ := patches.AsString(); s == "panic" {
		panic("renderer exploded")
	}
	return f.Recorder.ApplyPatches(patches)
}

func TestSession_RendererFailuresAreContained(t *testing.T) {
	r := &failingRenderer{Recorder: NewRecorder()}
	s := newTestSession(t, r)
	require.NoError(t, s.Start(program(`var Elm = {Main: {start: function () {
	applyPatches("fail");
	applyPatches("panic");
	applyPatches("ok");
}}};`)))
	barrier(t, s)

	assert.Equal(t, []string{`"ok"`}, patchStrings(r.Recorder))
	ex := exceptionEntries(s.Logger())
	require.Len(t, ex, 2)
	assert.Equal(t, "render", ex[0].Attrs["phase"])
	assert.Contains(t, ex[0].Message, "layout failed")
	assert.Contains(t, ex[1].Message, "renderer exploded")
}

func TestSession_CloseDrainsAndStops(t *testing.T) {
	rec := NewRecorder()
	s, err := NewSession(context.Background(), rec, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, s.Start(program(`var Elm = {Main: {
	start: function () {
		for (var i = 0; i < 100; i++) applyPatches(i);
		setInterval(function () { applyPatches("tick"); }, 1);
	},
	handleEvent: function () { applyPatches("event"); }
}};`)))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed once Close returns")
	}

	patches := patchStrings(rec)
	require.GreaterOrEqual(t, len(patches), 100, "work queued before Close is delivered")
	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprint(i), patches[i])
	}
	assert.Zero(t, s.Timers().Len())

	assert.ErrorIs(t, s.DispatchEvent(1, "tap", value.Null()), ErrClosed)
	assert.ErrorIs(t, s.Start(program("")), ErrClosed)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.Patches(), len(patches), "nothing is delivered after Close")
}

func TestSession_ContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewSession(ctx, NewRecorder(), DefaultOptions())
	require.NoError(t, err)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("session did not close on context cancellation")
	}
}

func TestSession_CloseInterruptsHungProgram(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := DefaultOptions()
	opts.SyncTimeout = 50 * time.Millisecond
	s, err := NewSession(ctx, NewRecorder(), opts)
	require.NoError(t, err)

	require.NoError(t, s.Start(program(`var Elm = {Main: {
	start: function () { for (;;) {} },
	handleEvent: function () {}
}};`)))
	time.Sleep(20 * time.Millisecond)

	cancel()
	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case <-closed:
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("Close did not return with the program stuck in a loop")
	}
	<-s.Done()

	ex := exceptionEntries(s.Logger())
	require.NotEmpty(t, ex)
	assert.Equal(t, string(scripting.PhaseStart), ex[len(ex)-1].Attrs["phase"])
	assert.Contains(t, ex[len(ex)-1].Message, scripting.ErrNotRunning.Error())
}

func TestSession_IDsAreUnique(t *testing.T) {
	a := newTestSession(t, NewRecorder())
	b := newTestSession(t, NewRecorder())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNewSession_NilRenderer(t *testing.T) {
	_, err := NewSession(context.Background(), nil, DefaultOptions())
	assert.Error(t, err)
}
