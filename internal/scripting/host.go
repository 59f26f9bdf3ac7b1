package scripting

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/elmhost/internal/timers"
	"github.com/joeycumines/elmhost/internal/value"
)

var (
	// ErrEntryPointNotFound is reported when a path does not resolve to a
	// callable.
	ErrEntryPointNotFound = errors.New("entry point not found")
	// ErrCallTimeout interrupts a call that exceeded HostConfig.CallTimeout.
	ErrCallTimeout = errors.New("call timed out")
	// ErrAlreadyInitialized is returned by a second Host.Initialize.
	ErrAlreadyInitialized = errors.New("host already initialized")
)

// UI receives render calls issued by the program. Calls are made on the
// script context, in the order the program issued them; implementations hand
// them off to their own context without blocking.
type UI interface {
	InitialRender(tree, handlers value.Value)
	ApplyPatches(patches value.Value)
}

// HostConfig names the program resource and its entry points.
type HostConfig struct {
	// Resource is the program source requested from the loader.
	Resource string
	// Namespace is the path from the global object to the object holding
	// the entry points, e.g. ["Elm", "Main"].
	Namespace []string
	// StartEntry is invoked with no arguments after a successful evaluation.
	StartEntry string
	// EventEntry receives (id, name, data) for each dispatched event.
	EventEntry string
	// CallTimeout interrupts any single call into the program that runs
	// longer. Zero disables it.
	CallTimeout time.Duration
}

// DefaultHostConfig matches the layout of a compiled Elm program.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Resource:   "compiledElm.js",
		Namespace:  []string{"Elm", "Main"},
		StartEntry: "start",
		EventEntry: "handleEvent",
	}
}

// Host owns the program's execution context: it installs the native binding
// surface, loads and evaluates the program, and funnels every call into
// program code through the Runtime's loop.
//
// Uncaught exceptions, from evaluation or any later re-entry, are reported
// to the Sink and never escape the loop.
type Host struct {
	rt     *Runtime
	ui     UI
	sink   Sink
	timers *timers.Registry
	cfg    HostConfig

	// loop-only state
	vm        *goja.Runtime
	installed bool

	initialized atomic.Bool
}

// NewHost creates a host bound to rt. ui and sink are required.
func NewHost(rt *Runtime, ui UI, sink Sink, cfg HostConfig) *Host {
	if rt == nil || ui == nil || sink == nil {
		panic("scripting: NewHost requires a runtime, UI and sink")
	}
	return &Host{
		rt:     rt,
		ui:     ui,
		sink:   sink,
		timers: timers.NewRegistry(rt.Scheduler()),
		cfg:    cfg,
	}
}

// Timers exposes the registry backing the timer bindings.
func (h *Host) Timers() *timers.Registry { return h.timers }

// Config returns the configuration the host was created with.
func (h *Host) Config() HostConfig { return h.cfg }

// Runtime returns the underlying runtime.
func (h *Host) Runtime() *Runtime { return h.rt }

// Initialize enqueues program launch on the script context: install the
// bindings, load the resource, evaluate it and invoke the start entry point.
// It does not wait. Failures at any step are reported to the sink, stop
// the launch, and leave the context usable.
func (h *Host) Initialize(loader ResourceLoader) error {
	if !h.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}
	if !h.rt.RunOnLoop(func(vm *goja.Runtime) { h.launch(vm, loader) }) {
		return ErrNotRunning
	}
	return nil
}

func (h *Host) launch(vm *goja.Runtime, loader ResourceLoader) {
	if err := h.install(vm); err != nil {
		h.sink.Exception(PhaseBinding, err)
		return
	}

	if loader == nil {
		h.sink.Exception(PhaseLoad, fmt.Errorf("%w: %s (no loader)", ErrResourceNotFound, h.cfg.Resource))
		return
	}
	src, ok, err := loader.LoadResource(h.cfg.Resource)
	if err != nil {
		h.sink.Exception(PhaseLoad, err)
		return
	}
	if !ok {
		h.sink.Exception(PhaseLoad, fmt.Errorf("%w: %s", ErrResourceNotFound, h.cfg.Resource))
		return
	}

	if err := h.evaluate(vm, h.cfg.Resource, string(src)); err != nil {
		return
	}

	_ = h.call(vm, PhaseStart, h.entryPath(h.cfg.StartEntry))
}

// Evaluate runs src in the execution context and waits for it. Errors are
// both reported to the sink and returned.
func (h *Host) Evaluate(name, src string) error {
	return h.rt.Do(func(vm *goja.Runtime) error {
		if err := h.install(vm); err != nil {
			return err
		}
		return h.evaluate(vm, name, src)
	})
}

func (h *Host) evaluate(vm *goja.Runtime, name, src string) error {
	return h.guard(PhaseEvaluate, func() error {
		prog, err := goja.Compile(name, src, false)
		if err != nil {
			return err
		}
		_, err = vm.RunProgram(prog)
		return err
	})
}

// InstallBinding registers fn under name, which may be a dotted path such as
// "console.log"; missing intermediate objects are created. It may be called
// from any goroutine, including from within a binding.
func (h *Host) InstallBinding(name string, fn any) error {
	return h.rt.Do(func(vm *goja.Runtime) error {
		if err := h.install(vm); err != nil {
			return err
		}
		return setPath(vm, strings.Split(name, "."), fn)
	})
}

// InvokeEntryPoint enqueues a call to the function at path, resolved from the
// global object, with args. It returns once the call is queued; the call runs
// after everything already queued on the script context. Errors raised by
// the call go to the sink.
func (h *Host) InvokeEntryPoint(path []string, args ...value.Value) error {
	return h.invoke(PhaseEvent, path, args)
}

// InvokeProgram is InvokeEntryPoint relative to the configured namespace.
func (h *Host) InvokeProgram(entry string, args ...value.Value) error {
	return h.invoke(PhaseEvent, h.entryPath(entry), args)
}

func (h *Host) invoke(phase Phase, path []string, args []value.Value) error {
	path = append([]string(nil), path...)
	args = append([]value.Value(nil), args...)
	if !h.rt.RunOnLoop(func(vm *goja.Runtime) {
		converted := make([]goja.Value, len(args))
		for i, a := range args {
			converted[i] = a.ToGoja(vm)
		}
		_ = h.call(vm, phase, path, converted...)
	}) {
		return ErrNotRunning
	}
	return nil
}

// Barrier waits for every call queued before it.
func (h *Host) Barrier() error { return h.rt.Barrier() }

// Close cancels every live timer. The runtime is left running.
func (h *Host) Close() { h.timers.Close() }

func (h *Host) entryPath(entry string) []string {
	return append(append([]string(nil), h.cfg.Namespace...), entry)
}

func (h *Host) call(vm *goja.Runtime, phase Phase, path []string, args ...goja.Value) error {
	return h.guard(phase, func() error {
		fn, this, err := resolve(vm, path)
		if err != nil {
			return err
		}
		_, err = fn(this, args...)
		return err
	})
}

// guard runs fn, which re-enters program code, on the loop. Panics are
// recovered, the call timeout is enforced, and any failure is reported.
func (h *Host) guard(phase Phase, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			h.sink.Exception(phase, err)
		}
	}()

	if h.cfg.CallTimeout > 0 && h.vm != nil {
		vm := h.vm
		var (
			mu   sync.Mutex
			done bool
		)
		timer := time.AfterFunc(h.cfg.CallTimeout, func() {
			mu.Lock()
			defer mu.Unlock()
			if !done {
				vm.Interrupt(ErrCallTimeout)
			}
		})
		defer func() {
			timer.Stop()
			mu.Lock()
			done = true
			mu.Unlock()
			vm.ClearInterrupt()
		}()
	}

	return fn()
}

func (h *Host) install(vm *goja.Runtime) error {
	if h.installed {
		return nil
	}
	h.vm = vm

	console := vm.NewObject()
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if err := console.Set(name, h.consoleBinding(vm, level)); err != nil {
			return err
		}
	}

	cancel := h.cancelBinding()
	for name, fn := range map[string]any{
		"initialRender": h.initialRenderBinding(vm),
		"applyPatches":  h.applyPatchesBinding(vm),
		"setTimeout":    h.timerBinding(vm, "setTimeout", timers.OneShot),
		"setInterval":   h.timerBinding(vm, "setInterval", timers.Repeating),
		"clearTimeout":  cancel,
		"clearInterval": cancel,
		"console":       console,
	} {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}

	h.installed = true
	return nil
}

func (h *Host) initialRenderBinding(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		tree, ok := h.convert(vm, "initialRender", call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		handlers, ok := h.convert(vm, "initialRender", call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		h.forward(func() { h.ui.InitialRender(tree, handlers) })
		return goja.Undefined()
	}
}

func (h *Host) applyPatchesBinding(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		patches, ok := h.convert(vm, "applyPatches", call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		h.forward(func() { h.ui.ApplyPatches(patches) })
		return goja.Undefined()
	}
}

// convert reads a binding argument. A payload that cannot be read is
// reported and the call is dropped; nothing is thrown into the program.
func (h *Host) convert(vm *goja.Runtime, binding string, arg goja.Value) (value.Value, bool) {
	v, err := value.Convert(vm, arg)
	if err != nil {
		h.sink.Exception(PhaseBinding, fmt.Errorf("%s: %w", binding, err))
		return value.Null(), false
	}
	return v, true
}

// forward calls into the UI. Render bindings never throw into the program.
func (h *Host) forward(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.sink.Exception(PhaseBinding, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// timerBinding implements setTimeout and setInterval: (fn, ms, ...args).
func (h *Host) timerBinding(vm *goja.Runtime, name string, kind timers.Kind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("%s: callback must be a function", name))
		}
		d := toDuration(call.Argument(1))
		var extra []goja.Value
		if len(call.Arguments) > 2 {
			extra = append(extra, call.Arguments[2:]...)
		}

		id, err := h.timers.Create(kind, d, d, func() {
			_ = h.guard(PhaseTimer, func() error {
				_, err := fn(goja.Undefined(), extra...)
				return err
			})
		})
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(id)
	}
}

// cancelBinding implements both clearTimeout and clearInterval.
func (h *Host) cancelBinding() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			return goja.Undefined()
		}
		h.timers.Cancel(arg.ToInteger())
		return goja.Undefined()
	}
}

func (h *Host) consoleBinding(vm *goja.Runtime, level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			s, err := formatArg(vm, arg)
			if err != nil {
				h.sink.Exception(PhaseBinding, fmt.Errorf("console argument %d: %w", i, err))
				s = "[unprintable]"
			}
			parts[i] = s
		}
		h.sink.Console(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// formatArg prints strings as-is and other values as JSON. A script
// exception raised while reading v is returned.
func formatArg(vm *goja.Runtime, v goja.Value) (s string, err error) {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined", nil
	case goja.IsNull(v):
		return "null", nil
	}
	if ex := vm.Try(func() { s, err = formatValue(vm, v) }); ex != nil {
		return "", ex
	}
	return s, err
}

func formatValue(vm *goja.Runtime, v goja.Value) (string, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		if s, ok := v.Export().(string); ok {
			return s, nil
		}
		return value.FromGoja(vm, v).String(), nil
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return "[Function]", nil
	}
	if obj.ClassName() == "Error" {
		return obj.String(), nil
	}
	val, err := value.Convert(vm, obj)
	if err != nil {
		return "", err
	}
	if s, ok := val.AsString(); ok {
		return s, nil
	}
	return val.String(), nil
}

func toDuration(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	ms := v.ToFloat()
	if ms != ms || ms <= 0 {
		return 0
	}
	// clamp well below the int64 nanosecond range
	const maxMillis = float64(1 << 40)
	if ms > maxMillis {
		ms = maxMillis
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// resolve walks path from the global object, returning the callable and the
// object it was found on.
func resolve(vm *goja.Runtime, path []string) (goja.Callable, goja.Value, error) {
	if len(path) == 0 {
		return nil, nil, fmt.Errorf("%w: empty path", ErrEntryPointNotFound)
	}
	obj := vm.GlobalObject()
	for i, name := range path {
		v := obj.Get(name)
		if i == len(path)-1 {
			fn, ok := goja.AssertFunction(v)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s", ErrEntryPointNotFound, strings.Join(path, "."))
			}
			return fn, obj, nil
		}
		next, ok := v.(*goja.Object)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrEntryPointNotFound, strings.Join(path, "."))
		}
		obj = next
	}
	panic("unreachable")
}

func setPath(vm *goja.Runtime, path []string, v any) error {
	obj := vm.GlobalObject()
	for _, name := range path[:len(path)-1] {
		if name == "" {
			return fmt.Errorf("invalid binding name %q", strings.Join(path, "."))
		}
		next, ok := obj.Get(name).(*goja.Object)
		if !ok {
			next = vm.NewObject()
			if err := obj.Set(name, next); err != nil {
				return err
			}
		}
		obj = next
	}
	last := path[len(path)-1]
	if last == "" {
		return fmt.Errorf("invalid binding name %q", strings.Join(path, "."))
	}
	return obj.Set(last, v)
}
