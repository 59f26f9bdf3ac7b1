// Package tui is a terminal collaborator for a bridge session. It displays
// the render tree as an outline, keeps logs of patches and diagnostics, and
// turns key presses into events.
package tui

import (
	"errors"
	"fmt"

	"github.com/joeycumines/elmhost/internal/value"
)

// ErrUnsupportedPatch is returned by Document.Apply for payloads it does not
// understand. The patch is still shown in the patch log.
var ErrUnsupportedPatch = errors.New("unsupported patch")

// Handler binds a key to an event. Programs describe handlers as
// {id, name, key} mappings.
type Handler struct {
	Name string
	Key  string
	ID   uint64
}

// ParseHandlers reads handler descriptors from a list. Entries without a
// numeric id or a name are skipped.
func ParseHandlers(v value.Value) []Handler {
	items, _ := v.AsList()
	var out []Handler
	for _, item := range items {
		id, ok := item.Field("id").AsNumber()
		if !ok || id < 0 {
			continue
		}
		name, ok := item.Field("name").AsString()
		if !ok || name == "" {
			continue
		}
		key, _ := item.Field("key").AsString()
		out = append(out, Handler{ID: uint64(id), Name: name, Key: key})
	}
	return out
}

// Document is the UI-side state built from initialRender and applyPatches.
//
// Patches are either a single operation or a list of operations, applied in
// order:
//
//	{op: "replace", value: tree}
//	{op: "set", path: ["a", 0], value: v}
//	{op: "remove", path: ["a", 0]}
//	{op: "handlers", value: [{id, name, key}]}
type Document struct {
	Tree     value.Value
	Handlers []Handler
	Rendered bool
}

// Reset replaces the document with an initial render.
func (d *Document) Reset(tree, handlers value.Value) {
	d.Tree = tree
	d.Handlers = ParseHandlers(handlers)
	d.Rendered = true
}

// Apply applies patch. Operations before a failing one stay applied.
func (d *Document) Apply(patch value.Value) error {
	if ops, ok := patch.AsList(); ok {
		for i, op := range ops {
			if err := d.applyOp(op); err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		return nil
	}
	return d.applyOp(patch)
}

// HandlerFor returns the handler bound to key.
func (d *Document) HandlerFor(key string) (Handler, bool) {
	for _, h := range d.Handlers {
		if h.Key != "" && h.Key == key {
			return h, true
		}
	}
	return Handler{}, false
}

func (d *Document) applyOp(op value.Value) error {
	kind, _ := op.Field("op").AsString()
	switch kind {
	case "replace":
		d.Tree = op.Field("value")
	case "set":
		path, err := patchPath(op)
		if err != nil {
			return err
		}
		tree, err := setIn(d.Tree, path, op.Field("value"))
		if err != nil {
			return err
		}
		d.Tree = tree
	case "remove":
		path, err := patchPath(op)
		if err != nil {
			return err
		}
		if len(path) == 0 {
			d.Tree = value.Null()
			return nil
		}
		tree, err := removeIn(d.Tree, path)
		if err != nil {
			return err
		}
		d.Tree = tree
	case "handlers":
		d.Handlers = ParseHandlers(op.Field("value"))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPatch, op)
	}
	return nil
}

func patchPath(op value.Value) ([]value.Value, error) {
	p := op.Field("path")
	if p.IsNull() {
		return nil, nil
	}
	items, ok := p.AsList()
	if !ok {
		return nil, fmt.Errorf("%w: path must be a list, got %s", ErrUnsupportedPatch, p.Kind())
	}
	return items, nil
}

// setIn returns a copy of v with path set to x. Missing map keys are
// created; a list index equal to the length appends.
func setIn(v value.Value, path []value.Value, x value.Value) (value.Value, error) {
	if len(path) == 0 {
		return x, nil
	}
	switch seg := path[0]; seg.Kind() {
	case value.KindString:
		key, _ := seg.AsString()
		obj, ok := v.AsObject()
		if !ok {
			if !v.IsNull() {
				return v, fmt.Errorf("cannot set key %q on %s", key, v.Kind())
			}
			obj = value.NewObject()
		} else {
			obj = obj.Clone()
		}
		child, _ := obj.Get(key)
		child, err := setIn(child, path[1:], x)
		if err != nil {
			return v, err
		}
		obj.Set(key, child)
		return value.Map(obj), nil
	case value.KindNumber:
		items, ok := v.AsList()
		if !ok {
			return v, fmt.Errorf("cannot index %s", v.Kind())
		}
		i, err := listIndex(seg, len(items)+1)
		if err != nil {
			return v, err
		}
		next := append([]value.Value(nil), items...)
		if i == len(items) {
			next = append(next, value.Null())
		}
		child, err := setIn(next[i], path[1:], x)
		if err != nil {
			return v, err
		}
		next[i] = child
		return value.List(next...), nil
	default:
		return v, fmt.Errorf("invalid path segment %s", seg)
	}
}

func removeIn(v value.Value, path []value.Value) (value.Value, error) {
	last := len(path) == 1
	switch seg := path[0]; seg.Kind() {
	case value.KindString:
		key, _ := seg.AsString()
		obj, ok := v.AsObject()
		if !ok {
			return v, fmt.Errorf("cannot remove key %q from %s", key, v.Kind())
		}
		child, ok := obj.Get(key)
		if !ok {
			return v, nil
		}
		next := value.NewObject()
		var err error
		obj.Range(func(k string, val value.Value) bool {
			switch {
			case k != key:
				next.Set(k, val)
			case !last:
				child, err = removeIn(child, path[1:])
				next.Set(k, child)
			}
			return err == nil
		})
		if err != nil {
			return v, err
		}
		return value.Map(next), nil
	case value.KindNumber:
		items, ok := v.AsList()
		if !ok {
			return v, fmt.Errorf("cannot index %s", v.Kind())
		}
		i, err := listIndex(seg, len(items))
		if err != nil {
			return v, err
		}
		next := append([]value.Value(nil), items...)
		if last {
			return value.List(append(next[:i], next[i+1:]...)...), nil
		}
		if next[i], err = removeIn(next[i], path[1:]); err != nil {
			return v, err
		}
		return value.List(next...), nil
	default:
		return v, fmt.Errorf("invalid path segment %s", seg)
	}
}

func listIndex(seg value.Value, n int) (int, error) {
	f, _ := seg.AsNumber()
	i := int(f)
	if float64(i) != f || i < 0 || i >= n {
		return 0, fmt.Errorf("index %s out of range", seg)
	}
	return i, nil
}
