// Package value models the payloads that cross between the script context
// and the UI context: render trees, handler descriptors, patch lists and
// event data.
//
// A [Value] is a closed tagged variant. It is one of null, boolean, number,
// string, an ordered list, or a mapping whose keys keep their insertion
// order. Nothing else can be represented, so every boundary crossing goes
// through one of the total conversion functions in this package
// ([FromGoja], [FromGo], [Value.ToGoja], [Value.Go]).
//
// Values are treated as immutable once constructed. Producers build a fresh
// value per crossing and consumers must not mutate what they receive.
package value

import (
	"math"
	"strconv"
)

// Kind identifies which variant a [Value] holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the closed tagged variant. The zero value is null.
type Value struct {
	obj  *Object
	s    string
	list []Value
	n    float64
	kind Kind
	b    bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns an ordered sequence. The items slice is retained.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Map wraps an [Object]. A nil object yields an empty mapping.
func Map(obj *Object) Value {
	if obj == nil {
		obj = NewObject()
	}
	return Value{kind: KindMap, obj: obj}
}

// MapOf builds a mapping from alternating key, value pairs, preserving the
// order given. It panics if pairs is malformed, and is intended for literals.
func MapOf(pairs ...any) Value {
	if len(pairs)%2 != 0 {
		panic("value: MapOf requires key/value pairs")
	}
	obj := NewObject()
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			panic("value: MapOf keys must be strings")
		}
		obj.Set(k, FromGo(pairs[i+1]))
	}
	return Map(obj)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the items and whether v is a list. The returned slice is
// shared with v.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsObject returns the mapping and whether v is a map.
func (v Value) AsObject() (*Object, bool) { return v.obj, v.kind == KindMap }

// Len is the number of items (list), entries (map), or bytes (string), and
// zero for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return v.obj.Len()
	case KindString:
		return len(v.s)
	default:
		return 0
	}
}

// Index returns item i of a list, or null when v is not a list or i is out
// of range.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Null()
	}
	return v.list[i]
}

// Field returns key k of a map, or null when v is not a map or k is absent.
func (v Value) Field(k string) Value {
	if v.kind != KindMap {
		return Null()
	}
	f, _ := v.obj.Get(k)
	return f
}

// String renders v as compact JSON.
func (v Value) String() string {
	b, _ := v.MarshalJSON()
	return string(b)
}

// Equal reports deep equality. Map comparison ignores key order; NaN equals
// NaN so that round trips compare equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for _, k := range a.obj.keys {
			bv, ok := b.obj.Get(k)
			if !ok || !Equal(a.obj.vals[k], bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Object is a string-keyed mapping that remembers insertion order.
type Object struct {
	vals map[string]Value
	keys []string
}

func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set stores k. A new key is appended to the order; an existing key keeps
// its position.
func (o *Object) Set(k string, v Value) {
	if _, ok := o.vals[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.vals[k] = v
}

func (o *Object) Get(k string) (Value, bool) {
	if o == nil {
		return Null(), false
	}
	v, ok := o.vals[k]
	return v, ok
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Range calls fn for each entry in order until fn returns false.
func (o *Object) Range(fn func(k string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.vals[k]) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (o *Object) Clone() *Object {
	c := &Object{vals: make(map[string]Value, o.Len())}
	o.Range(func(k string, v Value) bool {
		c.Set(k, v)
		return true
	})
	return c
}
