package value

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/dop251/goja"
)

// FromGoja converts a script value. It must be called on the goroutine that
// owns vm.
//
// The conversion is total over plain data and mirrors JSON.stringify: undefined, functions
// and symbols become null inside lists and are omitted from mappings, Dates
// become epoch milliseconds, and a reference cycle is cut by substituting
// null for the repeated object. A script exception raised by a getter or
// proxy trap propagates as a panic, and an array longer than MaxListLen
// panics; use Convert for untrusted values.
func FromGoja(vm *goja.Runtime, v goja.Value) Value {
	return fromGoja(vm, v, make(map[*goja.Object]struct{}))
}

// MaxListLen bounds the length of a list read from a script value. Array
// length is program controlled and may be far larger than its contents.
const MaxListLen = 1 << 20

// ErrListTooLong is returned by Convert for an array longer than MaxListLen.
var ErrListTooLong = errors.New("value: list too long")

type listTooLong int64

// Convert is FromGoja for values supplied by a program. A script exception
// raised while reading v, from a throwing getter or proxy trap, and an array
// longer than MaxListLen are returned as errors instead of propagating. Other
// panics, including interrupts, are not recovered.
func Convert(vm *goja.Runtime, v goja.Value) (out Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, ok := r.(listTooLong)
			if !ok {
				panic(r)
			}
			out, err = Null(), fmt.Errorf("%w: length %d exceeds %d", ErrListTooLong, int64(n), MaxListLen)
		}
	}()
	if ex := vm.Try(func() { out = FromGoja(vm, v) }); ex != nil {
		return Null(), ex
	}
	return out, nil
}

func fromGoja(vm *goja.Runtime, v goja.Value, seen map[*goja.Object]struct{}) Value {
	if omitted(v) {
		return Null()
	}

	if obj, ok := v.(*goja.Object); ok {
		return fromGojaObject(vm, obj, seen)
	}

	switch x := v.Export().(type) {
	case bool:
		return Bool(x)
	case int64:
		return Number(float64(x))
	case float64:
		return Number(x)
	case string:
		return String(x)
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return Number(f)
	default:
		return Null()
	}
}

func fromGojaObject(vm *goja.Runtime, obj *goja.Object, seen map[*goja.Object]struct{}) Value {
	if _, dup := seen[obj]; dup {
		return Null()
	}
	seen[obj] = struct{}{}
	defer delete(seen, obj)

	switch obj.ClassName() {
	case "Array":
		n := obj.Get("length").ToInteger()
		if n > MaxListLen {
			panic(listTooLong(n))
		}
		items := make([]Value, 0, min(n, 64))
		for i := int64(0); i < n; i++ {
			items = append(items, fromGoja(vm, obj.Get(strconv.FormatInt(i, 10)), seen))
		}
		return List(items...)
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return Number(float64(t.UnixMilli()))
		}
		return Null()
	case "String", "Number", "Boolean":
		// boxed primitives
		if valueOf, ok := goja.AssertFunction(obj.Get("valueOf")); ok {
			if prim, err := valueOf(obj); err == nil {
				if _, isObj := prim.(*goja.Object); !isObj {
					return fromGoja(vm, prim, seen)
				}
			}
		}
		return Null()
	}

	out := NewObject()
	for _, k := range obj.Keys() {
		fv := obj.Get(k)
		if omitted(fv) && !isNull(fv) {
			continue
		}
		out.Set(k, fromGoja(vm, fv, seen))
	}
	return Map(out)
}

// omitted reports values that have no JSON-like representation.
func omitted(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return true
	}
	if _, ok := v.(*goja.Symbol); ok {
		return true
	}
	if _, ok := goja.AssertFunction(v); ok {
		return true
	}
	return false
}

func isNull(v goja.Value) bool { return v != nil && goja.IsNull(v) }

// ToGoja converts v into a fresh script value owned by vm. It must be called
// on the goroutine that owns vm.
func (v Value) ToGoja(vm *goja.Runtime) goja.Value {
	switch v.kind {
	case KindBool:
		return vm.ToValue(v.b)
	case KindNumber:
		if i, ok := exactInt(v.n); ok {
			return vm.ToValue(i)
		}
		return vm.ToValue(v.n)
	case KindString:
		return vm.ToValue(v.s)
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.ToGoja(vm)
		}
		return vm.NewArray(items...)
	case KindMap:
		obj := vm.NewObject()
		v.obj.Range(func(k string, fv Value) bool {
			// defined rather than assigned, so "__proto__" stays an own key
			_ = obj.DefineDataProperty(k, fv.ToGoja(vm), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE)
			return true
		})
		return obj
	default:
		return goja.Null()
	}
}

func exactInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<53) || f > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// Go converts v to plain Go data: nil, bool, float64, string, []any and
// map[string]any. Key order is lost.
func (v Value) Go() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Go()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.obj.Len())
		v.obj.Range(func(k string, fv Value) bool {
			out[k] = fv.Go()
			return true
		})
		return out
	default:
		return nil
	}
}

// FromGo converts arbitrary Go data. It is total: Go maps have their keys
// sorted (Go map order is unspecified), structs and other unsupported types
// become their fmt representation.
func FromGo(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Object:
		return Map(t)
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case []Value:
		return List(t...)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromGo(item)
		}
		return List(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Set(k, FromGo(t[k]))
		}
		return Map(obj)
	case error:
		return String(t.Error())
	case fmt.Stringer:
		return String(t.String())
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float())
	case reflect.String:
		return String(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null()
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromGo(rv.Index(i).Interface())
		}
		return List(items...)
	case reflect.Map:
		if rv.IsNil() {
			return Null()
		}
		type kv struct {
			k string
			v reflect.Value
		}
		entries := make([]kv, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, kv{k: fmt.Sprint(iter.Key().Interface()), v: iter.Value()})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })
		obj := NewObject()
		for _, e := range entries {
			obj.Set(e.k, FromGo(e.v.Interface()))
		}
		return Map(obj)
	case reflect.Invalid:
		return Null()
	default:
		return String(fmt.Sprint(rv.Interface()))
	}
}
