// Package value defines the structured document model stored by treestore.
package value

import (
	"math"
	"sort"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-like document node. The zero Value is Null.
//
// Values are treated as immutable: every edit returns a new Value and shares
// the subtrees it did not touch.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *object
}

// object keeps insertion order for round-tripping; lookups go through fields.
type object struct {
	keys   []string
	fields map[string]Value
}

// Field is a single key/value pair of an Object.
type Field struct {
	Key   string
	Value Value
}

// Null returns the Null value.
func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// Array builds an Array holding a copy of items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value(nil), items...)}
}

// Object builds an Object from fields in order. A repeated key keeps its first
// position and its last value.
func Object(fields ...Field) Value {
	o := &object{fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		o.set(f.Key, f.Value)
	}
	return Value{kind: KindObject, obj: o}
}

// F is shorthand for a Field.
func F(key string, v Value) Field { return Field{Key: key, Value: v} }

func (o *object) set(key string, v Value) {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

func (o *object) clone() *object {
	c := &object{
		keys:   append([]string(nil), o.keys...),
		fields: make(map[string]Value, len(o.fields)),
	}
	for k, v := range o.fields {
		c.fields[k] = v
	}
	return c
}

func (o *object) remove(key string) bool {
	if _, ok := o.fields[key]; !ok {
		return false
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsContainer reports whether v is an Array or an Object.
func (v Value) IsContainer() bool { return v.kind == KindArray || v.kind == KindObject }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Finite reports whether no Number in v is NaN or infinite.
func (v Value) Finite() bool {
	switch v.kind {
	case KindNumber:
		return !math.IsNaN(v.n) && !math.IsInf(v.n, 0)
	case KindArray:
		for _, item := range v.arr {
			if !item.Finite() {
				return false
			}
		}
	case KindObject:
		for _, child := range v.obj.fields {
			if !child.Finite() {
				return false
			}
		}
	}
	return true
}

// Len returns the number of elements of an Array or fields of an Object, and
// zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj.keys)
	}
	return 0
}

// Items returns a copy of an Array's elements, or nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return append([]Value(nil), v.arr...)
}

// Index returns the i-th element of an Array.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Keys returns an Object's keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	return append([]string(nil), v.obj.keys...)
}

// SortedKeys returns an Object's keys in lexicographic order.
func (v Value) SortedKeys() []string {
	keys := v.Keys()
	sort.Strings(keys)
	return keys
}

// Field returns the named field of an Object.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj.fields[key]
	return f, ok
}

// Fields returns an Object's fields in insertion order.
func (v Value) Fields() []Field {
	if v.kind != KindObject {
		return nil
	}
	out := make([]Field, 0, len(v.obj.keys))
	for _, k := range v.obj.keys {
		out = append(out, Field{Key: k, Value: v.obj.fields[k]})
	}
	return out
}

// With returns a copy of Object v with key set to x. Non-objects are replaced
// by a fresh Object.
func (v Value) With(key string, x Value) Value {
	var o *object
	if v.kind == KindObject {
		o = v.obj.clone()
	} else {
		o = &object{fields: map[string]Value{}}
	}
	o.set(key, x)
	return Value{kind: KindObject, obj: o}
}

// Without returns a copy of Object v lacking key.
func (v Value) Without(key string) Value {
	if v.kind != KindObject {
		return v
	}
	if _, ok := v.obj.fields[key]; !ok {
		return v
	}
	o := v.obj.clone()
	o.remove(key)
	return Value{kind: KindObject, obj: o}
}

// Equal reports structural equality. Object field order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj.fields) != len(o.obj.fields) {
			return false
		}
		for k, a := range v.obj.fields {
			b, ok := o.obj.fields[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as compact JSON.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(b)
}
