package value

import (
	"iter"
	"strconv"
)

// ParseIndex parses an array index segment. Only canonical decimal forms are
// accepted: "0", "7", "12", never "01", "+1" or "-1".
func ParseIndex(seg string) (int, bool) {
	if seg == "" || len(seg) > 1 && seg[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Child returns the immediate child addressed by seg.
func (v Value) Child(seg string) (Value, bool) {
	switch v.kind {
	case KindObject:
		return v.Field(seg)
	case KindArray:
		i, ok := ParseIndex(seg)
		if !ok {
			return Value{}, false
		}
		return v.Index(i)
	}
	return Value{}, false
}

// Lookup walks path from v. An empty path addresses v itself.
func (v Value) Lookup(path []string) (Value, bool) {
	cur := v
	for _, seg := range path {
		next, ok := cur.Child(seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Put returns a copy of v with x stored at path, creating intermediate
// Objects as needed. A scalar on the way is replaced by an Object. An array
// accepts its existing indices and len (append); any other segment turns the
// array into an Object keyed by stringified index.
func (v Value) Put(path []string, x Value) Value {
	if len(path) == 0 {
		return x
	}
	seg, rest := path[0], path[1:]
	switch v.kind {
	case KindArray:
		if i, ok := ParseIndex(seg); ok && i <= len(v.arr) {
			arr := make([]Value, len(v.arr), len(v.arr)+1)
			copy(arr, v.arr)
			if i == len(arr) {
				arr = append(arr, Value{}.Put(rest, x))
			} else {
				arr[i] = arr[i].Put(rest, x)
			}
			return Value{kind: KindArray, arr: arr}
		}
		return v.arrayToObject().Put(path, x)
	case KindObject:
		child := v.obj.fields[seg]
		return v.With(seg, child.Put(rest, x))
	default:
		return Value{}.With(seg, Value{}.Put(rest, x))
	}
}

// Remove returns a copy of v without the value at path, and whether anything
// was removed. Removing the last element of an array truncates it; removing
// any other element leaves a Null in its place so sibling indices stay put.
func (v Value) Remove(path []string) (Value, bool) {
	if len(path) == 0 {
		return Value{}, true
	}
	seg, rest := path[0], path[1:]
	switch v.kind {
	case KindObject:
		child, ok := v.obj.fields[seg]
		if !ok {
			return v, false
		}
		if len(rest) == 0 {
			return v.Without(seg), true
		}
		child, removed := child.Remove(rest)
		if !removed {
			return v, false
		}
		return v.With(seg, child), true
	case KindArray:
		i, ok := ParseIndex(seg)
		if !ok || i >= len(v.arr) {
			return v, false
		}
		if len(rest) == 0 {
			if i == len(v.arr)-1 {
				return Value{kind: KindArray, arr: append([]Value(nil), v.arr[:i]...)}, true
			}
			arr := append([]Value(nil), v.arr...)
			arr[i] = Value{}
			return Value{kind: KindArray, arr: arr}, true
		}
		child, removed := v.arr[i].Remove(rest)
		if !removed {
			return v, false
		}
		arr := append([]Value(nil), v.arr...)
		arr[i] = child
		return Value{kind: KindArray, arr: arr}, true
	}
	return v, false
}

func (v Value) arrayToObject() Value {
	o := &object{fields: make(map[string]Value, len(v.arr))}
	for i, item := range v.arr {
		if item.IsNull() {
			continue
		}
		o.set(strconv.Itoa(i), item)
	}
	return Value{kind: KindObject, obj: o}
}

// Children yields the immediate children of a container: Object fields in
// insertion order, Array elements keyed by index. Scalars yield nothing.
func (v Value) Children() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		switch v.kind {
		case KindObject:
			for _, k := range v.obj.keys {
				if !yield(k, v.obj.fields[k]) {
					return
				}
			}
		case KindArray:
			for i, item := range v.arr {
				if !yield(strconv.Itoa(i), item) {
					return
				}
			}
		}
	}
}
