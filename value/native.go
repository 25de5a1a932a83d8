package value

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// DecodeError reports a native value FromNative cannot represent.
type DecodeError struct {
	Path string
	Type string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("value: cannot decode %s at %s", e.Type, e.Path)
}

// FromNative converts the loosely typed values produced by schema-less
// drivers (encoding/json, msgpack, SDK maps) into a Value. Map keys are
// sorted since Go maps carry no order.
func FromNative(x any) (Value, error) {
	return fromNative(x, "$")
}

func fromNative(x any, at string) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, &DecodeError{Path: at, Type: "json.Number " + t.String()}
		}
		return Number(f), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			v, err := fromNative(item, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := &object{fields: make(map[string]Value, len(t))}
		for _, k := range keys {
			v, err := fromNative(t[k], at+"."+k)
			if err != nil {
				return Value{}, err
			}
			o.set(k, v)
		}
		return Value{kind: KindObject, obj: o}, nil
	default:
		return Value{}, &DecodeError{Path: at, Type: reflect.TypeOf(x).String()}
	}
}

// Native converts v into the plain Go form encoding/json would produce:
// nil, bool, float64, string, []any and map[string]any.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Native()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj.keys))
		for _, k := range v.obj.keys {
			out[k] = v.obj.fields[k].Native()
		}
		return out
	}
	return nil
}
