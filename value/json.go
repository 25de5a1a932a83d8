package value

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	jsoniter "github.com/json-iterator/go"
)

var (
	compact  = jsoniter.ConfigCompatibleWithStandardLibrary
	indented = jsoniter.Config{
		EscapeHTML:    true,
		SortMapKeys:   true,
		IndentionStep: 2,
	}.Froze()
)

// MarshalJSON encodes v keeping Object insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	return encode(compact, v)
}

// MarshalIndent is MarshalJSON with two-space indentation.
func MarshalIndent(v Value) ([]byte, error) {
	return encode(indented, v)
}

// UnmarshalJSON decodes any JSON document into v, keeping Object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ParseJSON decodes a single JSON document.
func ParseJSON(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Value{}, fmt.Errorf("value: decode json: empty input")
	}
	it := compact.BorrowIterator(data)
	defer compact.ReturnIterator(it)
	v := readValue(it)
	if it.Error != nil && it.Error != io.EOF {
		return Value{}, fmt.Errorf("value: decode json: %w", it.Error)
	}
	// Only whitespace may follow: WhatIsNext reports InvalidValue with
	// io.EOF pending at a clean end of input.
	if it.WhatIsNext() != jsoniter.InvalidValue || it.Error != io.EOF {
		return Value{}, fmt.Errorf("value: decode json: trailing data after value")
	}
	return v, nil
}

func encode(api jsoniter.API, v Value) ([]byte, error) {
	stream := api.BorrowStream(nil)
	defer api.ReturnStream(stream)
	if err := writeValue(stream, v); err != nil {
		return nil, err
	}
	if stream.Error != nil {
		return nil, fmt.Errorf("value: encode json: %w", stream.Error)
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func writeValue(stream *jsoniter.Stream, v Value) error {
	switch v.kind {
	case KindNull:
		stream.WriteNil()
	case KindBool:
		stream.WriteBool(v.b)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("value: encode json: unsupported number %v", v.n)
		}
		stream.WriteFloat64(v.n)
	case KindString:
		stream.WriteString(v.s)
	case KindArray:
		if len(v.arr) == 0 {
			stream.WriteEmptyArray()
			return nil
		}
		stream.WriteArrayStart()
		for i, item := range v.arr {
			if i > 0 {
				stream.WriteMore()
			}
			if err := writeValue(stream, item); err != nil {
				return err
			}
		}
		stream.WriteArrayEnd()
	case KindObject:
		if len(v.obj.keys) == 0 {
			stream.WriteEmptyObject()
			return nil
		}
		stream.WriteObjectStart()
		for i, k := range v.obj.keys {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(k)
			if err := writeValue(stream, v.obj.fields[k]); err != nil {
				return err
			}
		}
		stream.WriteObjectEnd()
	}
	return nil
}

func readValue(it *jsoniter.Iterator) Value {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return Value{}
	case jsoniter.BoolValue:
		return Bool(it.ReadBool())
	case jsoniter.NumberValue:
		return Number(it.ReadFloat64())
	case jsoniter.StringValue:
		return String(it.ReadString())
	case jsoniter.ArrayValue:
		items := []Value{}
		ok := it.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			items = append(items, readValue(it))
			return it.Error == nil
		})
		if !ok {
			fail(it, "malformed array")
		}
		return Value{kind: KindArray, arr: items}
	case jsoniter.ObjectValue:
		o := &object{fields: map[string]Value{}}
		ok := it.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			o.set(key, readValue(it))
			return it.Error == nil
		})
		if !ok {
			fail(it, "malformed object")
		}
		return Value{kind: KindObject, obj: o}
	default:
		fail(it, "expected a JSON value")
		return Value{}
	}
}

// fail records msg unless a real error is already pending. Running out of
// input inside a container is reported, not treated as a clean end.
func fail(it *jsoniter.Iterator, msg string) {
	if it.Error == nil || it.Error == io.EOF {
		it.Error = errors.New(msg)
	}
}
