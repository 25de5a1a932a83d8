// Package codec encodes value trees for backends that persist bytes.
package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack"
	"github.com/vmihailenco/msgpack/codes"

	"github.com/stevemurr/treestore/value"
)

// Codec converts between value.Value and a byte encoding. Object key order
// survives a round trip.
type Codec interface {
	Name() string
	Encode(v value.Value) ([]byte, error)
	Decode(b []byte) (value.Value, error)
}

// ByName returns the codec registered as name; "" selects JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	}
	return nil, fmt.Errorf("unknown codec: %q (supported: json, msgpack)", name)
}

// JSON stores compact JSON.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(v value.Value) ([]byte, error) { return v.MarshalJSON() }

func (JSON) Decode(b []byte) (value.Value, error) { return value.ParseJSON(b) }

// MsgPack stores MessagePack. Numbers are written as float64.
type MsgPack struct{}

func (MsgPack) Name() string { return "msgpack" }

func (MsgPack) Encode(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeMsgPack(msgpack.NewEncoder(&buf), v); err != nil {
		return nil, fmt.Errorf("codec: msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (MsgPack) Decode(b []byte) (value.Value, error) {
	v, err := decodeMsgPack(msgpack.NewDecoder(bytes.NewReader(b)))
	if err != nil {
		return value.Value{}, fmt.Errorf("codec: msgpack decode: %w", err)
	}
	return v, nil
}

func encodeMsgPack(enc *msgpack.Encoder, v value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		return enc.EncodeNil()
	case value.KindBool:
		b, _ := v.AsBool()
		return enc.EncodeBool(b)
	case value.KindNumber:
		n, _ := v.AsNumber()
		return enc.EncodeFloat64(n)
	case value.KindString:
		s, _ := v.AsString()
		return enc.EncodeString(s)
	case value.KindArray:
		items := v.Items()
		if err := enc.EncodeArrayLen(len(items)); err != nil {
			return err
		}
		for _, item := range items {
			if err := encodeMsgPack(enc, item); err != nil {
				return err
			}
		}
		return nil
	case value.KindObject:
		fields := v.Fields()
		if err := enc.EncodeMapLen(len(fields)); err != nil {
			return err
		}
		for _, f := range fields {
			if err := enc.EncodeString(f.Key); err != nil {
				return err
			}
			if err := encodeMsgPack(enc, f.Value); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown kind %v", v.Kind())
}

func decodeMsgPack(dec *msgpack.Decoder) (value.Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return value.Value{}, err
	}
	switch {
	case c == codes.Nil:
		return value.Null(), dec.DecodeNil()
	case c == codes.False || c == codes.True:
		b, err := dec.DecodeBool()
		return value.Bool(b), err
	case codes.IsFixedString(c) || c == codes.Str8 || c == codes.Str16 || c == codes.Str32:
		s, err := dec.DecodeString()
		return value.String(s), err
	case codes.IsFixedArray(c) || c == codes.Array16 || c == codes.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return value.Value{}, err
		}
		items := make([]value.Value, 0, n)
		for i := 0; i < n; i++ {
			item, err := decodeMsgPack(dec)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, item)
		}
		return value.Array(items...), nil
	case codes.IsFixedMap(c) || c == codes.Map16 || c == codes.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return value.Value{}, err
		}
		fields := make([]value.Field, 0, n)
		for i := 0; i < n; i++ {
			k, err := dec.DecodeString()
			if err != nil {
				return value.Value{}, err
			}
			item, err := decodeMsgPack(dec)
			if err != nil {
				return value.Value{}, err
			}
			fields = append(fields, value.F(k, item))
		}
		return value.Object(fields...), nil
	default:
		// Every remaining code is numeric; DecodeFloat64 widens ints.
		n, err := dec.DecodeFloat64()
		return value.Number(n), err
	}
}
