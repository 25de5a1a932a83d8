// Package schema provides JSON Schema validation for bucket documents.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/stevemurr/treestore/value"
)

// ErrInvalid is matched by every *ValidationError.
var ErrInvalid = errors.New("schema validation failed")

// ValidationError reports the first constraint a document breaks. Path is a
// JSONPath-like location such as $.tags[2].
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a document against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is Null.
//
// Supported JSON Schema keywords:
//   - type (string, number, integer, boolean, object, array, null)
//   - properties, required, additionalProperties
//   - items (for arrays)
//   - minimum, maximum, exclusiveMinimum, exclusiveMaximum
//   - minLength, maxLength
//   - minItems, maxItems
//   - enum
func Validate(schema, doc value.Value) error {
	if schema.IsNull() {
		return nil
	}
	return validateValue(schema, doc, "$")
}

// Check reports whether s is usable as a schema: it must be an Object whose
// nested schemas are Objects too.
func Check(s value.Value) error {
	if s.Kind() != value.KindObject {
		return invalid("$", "schema must be an object, got %s", s.Kind())
	}
	if props, ok := s.Field("properties"); ok {
		for _, f := range props.Fields() {
			if err := Check(f.Value); err != nil {
				return err
			}
		}
	}
	if items, ok := s.Field("items"); ok {
		return Check(items)
	}
	return nil
}

func validateValue(schema, v value.Value, path string) error {
	if t, ok := schema.Field("type"); ok {
		if ts, ok := t.AsString(); ok {
			if err := checkType(ts, v, path); err != nil {
				return err
			}
		}
	}

	if enum, ok := schema.Field("enum"); ok && enum.Kind() == value.KindArray {
		if err := checkEnum(enum, v, path); err != nil {
			return err
		}
	}

	switch v.Kind() {
	case value.KindObject:
		return validateObject(schema, v, path)
	case value.KindArray:
		return validateArray(schema, v, path)
	case value.KindString:
		s, _ := v.AsString()
		return validateString(schema, s, path)
	case value.KindNumber:
		n, _ := v.AsNumber()
		return validateNumber(schema, n, path)
	}
	return nil
}

func jsonType(v value.Value) string {
	switch v.Kind() {
	case value.KindObject:
		return "object"
	case value.KindArray:
		return "array"
	case value.KindString:
		return "string"
	case value.KindBool:
		return "boolean"
	case value.KindNumber:
		return "number"
	}
	return "null"
}

func checkType(expected string, v value.Value, path string) error {
	actual := jsonType(v)
	if expected == "integer" {
		if n, ok := v.AsNumber(); ok && n == math.Trunc(n) && !math.IsInf(n, 0) {
			return nil
		}
		return invalid(path, "expected type %q, got %q", expected, actual)
	}
	if actual != expected {
		return invalid(path, "expected type %q, got %q", expected, actual)
	}
	return nil
}

func checkEnum(allowed, v value.Value, path string) error {
	for _, a := range allowed.Items() {
		if a.Equal(v) {
			return nil
		}
	}
	return invalid(path, "value not in enum %s", allowed)
}

func validateObject(schema, obj value.Value, path string) error {
	if req, ok := schema.Field("required"); ok {
		for _, r := range req.Items() {
			field, ok := r.AsString()
			if !ok {
				continue
			}
			if _, exists := obj.Field(field); !exists {
				return invalid(path, "missing required field %q", field)
			}
		}
	}

	props, _ := schema.Field("properties")
	for _, f := range props.Fields() {
		val, exists := obj.Field(f.Key)
		if !exists || f.Value.Kind() != value.KindObject {
			continue
		}
		if err := validateValue(f.Value, val, path+"."+f.Key); err != nil {
			return err
		}
	}

	if ap, ok := schema.Field("additionalProperties"); ok {
		if allowed, ok := ap.AsBool(); ok && !allowed {
			var extra []string
			for _, k := range obj.Keys() {
				if _, defined := props.Field(k); !defined {
					extra = append(extra, k)
				}
			}
			if len(extra) > 0 {
				return invalid(path, "additional properties not allowed: %s", strings.Join(extra, ", "))
			}
		}
	}
	return nil
}

func validateArray(schema, arr value.Value, path string) error {
	if v, ok := limit(schema, "minItems"); ok && float64(arr.Len()) < v {
		return invalid(path, "array length %d is less than minItems %v", arr.Len(), v)
	}
	if v, ok := limit(schema, "maxItems"); ok && float64(arr.Len()) > v {
		return invalid(path, "array length %d is greater than maxItems %v", arr.Len(), v)
	}
	if items, ok := schema.Field("items"); ok && items.Kind() == value.KindObject {
		for i, elem := range arr.Items() {
			if err := validateValue(items, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateString(schema value.Value, s string, path string) error {
	n := utf8.RuneCountInString(s)
	if v, ok := limit(schema, "minLength"); ok && float64(n) < v {
		return invalid(path, "string length %d is less than minLength %v", n, v)
	}
	if v, ok := limit(schema, "maxLength"); ok && float64(n) > v {
		return invalid(path, "string length %d is greater than maxLength %v", n, v)
	}
	return nil
}

func validateNumber(schema value.Value, n float64, path string) error {
	if v, ok := limit(schema, "minimum"); ok && n < v {
		return invalid(path, "%v is less than minimum %v", n, v)
	}
	if v, ok := limit(schema, "maximum"); ok && n > v {
		return invalid(path, "%v is greater than maximum %v", n, v)
	}
	if v, ok := limit(schema, "exclusiveMinimum"); ok && n <= v {
		return invalid(path, "%v is not greater than exclusiveMinimum %v", n, v)
	}
	if v, ok := limit(schema, "exclusiveMaximum"); ok && n >= v {
		return invalid(path, "%v is not less than exclusiveMaximum %v", n, v)
	}
	return nil
}

func limit(schema value.Value, keyword string) (float64, bool) {
	v, ok := schema.Field(keyword)
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}
