package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/treestore/schema"
	"github.com/stevemurr/treestore/value"
)

func parse(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := value.ParseJSON([]byte(src))
	require.NoError(t, err)
	return v
}

func TestValidateNullSchema(t *testing.T) {
	assert.NoError(t, schema.Validate(value.Null(), parse(t, `{"anything": "goes"}`)))
}

func TestValidateType(t *testing.T) {
	s := parse(t, `{"type": "object"}`)
	assert.NoError(t, schema.Validate(s, parse(t, `{}`)))

	err := schema.Validate(s, parse(t, `[1]`))
	require.ErrorIs(t, err, schema.ErrInvalid)
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "$", verr.Path)
}

func TestValidateRequired(t *testing.T) {
	s := parse(t, `{"type": "object", "required": ["name", "age"]}`)

	assert.Error(t, schema.Validate(s, parse(t, `{"name": "Alice"}`)), "missing age")
	assert.NoError(t, schema.Validate(s, parse(t, `{"name": "Alice", "age": 30}`)))
}

func TestValidateProperties(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"age":  {"type": "number"}
		}
	}`)

	assert.NoError(t, schema.Validate(s, parse(t, `{"name": "Bob", "age": 25}`)))

	err := schema.Validate(s, parse(t, `{"name": 123}`))
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "$.name", verr.Path)
}

func TestValidateAdditionalProperties(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"additionalProperties": false
	}`)

	assert.Error(t, schema.Validate(s, parse(t, `{"name": "ok", "extra": "bad"}`)))
	assert.NoError(t, schema.Validate(s, parse(t, `{"name": "ok"}`)))
}

func TestValidateStringConstraints(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {
			"code": {"type": "string", "minLength": 2, "maxLength": 5}
		}
	}`)

	assert.Error(t, schema.Validate(s, parse(t, `{"code": "A"}`)), "too short")
	assert.Error(t, schema.Validate(s, parse(t, `{"code": "ABCDEF"}`)), "too long")
	assert.NoError(t, schema.Validate(s, parse(t, `{"code": "ABC"}`)))
	assert.NoError(t, schema.Validate(s, parse(t, `{"code": "ñññ"}`)), "length counts runes")
}

func TestValidateNumberConstraints(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {
			"score": {"type": "number", "minimum": 0, "maximum": 100},
			"ratio": {"exclusiveMinimum": 0, "exclusiveMaximum": 1}
		}
	}`)

	assert.Error(t, schema.Validate(s, parse(t, `{"score": -1}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"score": 101}`)))
	assert.NoError(t, schema.Validate(s, parse(t, `{"score": 50}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"ratio": 0}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"ratio": 1}`)))
	assert.NoError(t, schema.Validate(s, parse(t, `{"ratio": 0.5}`)))
}

func TestValidateEnum(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {
			"role": {"type": "string", "enum": ["admin", "user", "guest"]},
			"level": {"enum": [1, {"custom": true}]}
		}
	}`)

	assert.NoError(t, schema.Validate(s, parse(t, `{"role": "admin"}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"role": "superadmin"}`)))
	assert.NoError(t, schema.Validate(s, parse(t, `{"level": {"custom": true}}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"level": 2}`)))
}

func TestValidateArray(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {
			"tags": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"maxItems": 3
			}
		}
	}`)

	assert.Error(t, schema.Validate(s, parse(t, `{"tags": []}`)), "minItems")
	assert.Error(t, schema.Validate(s, parse(t, `{"tags": ["a", "b", "c", "d"]}`)), "maxItems")

	err := schema.Validate(s, parse(t, `{"tags": ["a", 1]}`))
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "$.tags[1]", verr.Path)

	assert.NoError(t, schema.Validate(s, parse(t, `{"tags": ["go", "rust"]}`)))
}

func TestValidateNestedObject(t *testing.T) {
	s := parse(t, `{
		"type": "object",
		"properties": {
			"address": {
				"type": "object",
				"properties": {
					"city": {"type": "string"},
					"zip":  {"type": "string"}
				},
				"required": ["city"]
			}
		}
	}`)

	assert.Error(t, schema.Validate(s, parse(t, `{"address": {"zip": "12345"}}`)))
	assert.NoError(t, schema.Validate(s, parse(t, `{"address": {"city": "NY", "zip": "10001"}}`)))
}

func TestValidateIntegerType(t *testing.T) {
	s := parse(t, `{"type": "object", "properties": {"count": {"type": "integer"}}}`)

	assert.NoError(t, schema.Validate(s, parse(t, `{"count": 5}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"count": 5.5}`)))
	assert.Error(t, schema.Validate(s, parse(t, `{"count": "5"}`)))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, schema.Check(parse(t, `{"type": "object", "properties": {"a": {}}, "items": {}}`)))
	assert.ErrorIs(t, schema.Check(parse(t, `"object"`)), schema.ErrInvalid)
	assert.ErrorIs(t, schema.Check(parse(t, `{"properties": {"a": 1}}`)), schema.ErrInvalid)
}
