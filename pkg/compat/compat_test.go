package compat_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowengine/pkg/compat"
	"github.com/lyzr/workflowengine/pkg/schema"
)

func mustSchema(t *testing.T, raw string) *schema.Schema {
	t.Helper()
	var decoded interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	s, err := schema.Parse(decoded)
	require.NoError(t, err)
	return s
}

func TestCheck_AnyConsumerAlwaysSatisfied(t *testing.T) {
	producer := mustSchema(t, `{"type": "string"}`)
	consumer := mustSchema(t, `{"type": "any"}`)
	assert.Empty(t, compat.Check(producer, consumer))
}

func TestCheck_AnyProducerFlagged(t *testing.T) {
	producer := mustSchema(t, `{"type": "any"}`)
	consumer := mustSchema(t, `{"type": "string"}`)
	assert.NotEmpty(t, compat.Check(producer, consumer))
}

func TestCheck_IntegerSatisfiesNumber(t *testing.T) {
	producer := mustSchema(t, `{"type": "integer"}`)
	consumer := mustSchema(t, `{"type": "number"}`)
	assert.Empty(t, compat.Check(producer, consumer))
}

func TestCheck_NumberDoesNotSatisfyInteger(t *testing.T) {
	producer := mustSchema(t, `{"type": "number"}`)
	consumer := mustSchema(t, `{"type": "integer"}`)
	assert.NotEmpty(t, compat.Check(producer, consumer))
}

func TestCheck_ObjectMissingRequiredProperty(t *testing.T) {
	producer := mustSchema(t, `{"type": "object", "properties": {"a": {"type": "string"}}}`)
	consumer := mustSchema(t, `{
		"type": "object",
		"properties": {"a": {"type": "string"}, "b": {"type": "string"}},
		"required": ["b"]
	}`)
	incompat := compat.Check(producer, consumer)
	require.Len(t, incompat, 1)
	assert.Equal(t, "$.b", incompat[0].Path)
}

func TestCheck_ExtraProducerPropertiesAreFine(t *testing.T) {
	producer := mustSchema(t, `{
		"type": "object",
		"properties": {"a": {"type": "string"}, "extra": {"type": "boolean"}},
		"required": ["a"]
	}`)
	consumer := mustSchema(t, `{
		"type": "object",
		"properties": {"a": {"type": "string"}},
		"required": ["a"]
	}`)
	assert.Empty(t, compat.Check(producer, consumer))
}

func TestCheck_NestedArrayOfObjects(t *testing.T) {
	producer := mustSchema(t, `{
		"type": "array",
		"items": {"type": "object", "properties": {"id": {"type": "string"}}}
	}`)
	consumer := mustSchema(t, `{
		"type": "array",
		"items": {
			"type": "object",
			"properties": {"id": {"type": "string"}},
			"required": ["id"]
		}
	}`)
	incompat := compat.Check(producer, consumer)
	require.Len(t, incompat, 1)
	assert.Equal(t, "$[].id", incompat[0].Path)
}

func TestCheck_EnumSubset(t *testing.T) {
	producer := mustSchema(t, `{"type": "string", "enum": ["a", "b"]}`)
	consumer := mustSchema(t, `{"type": "string", "enum": ["a", "b", "c"]}`)
	assert.Empty(t, compat.Check(producer, consumer))

	producer2 := mustSchema(t, `{"type": "string", "enum": ["a", "z"]}`)
	assert.NotEmpty(t, compat.Check(producer2, consumer))
}

func TestCheck_Transitivity(t *testing.T) {
	a := mustSchema(t, `{"type": "object", "properties": {"x": {"type": "integer"}}, "required": ["x"]}`)
	b := mustSchema(t, `{"type": "object", "properties": {"x": {"type": "number"}}, "required": ["x"]}`)
	c := mustSchema(t, `{"type": "object", "properties": {"x": {"type": "any"}}}`)

	assert.Empty(t, compat.Check(a, b), "a satisfies b")
	assert.Empty(t, compat.Check(b, c), "b satisfies c")
	assert.Empty(t, compat.Check(a, c), "a must transitively satisfy c")
}

func TestCheck_FormatMustMatchExactly(t *testing.T) {
	producer := mustSchema(t, `{"type": "string", "format": "email"}`)
	consumer := mustSchema(t, `{"type": "string", "format": "email"}`)
	assert.Empty(t, compat.Check(producer, consumer))

	producerNoFormat := mustSchema(t, `{"type": "string"}`)
	assert.NotEmpty(t, compat.Check(producerNoFormat, consumer))
}

func TestCheck_RangeNarrowing(t *testing.T) {
	min5 := mustSchema(t, `{"type": "integer", "minimum": 5}`)
	min0 := mustSchema(t, `{"type": "integer", "minimum": 0}`)
	assert.Empty(t, compat.Check(min5, min0), "tighter producer bound satisfies looser consumer bound")
	assert.NotEmpty(t, compat.Check(min0, min5), "looser producer bound cannot satisfy tighter consumer bound")
}
