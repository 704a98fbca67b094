package coerce

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "clean object passes through",
			raw:      `{"is_food": true, "confidence": 0.9}`,
			expected: `{"is_food": true, "confidence": 0.9}`,
		},
		{
			name:     "markdown fence stripped",
			raw:      "```json\n{\"is_food\": true}\n```",
			expected: "{\"is_food\": true}",
		},
		{
			name:     "fence without language tag",
			raw:      "```\n{\"a\": 1}\n```",
			expected: "{\"a\": 1}",
		},
		{
			name:     "preamble before object dropped",
			raw:      `Here is the result: {"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "trailing prose after root dropped",
			raw:      `{"a": 1} I hope that helps!`,
			expected: `{"a": 1}`,
		},
		{
			name:     "trailing comma in object removed",
			raw:      `{"a": 1,}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "trailing comma in array removed",
			raw:      `{"items": [1, 2,]}`,
			expected: `{"items": [1, 2]}`,
		},
		{
			name:     "trailing comma with whitespace removed",
			raw:      "{\"a\": 1,\n  }",
			expected: "{\"a\": 1\n  }",
		},
		{
			name:     "unterminated string closed",
			raw:      `{"reason": "cut off mid sent`,
			expected: `{"reason": "cut off mid sent"}`,
		},
		{
			name:     "unbalanced brackets closed in order",
			raw:      `{"items": [{"name": "rice", "kcal": 200`,
			expected: `{"items": [{"name": "rice", "kcal": 200}]}`,
		},
		{
			name:     "truncated after comma",
			raw:      `{"items": [{"name": "rice"},`,
			expected: `{"items": [{"name": "rice"}]}`,
		},
		{
			name:     "array root survives",
			raw:      `[1, 2, 3]`,
			expected: `[1, 2, 3]`,
		},
		{
			name:     "escaped quote does not close string",
			raw:      `{"reason": "he said \"dinner\""}`,
			expected: `{"reason": "he said \"dinner\""}`,
		},
		{
			name:     "braces inside strings ignored",
			raw:      `{"reason": "use {curly} syntax"}`,
			expected: `{"reason": "use {curly} syntax"}`,
		},
		{
			name:     "no JSON at all",
			raw:      "Sorry, I cannot help with that.",
			expected: "",
		},
		{
			name:     "empty input",
			raw:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Repair(tt.raw))
		})
	}
}

func TestRepairProducesValidJSON(t *testing.T) {
	// Every non-empty repair result must unmarshal cleanly.
	inputs := []string{
		"```json\n{\"items\": [{\"name\": \"soup\", \"kcal\": 120,}],}\n```",
		`{"a": {"b": [1, {"c": "unterminated`,
		`prefix {"a": 1} suffix`,
		`[{"name": "tea"},`,
	}
	for _, raw := range inputs {
		repaired := Repair(raw)
		require.NotEmpty(t, repaired, "input: %s", raw)
		var v any
		require.NoError(t, json.Unmarshal([]byte(repaired), &v), "repaired: %s", repaired)
	}
}

func TestRepairIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": 1,}`,
		"```json\n{\"b\": [1, 2,]}\n```",
		`{"reason": "cut`,
	}
	for _, raw := range inputs {
		once := Repair(raw)
		assert.Equal(t, once, Repair(once), "input: %s", raw)
	}
}

func TestObject(t *testing.T) {
	t.Run("object root", func(t *testing.T) {
		obj, ok := Object(`{"is_food": true}`)
		require.True(t, ok)
		assert.Equal(t, true, obj["is_food"])
	})

	t.Run("array root rejected", func(t *testing.T) {
		_, ok := Object(`[1, 2]`)
		assert.False(t, ok)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, ok := Object("not json")
		assert.False(t, ok)
	})
}
