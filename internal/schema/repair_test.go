package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"prose around", `Sicher! {"a":1} Gerne wieder.`, `{"a":1}`},
		{"no object", "nur Text", ""},
		{"truncated keeps tail", `Antwort: {"a": 1`, `{"a": 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestStripTrailingCommas(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripTrailingCommas(`{"a":1,}`))
	assert.Equal(t, `[1,2]`, stripTrailingCommas(`[1,2,]`))
	assert.Equal(t, `{"a":[1],"b":2}`, stripTrailingCommas(`{"a":[1,],"b":2,}`))
}

func TestQuoteBareKeys(t *testing.T) {
	assert.Equal(t, `{"intent": "emergency"}`, quoteBareKeys(`{intent: "emergency"}`))
	assert.Equal(t, `{"a":1, "b":2}`, quoteBareKeys(`{a:1, b:2}`))
	// Already-quoted keys are untouched.
	assert.Equal(t, `{"a":1}`, quoteBareKeys(`{"a":1}`))
}

func TestCloseUnbalancedBraces(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1`, `{"a":1}`},
		{`{"a":[1,2`, `{"a":[1,2]}`},
		{`{"a":"{not a brace}"`, `{"a":"{not a brace}"}`},
		{`{"a":"unterminated`, `{"a":"unterminated"}`},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		got := closeUnbalancedBraces(tt.in)
		assert.Equal(t, tt.want, got)
		assert.True(t, json.Valid([]byte(got)), "result should be valid JSON: %s", got)
	}
}
