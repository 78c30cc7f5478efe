package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSpecialCaseEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		special bool
	}{
		{"nil", nil, false},
		{"ordinary map", map[string]interface{}{"payload": 1}, false},
		{"finalResponse true", map[string]interface{}{"finalResponse": true}, true},
		{"final_answer string", map[string]interface{}{"final_answer": "done"}, true},
		{"modelResponse object", map[string]interface{}{"modelResponse": map[string]interface{}{"text": "hi"}}, true},
		{"marker false", map[string]interface{}{"finalResponse": false}, false},
		{"marker empty string", map[string]interface{}{"finalAnswer": ""}, false},
		{"marker zero", map[string]interface{}{"finalResponse": 0}, false},
		{"json string with marker", `{"final_response": "yes"}`, true},
		{"json string without marker", `{"payload": "yes"}`, false},
		{"json bytes with marker", []byte(`{"modelResponse": {"text": "x"}}`), true},
		{"invalid json", "not json at all", false},
		{"scalar", 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.special, IsSpecialCaseEvent(tt.raw))
		})
	}
}

func TestSelectLimits(t *testing.T) {
	def := DefaultLimits()
	relaxed := RelaxedLimits()

	got := SelectLimits(map[string]interface{}{"payload": 1}, def, relaxed)
	assert.Equal(t, def, got)

	got = SelectLimits(map[string]interface{}{"finalResponse": true, "payload": 1}, def, relaxed)
	assert.Equal(t, relaxed, got)
}

func TestRelaxedLimits_LooserThanDefault(t *testing.T) {
	def := DefaultLimits()
	relaxed := RelaxedLimits()

	assert.Greater(t, relaxed.MaxDepth, def.MaxDepth)
	assert.Greater(t, relaxed.MaxKeys, def.MaxKeys)
	assert.Greater(t, relaxed.MaxArrayItems, def.MaxArrayItems)
	assert.Greater(t, relaxed.MaxStringLength, def.MaxStringLength)
	assert.Greater(t, relaxed.MaxPayloadBytes, def.MaxPayloadBytes)
}
