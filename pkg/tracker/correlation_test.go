package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowscope/flowscope/pkg/domain/types"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name     string
		explicit types.CorrelationKey
		raw      interface{}
		want     types.CorrelationKey
	}{
		{
			name:     "explicit key wins over message fields",
			explicit: "explicit",
			raw:      map[string]interface{}{"_msgid": "other"},
			want:     "explicit",
		},
		{
			name: "msgid field",
			raw:  map[string]interface{}{"_msgid": "abc123", "payload": 1},
			want: "abc123",
		},
		{
			name: "messageId field",
			raw:  map[string]interface{}{"messageId": "xyz"},
			want: "xyz",
		},
		{
			name: "correlation_id field",
			raw:  map[string]interface{}{"correlation_id": "c-1"},
			want: "c-1",
		},
		{
			name: "numeric key is stringified",
			raw:  map[string]interface{}{"_msgid": float64(42)},
			want: "42",
		},
		{
			name: "composite value is not an identity",
			raw:  map[string]interface{}{"_msgid": map[string]interface{}{"nested": true}},
			want: "",
		},
		{
			name: "composite in one field falls through to the next",
			raw: map[string]interface{}{
				"_msgid": []interface{}{1, 2},
				"msgid":  "fallback",
			},
			want: "fallback",
		},
		{
			name: "json string message",
			raw:  `{"_msgid": "from-json", "payload": true}`,
			want: "from-json",
		},
		{
			name: "json bytes message",
			raw:  []byte(`{"correlationId": "from-bytes"}`),
			want: "from-bytes",
		},
		{
			name: "invalid json",
			raw:  "not json",
			want: "",
		},
		{
			name: "nil message",
			raw:  nil,
			want: "",
		},
		{
			name: "no recognized field",
			raw:  map[string]interface{}{"payload": "data"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveKey(tt.explicit, tt.raw))
		})
	}
}
