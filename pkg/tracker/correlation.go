package tracker

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/flowscope/flowscope/pkg/domain/types"
)

// correlationFields are the well-known message fields probed for a
// correlation key when the host did not pass one explicitly.
var correlationFields = []string{
	"_msgid",
	"msgid",
	"messageId",
	"message_id",
	"correlationId",
	"correlation_id",
}

// DeriveKey resolves the correlation key for an event: the explicit key when
// the host propagated one, otherwise a best-effort probe of well-known
// fields on the raw message. Returns the zero key when nothing usable is
// found. Total; reading the message defensively never panics.
func DeriveKey(explicit types.CorrelationKey, raw interface{}) (key types.CorrelationKey) {
	defer func() {
		if recover() != nil {
			key = ""
		}
	}()

	if !explicit.IsZero() {
		return explicit
	}

	switch msg := raw.(type) {
	case map[string]interface{}:
		for _, field := range correlationFields {
			if v, ok := msg[field]; ok {
				if s := keyString(v); s != "" {
					return types.CorrelationKey(s)
				}
			}
		}
	case []byte:
		return jsonKey(string(msg))
	case string:
		return jsonKey(msg)
	}
	return ""
}

func jsonKey(raw string) types.CorrelationKey {
	if !gjson.Valid(raw) {
		return ""
	}
	for _, field := range correlationFields {
		if r := gjson.Get(raw, field); r.Exists() {
			if s := keyString(r.Value()); s != "" {
				return types.CorrelationKey(s)
			}
		}
	}
	return ""
}

// keyString converts a field value to a usable key string. Only scalars
// qualify; composite values are not identities.
func keyString(v interface{}) string {
	switch tv := v.(type) {
	case string:
		return tv
	case float64, int, int64:
		return fmt.Sprint(tv)
	default:
		return ""
	}
}
