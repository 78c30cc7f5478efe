package capture

import (
	"github.com/tidwall/gjson"
)

// specialCaseMarkers are the well-known metadata fields that mark a message
// as carrying final-answer or model-response content. Such payloads get the
// relaxed limit profile because truncating them destroys the delivered
// content's usefulness.
var specialCaseMarkers = []string{
	"finalResponse",
	"final_response",
	"finalAnswer",
	"final_answer",
	"modelResponse",
	"model_response",
}

// IsSpecialCaseEvent reports whether a raw message is marked as a
// final-answer / model-response payload. Best-effort: detection failure on
// any input shape falls through to false, never panics.
func IsSpecialCaseEvent(raw interface{}) (special bool) {
	defer func() {
		if recover() != nil {
			special = false
		}
	}()

	switch msg := raw.(type) {
	case map[string]interface{}:
		for _, marker := range specialCaseMarkers {
			if truthy(msg[marker]) {
				return true
			}
		}
	case []byte:
		return jsonHasMarker(string(msg))
	case string:
		return jsonHasMarker(msg)
	}
	return false
}

// jsonHasMarker probes raw JSON for marker fields without a full unmarshal.
func jsonHasMarker(raw string) bool {
	if !gjson.Valid(raw) {
		return false
	}
	for _, marker := range specialCaseMarkers {
		if truthyResult(gjson.Get(raw, marker)) {
			return true
		}
	}
	return false
}

// SelectLimits picks the limit profile for a raw message: relaxed for
// special-case events, tight otherwise.
func SelectLimits(raw interface{}, def, relaxed Limits) Limits {
	if IsSpecialCaseEvent(raw) {
		return relaxed
	}
	return def
}

func truthy(v interface{}) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case string:
		return tv != "" && tv != "false" && tv != "0"
	case float64:
		return tv != 0
	case int:
		return tv != 0
	case nil:
		return false
	default:
		return true
	}
}

func truthyResult(r gjson.Result) bool {
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.False, gjson.Null:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return truthy(r.Str)
	default:
		return true
	}
}
