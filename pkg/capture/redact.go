package capture

import "strings"

// RedactionMarker replaces the value of any sensitive-looking field.
const RedactionMarker = "[REDACTED]"

// sensitiveKeyPatterns match field names that suggest secrets. Matching is
// case-insensitive substring search over the key name.
var sensitiveKeyPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"api-key",
	"credential",
	"authorization",
	"private_key",
	"privatekey",
	"bearer",
	"client_secret",
}

// IsSensitiveKey reports whether a field name looks like it carries a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Redact walks a truncated preview and replaces the value of any
// sensitive-looking key with RedactionMarker, regardless of value type.
// It operates only on previews (maps and slices produced by Truncate), is
// total, and is idempotent: redacting an already-redacted preview changes
// nothing. Fields that cannot be inspected are left as-is.
func Redact(preview interface{}) (out interface{}) {
	defer func() {
		if recover() != nil {
			out = preview
		}
	}()
	return redactValue(preview)
}

func redactValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(tv))
		for key, val := range tv {
			if IsSensitiveKey(key) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = redactValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, val := range tv {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}
