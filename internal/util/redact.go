// Package util holds small helpers shared by the server and the provider
// executors.
package util

import (
	"encoding/json"
	"net/url"
	"strings"
)

const redactedValue = "[REDACTED]"

// RedactSensitiveJSON masks credential-like fields in a JSON payload before it
// is logged. Payloads that are not JSON are returned unchanged.
func RedactSensitiveJSON(body []byte) []byte {
	trim := strings.TrimSpace(string(body))
	if trim == "" {
		return body
	}
	if !strings.HasPrefix(trim, "{") && !strings.HasPrefix(trim, "[") {
		return body
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	out, err := json.Marshal(redactValue(v))
	if err != nil {
		return body
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if isSensitiveKey(k) {
				t[k] = redactedValue
				continue
			}
			t[k] = redactValue(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redactValue(t[i])
		}
		return t
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "key" {
		// Stable Diffusion carries its credential in the body as "key".
		return true
	}
	for _, marker := range []string{"authorization", "cookie", "api_key", "apikey", "api-key", "secret", "token", "password"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// MaskSensitiveQuery redacts credential-like query parameters such as
// Gemini's "key" so request paths can be logged.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	changed := false
	for k := range values {
		if isSensitiveKey(k) {
			values.Set(k, redactedValue)
			changed = true
		}
	}
	if !changed {
		return rawQuery
	}
	return values.Encode()
}

// MaskCredential keeps a short prefix of a secret for correlation in logs.
func MaskCredential(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-2:]
}
