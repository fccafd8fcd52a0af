package util

import (
	"encoding/json"
	"testing"
)

func TestRedactSensitiveJSON(t *testing.T) {
	in := []byte(`{"key":"sd-secret","prompt":"a cat","nested":{"api_key":"x","Authorization":"Bearer y"},"list":[{"access_token":"z"}]}`)
	out := RedactSensitiveJSON(in)

	var parsed map[string]any
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["key"] != redactedValue {
		t.Errorf("key = %v", parsed["key"])
	}
	if parsed["prompt"] != "a cat" {
		t.Errorf("prompt = %v", parsed["prompt"])
	}
	nested := parsed["nested"].(map[string]any)
	if nested["api_key"] != redactedValue || nested["Authorization"] != redactedValue {
		t.Errorf("nested = %v", nested)
	}
	item := parsed["list"].([]any)[0].(map[string]any)
	if item["access_token"] != redactedValue {
		t.Errorf("list item = %v", item)
	}
}

func TestRedactSensitiveJSON_NonJSON(t *testing.T) {
	for _, in := range []string{"", "plain text", "{broken"} {
		if got := string(RedactSensitiveJSON([]byte(in))); got != in {
			t.Errorf("RedactSensitiveJSON(%q) = %q", in, got)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"alt=sse", "alt=sse"},
		{"alt=sse&key=AIza123", "alt=sse&key=%5BREDACTED%5D"},
		{"%zz", "%zz"},
	}
	for _, tt := range tests {
		if got := MaskSensitiveQuery(tt.in); got != tt.want {
			t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "***"},
		{"sk-proj-abcdef1234", "sk-p***34"},
	}
	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
