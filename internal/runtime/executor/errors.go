package executor

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// CredentialMissingError is returned before any network call when no API key
// is available for the provider.
type CredentialMissingError struct {
	Provider string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("%s API Key not found", e.Provider)
}

// UpstreamError is a non-success response from a provider. Message carries
// the provider's own text.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// StatusCode returns the upstream HTTP status.
func (e *UpstreamError) StatusCode() int { return e.Status }

// upstreamMessage extracts the human readable error from a provider payload.
func upstreamMessage(body []byte, code int) string {
	for _, path := range []string{"error.message", "0.error.message", "message", "error", "detail"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && !gjson.ValidBytes(body) {
		return trimmed
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("upstream returned status %d", code)
}
