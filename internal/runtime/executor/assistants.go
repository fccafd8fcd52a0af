package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/tidwall/gjson"
)

// AssistantsClient lists the OpenAI assistants owned by the configured key.
type AssistantsClient struct {
	baseURL string
	client  *http.Client
}

// NewAssistantsClient uses the OpenAI provider settings.
func NewAssistantsClient(cfg config.ProviderConfig) *AssistantsClient {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = OpenAIBaseURL
	}
	return &AssistantsClient{baseURL: base, client: newHTTPClient()}
}

func (c *AssistantsClient) DisplayName() string { return "OpenAI" }

// List returns up to 100 assistants as raw JSON objects.
func (c *AssistantsClient) List(ctx context.Context, apiKey string) ([]json.RawMessage, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &CredentialMissingError{Provider: c.DisplayName()}
	}
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
		"OpenAI-Beta":   "assistants=v2",
	}
	_, body, err := send(ctx, c.client, "assistants", http.MethodGet, joinURL(c.baseURL, "/assistants?limit=100"), nil, headers)
	if err != nil {
		return nil, err
	}
	data, err := readJSON("assistants", body)
	if err != nil {
		return nil, err
	}
	items := gjson.GetBytes(data, "data").Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out, nil
}
