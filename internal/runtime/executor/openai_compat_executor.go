package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/registry"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Default public endpoints of the OpenAI-schema backends.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	MistralBaseURL    = "https://api.mistral.ai/v1"
	PerplexityBaseURL = "https://api.perplexity.ai"
)

// CustomPrefix marks identifiers of configured OpenAI-compatible backends.
const CustomPrefix = "custom:"

// OpenAICompatExecutor streams chat completions from any backend that speaks
// the OpenAI chat/completions schema.
type OpenAICompatExecutor struct {
	identifier  string
	displayName string
	baseURL     string
	// maxTokens overrides the model table when > 0.
	maxTokens int
	// capOutput is false for backends that must not receive max_tokens.
	capOutput bool
	models    *registry.ModelRegistry
	client    *http.Client
}

func newCompat(id, display, defaultBase string, cfg config.ProviderConfig, capOutput bool, models *registry.ModelRegistry) *OpenAICompatExecutor {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBase
	}
	return &OpenAICompatExecutor{
		identifier:  id,
		displayName: display,
		baseURL:     base,
		maxTokens:   cfg.MaxTokens,
		capOutput:   capOutput,
		models:      models,
		client:      newHTTPClient(),
	}
}

// NewOpenAIExecutor builds the OpenAI adapter.
func NewOpenAIExecutor(cfg config.ProviderConfig, models *registry.ModelRegistry) *OpenAICompatExecutor {
	return newCompat(config.ProviderOpenAI, "OpenAI", OpenAIBaseURL, cfg, true, models)
}

// NewGroqExecutor builds the Groq adapter.
func NewGroqExecutor(cfg config.ProviderConfig, models *registry.ModelRegistry) *OpenAICompatExecutor {
	return newCompat(config.ProviderGroq, "Groq", GroqBaseURL, cfg, true, models)
}

// NewMistralExecutor builds the Mistral adapter.
func NewMistralExecutor(cfg config.ProviderConfig, models *registry.ModelRegistry) *OpenAICompatExecutor {
	return newCompat(config.ProviderMistral, "Mistral", MistralBaseURL, cfg, true, models)
}

// NewPerplexityExecutor builds the Perplexity adapter. Perplexity requests
// never carry max_tokens.
func NewPerplexityExecutor(cfg config.ProviderConfig, models *registry.ModelRegistry) *OpenAICompatExecutor {
	return newCompat(config.ProviderPerplexity, "Perplexity", PerplexityBaseURL, cfg, false, models)
}

// NewCustomExecutor builds an adapter for a configured compatible backend.
func NewCustomExecutor(entry config.OpenAICompatibility, models *registry.ModelRegistry) *OpenAICompatExecutor {
	display := entry.DisplayName
	if display == "" {
		display = entry.Name
	}
	cfg := config.ProviderConfig{BaseURL: entry.BaseURL, MaxTokens: entry.MaxTokens}
	return newCompat(CustomPrefix+entry.Name, display, "", cfg, true, models)
}

func (e *OpenAICompatExecutor) Identifier() string { return e.identifier }

func (e *OpenAICompatExecutor) DisplayName() string { return e.displayName }

// outputCap resolves max_tokens: configured override, then the model table,
// lowered by the request's own setting. 0 means the field is omitted.
func (e *OpenAICompatExecutor) outputCap(req Request) int {
	if !e.capOutput {
		return 0
	}
	limit := e.maxTokens
	if limit <= 0 {
		limit = e.models.MaxOutputTokens(req.Model)
	}
	if s := req.Settings.MaxTokens; s != nil && *s > 0 && (limit == 0 || *s < limit) {
		limit = *s
	}
	return limit
}

func (e *OpenAICompatExecutor) buildPayload(req Request) ([]byte, error) {
	payload := []byte(`{}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "model", req.Model); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetRawBytes(payload, "messages", joinMessages(req.Messages)); err != nil {
		return nil, err
	}
	if req.Settings.Temperature != nil {
		if payload, err = sjson.SetBytes(payload, "temperature", *req.Settings.Temperature); err != nil {
			return nil, err
		}
	}
	if limit := e.outputCap(req); limit > 0 {
		if payload, err = sjson.SetBytes(payload, "max_tokens", limit); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(payload, "stream", true)
}

// ExecuteStream opens a streaming chat completion.
func (e *OpenAICompatExecutor) ExecuteStream(ctx context.Context, apiKey string, req Request) (TokenStream, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &CredentialMissingError{Provider: e.displayName}
	}
	payload, err := e.buildPayload(req)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
		"Accept":        "text/event-stream",
	}
	_, body, err := send(ctx, e.client, e.identifier, http.MethodPost, joinURL(e.baseURL, "/chat/completions"), payload, headers)
	if err != nil {
		return nil, err
	}
	return newSSETokenStream(e.identifier, body, extractOpenAIDelta), nil
}

func extractOpenAIDelta(payload []byte) (string, error) {
	if msg := gjson.GetBytes(payload, "error.message"); msg.Exists() {
		return "", &UpstreamError{Status: http.StatusInternalServerError, Message: msg.String()}
	}
	return gjson.GetBytes(payload, "choices.0.delta.content").String(), nil
}

func joinMessages(messages []json.RawMessage) []byte {
	parts := make([][]byte, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(parts, []byte(",")))
	buf.WriteByte(']')
	return buf.Bytes()
}
