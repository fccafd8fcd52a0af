package executor

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/registry"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GeminiBaseURL is the public Generative Language endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiExecutor streams from the Gemini streamGenerateContent API.
type GeminiExecutor struct {
	baseURL   string
	maxTokens int
	models    *registry.ModelRegistry
	client    *http.Client
}

// NewGeminiExecutor builds the Gemini adapter.
func NewGeminiExecutor(cfg config.ProviderConfig, models *registry.ModelRegistry) *GeminiExecutor {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = GeminiBaseURL
	}
	return &GeminiExecutor{baseURL: base, maxTokens: cfg.MaxTokens, models: models, client: newHTTPClient()}
}

func (e *GeminiExecutor) Identifier() string { return config.ProviderGoogle }

func (e *GeminiExecutor) DisplayName() string { return "Google Gemini" }

// buildPayload converts the history into Gemini contents. Messages already
// in Gemini form keep their parts; OpenAI-style content is converted.
func (e *GeminiExecutor) buildPayload(req Request) ([]byte, error) {
	payload := []byte(`{"contents":[]}`)
	system := []byte(`[]`)
	var err error
	for _, raw := range req.Messages {
		msg := gjson.ParseBytes(raw)
		role := msg.Get("role").String()
		if role == "system" {
			if text := messageText(msg); text != "" {
				system, _ = sjson.SetBytes(system, "-1", map[string]string{"text": text})
			}
			continue
		}
		content := []byte(`{}`)
		if role == "assistant" || role == "model" {
			role = "model"
		} else {
			role = "user"
		}
		if content, err = sjson.SetBytes(content, "role", role); err != nil {
			return nil, err
		}
		if content, err = sjson.SetRawBytes(content, "parts", geminiParts(msg)); err != nil {
			return nil, err
		}
		if payload, err = sjson.SetRawBytes(payload, "contents.-1", content); err != nil {
			return nil, err
		}
	}
	if gjson.ParseBytes(system).Get("#").Int() > 0 {
		if payload, err = sjson.SetRawBytes(payload, "systemInstruction.parts", system); err != nil {
			return nil, err
		}
	}
	if req.Settings.Temperature != nil {
		if payload, err = sjson.SetBytes(payload, "generationConfig.temperature", *req.Settings.Temperature); err != nil {
			return nil, err
		}
	}
	limit := e.maxTokens
	if limit <= 0 {
		limit = e.models.MaxOutputTokens(req.Model)
	}
	if s := req.Settings.MaxTokens; s != nil && *s > 0 && (limit == 0 || *s < limit) {
		limit = *s
	}
	if limit > 0 {
		if payload, err = sjson.SetBytes(payload, "generationConfig.maxOutputTokens", limit); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func geminiParts(msg gjson.Result) []byte {
	if parts := msg.Get("parts"); parts.IsArray() {
		return []byte(parts.Raw)
	}
	out := []byte(`[]`)
	content := msg.Get("content")
	if content.Type == gjson.String {
		out, _ = sjson.SetBytes(out, "-1", map[string]string{"text": content.String()})
		return out
	}
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text":
			out, _ = sjson.SetBytes(out, "-1", map[string]string{"text": part.Get("text").String()})
		case "image_url":
			if mime, data, ok := splitDataURL(part.Get("image_url.url").String()); ok {
				out, _ = sjson.SetBytes(out, "-1", map[string]any{"inlineData": map[string]string{"mimeType": mime, "data": data}})
			}
		}
		return true
	})
	return out
}

// splitDataURL parses data:<mime>;base64,<data>.
func splitDataURL(raw string) (string, string, bool) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", "", false
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", false
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 || mime == "" {
		return "", "", false
	}
	return mime, data, true
}

// ExecuteStream opens a streamGenerateContent call in SSE mode.
func (e *GeminiExecutor) ExecuteStream(ctx context.Context, apiKey string, req Request) (TokenStream, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &CredentialMissingError{Provider: e.DisplayName()}
	}
	payload, err := e.buildPayload(req)
	if err != nil {
		return nil, err
	}
	endpoint := joinURL(e.baseURL, "/models/"+url.PathEscape(req.Model)+":streamGenerateContent?alt=sse")
	headers := map[string]string{
		"x-goog-api-key": apiKey,
		"Accept":         "text/event-stream",
	}
	_, body, err := send(ctx, e.client, "gemini", http.MethodPost, endpoint, payload, headers)
	if err != nil {
		return nil, err
	}
	return newSSETokenStream("gemini", body, extractGeminiText), nil
}

func extractGeminiText(payload []byte) (string, error) {
	if msg := gjson.GetBytes(payload, "error.message"); msg.Exists() {
		status := int(gjson.GetBytes(payload, "error.code").Int())
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return "", &UpstreamError{Status: status, Message: msg.String()}
	}
	candidates := gjson.GetBytes(payload, "candidates")
	if !candidates.Exists() {
		if reason := gjson.GetBytes(payload, "promptFeedback.blockReason").String(); reason != "" {
			return "", &UpstreamError{Status: http.StatusBadRequest, Message: "prompt blocked: " + reason}
		}
		return "", nil
	}
	var sb strings.Builder
	candidates.Get("0.content.parts").ForEach(func(_, part gjson.Result) bool {
		if part.Get("thought").Bool() {
			return true
		}
		sb.WriteString(part.Get("text").String())
		return true
	})
	return sb.String(), nil
}
