// Package registry provides model definitions for the supported chat and
// image providers. The static tables below carry the per-model output caps
// applied when shaping upstream requests.
package registry

// ModelInfo describes one model exposed through the proxy.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`

	// Provider is the route/adapter identifier serving the model.
	Provider string `json:"provider"`

	Kind        string `json:"kind"`
	DisplayName string `json:"display_name,omitempty"`

	// ContextLength is informational; the proxy does not trim history.
	ContextLength int `json:"context_length,omitempty"`

	// MaxCompletionTokens is sent as the output cap. 0 means no cap.
	MaxCompletionTokens int `json:"max_completion_tokens,omitempty"`

	ImageInput bool `json:"image_input,omitempty"`
}

// Model kinds.
const (
	KindChat  = "chat"
	KindImage = "image"
)

// ProviderImage groups the image generators behind /chat/image.
const ProviderImage = "image"

// GetOpenAIModels returns the OpenAI chat models. Only the vision-capable
// models carry an explicit output cap; the rest use the upstream default.
func GetOpenAIModels() []*ModelInfo {
	return []*ModelInfo{
		{ID: "gpt-3.5-turbo", Object: "model", OwnedBy: "openai", Provider: "openai", Kind: KindChat, DisplayName: "GPT-3.5 Turbo", ContextLength: 16385},
		{ID: "gpt-4", Object: "model", OwnedBy: "openai", Provider: "openai", Kind: KindChat, DisplayName: "GPT-4", ContextLength: 8192},
		{ID: "gpt-4-turbo-preview", Object: "model", OwnedBy: "openai", Provider: "openai", Kind: KindChat, DisplayName: "GPT-4 Turbo", ContextLength: 128000},
		{ID: "gpt-4-vision-preview", Object: "model", OwnedBy: "openai", Provider: "openai", Kind: KindChat, DisplayName: "GPT-4 Vision", ContextLength: 128000, MaxCompletionTokens: 4096, ImageInput: true},
		{ID: "gpt-4o", Object: "model", OwnedBy: "openai", Provider: "openai", Kind: KindChat, DisplayName: "GPT-4o", ContextLength: 128000, MaxCompletionTokens: 4096, ImageInput: true},
		{ID: "gpt-4o-mini", Object: "model", OwnedBy: "openai", Provider: "openai", Kind: KindChat, DisplayName: "GPT-4o mini", ContextLength: 128000, MaxCompletionTokens: 4096, ImageInput: true},
	}
}

// GetGeminiModels returns the Gemini chat models.
func GetGeminiModels() []*ModelInfo {
	return []*ModelInfo{
		{ID: "gemini-pro", Object: "model", OwnedBy: "google", Provider: "google", Kind: KindChat, DisplayName: "Gemini Pro", ContextLength: 30720, MaxCompletionTokens: 2048},
		{ID: "gemini-pro-vision", Object: "model", OwnedBy: "google", Provider: "google", Kind: KindChat, DisplayName: "Gemini Pro Vision", ContextLength: 12288, MaxCompletionTokens: 4096, ImageInput: true},
		{ID: "gemini-1.5-pro-latest", Object: "model", OwnedBy: "google", Provider: "google", Kind: KindChat, DisplayName: "Gemini 1.5 Pro", ContextLength: 1040384, MaxCompletionTokens: 8192, ImageInput: true},
		{ID: "gemini-1.5-flash", Object: "model", OwnedBy: "google", Provider: "google", Kind: KindChat, DisplayName: "Gemini 1.5 Flash", ContextLength: 1040384, MaxCompletionTokens: 8192, ImageInput: true},
	}
}

// GetGroqModels returns the models served by Groq.
func GetGroqModels() []*ModelInfo {
	return []*ModelInfo{
		{ID: "llama3-8b-8192", Object: "model", OwnedBy: "meta", Provider: "groq", Kind: KindChat, DisplayName: "LLaMA3-8b", ContextLength: 8192, MaxCompletionTokens: 8192},
		{ID: "llama3-70b-8192", Object: "model", OwnedBy: "meta", Provider: "groq", Kind: KindChat, DisplayName: "LLaMA3-70b", ContextLength: 8192, MaxCompletionTokens: 8192},
		{ID: "mixtral-8x7b-32768", Object: "model", OwnedBy: "mistral", Provider: "groq", Kind: KindChat, DisplayName: "Mixtral-8x7b", ContextLength: 32768, MaxCompletionTokens: 4096},
		{ID: "gemma-7b-it", Object: "model", OwnedBy: "google", Provider: "groq", Kind: KindChat, DisplayName: "Gemma-7b IT", ContextLength: 8192, MaxCompletionTokens: 8192},
	}
}

// GetMistralModels returns the Mistral platform models.
func GetMistralModels() []*ModelInfo {
	return []*ModelInfo{
		{ID: "mistral-tiny", Object: "model", OwnedBy: "mistral", Provider: "mistral", Kind: KindChat, DisplayName: "Mistral Tiny", ContextLength: 32000, MaxCompletionTokens: 2000},
		{ID: "mistral-small-latest", Object: "model", OwnedBy: "mistral", Provider: "mistral", Kind: KindChat, DisplayName: "Mistral Small", ContextLength: 32000, MaxCompletionTokens: 2000},
		{ID: "mistral-medium-latest", Object: "model", OwnedBy: "mistral", Provider: "mistral", Kind: KindChat, DisplayName: "Mistral Medium", ContextLength: 32000, MaxCompletionTokens: 2000},
		{ID: "mistral-large-latest", Object: "model", OwnedBy: "mistral", Provider: "mistral", Kind: KindChat, DisplayName: "Mistral Large", ContextLength: 32000, MaxCompletionTokens: 2000},
	}
}

// GetPerplexityModels returns the Perplexity models. Perplexity requests are
// sent without an output cap.
func GetPerplexityModels() []*ModelInfo {
	return []*ModelInfo{
		{ID: "pplx-7b-online", Object: "model", OwnedBy: "perplexity", Provider: "perplexity", Kind: KindChat, DisplayName: "Perplexity Online 7B", ContextLength: 4096},
		{ID: "pplx-70b-online", Object: "model", OwnedBy: "perplexity", Provider: "perplexity", Kind: KindChat, DisplayName: "Perplexity Online 70B", ContextLength: 4096},
		{ID: "sonar-small-online", Object: "model", OwnedBy: "perplexity", Provider: "perplexity", Kind: KindChat, DisplayName: "Sonar Small Online", ContextLength: 12000},
		{ID: "sonar-medium-online", Object: "model", OwnedBy: "perplexity", Provider: "perplexity", Kind: KindChat, DisplayName: "Sonar Medium Online", ContextLength: 12000},
	}
}

// GetImageModels returns the image generators.
func GetImageModels() []*ModelInfo {
	return []*ModelInfo{
		{ID: "dall-e-3", Object: "model", OwnedBy: "openai", Provider: ProviderImage, Kind: KindImage, DisplayName: "Dall-E-3"},
		{ID: "stable-diffusion", Object: "model", OwnedBy: "stability", Provider: ProviderImage, Kind: KindImage, DisplayName: "Stable-Diffusion"},
	}
}
