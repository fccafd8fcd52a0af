package executor

import (
	"sort"

	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/registry"
)

// Credential names where an adapter's key lives, both in the server
// configuration and in a caller's profile.
type Credential struct {
	// Server is the configured key; it wins when set.
	Server string
	// ProfileKey names the profile api_keys entry used as a fallback.
	ProfileKey string
}

// Registry maps routes and image models to adapters. A registry is built
// from one configuration snapshot and never mutated.
type Registry struct {
	models      *registry.ModelRegistry
	chat        map[string]ChatExecutor
	custom      map[string]ChatExecutor
	images      map[string]ImageExecutor
	assistants  *AssistantsClient
	credentials map[string]Credential
}

// NewRegistry builds every adapter from cfg.
func NewRegistry(cfg *config.Config) *Registry {
	if cfg == nil {
		cfg = &config.Config{}
	}
	p := cfg.Providers

	var extra []*registry.ModelInfo
	for _, entry := range cfg.OpenAICompatibility {
		for _, model := range entry.Models {
			extra = append(extra, &registry.ModelInfo{
				ID:                  model,
				Object:              "model",
				OwnedBy:             entry.Name,
				Provider:            CustomPrefix + entry.Name,
				Kind:                registry.KindChat,
				DisplayName:         model,
				MaxCompletionTokens: entry.MaxTokens,
			})
		}
	}
	models := registry.NewModelRegistry(extra...)

	r := &Registry{
		models:      models,
		chat:        make(map[string]ChatExecutor),
		custom:      make(map[string]ChatExecutor),
		images:      make(map[string]ImageExecutor),
		assistants:  NewAssistantsClient(p.OpenAI),
		credentials: make(map[string]Credential),
	}
	for _, e := range []ChatExecutor{
		NewOpenAIExecutor(p.OpenAI, models),
		NewGeminiExecutor(p.Google, models),
		NewGroqExecutor(p.Groq, models),
		NewMistralExecutor(p.Mistral, models),
		NewPerplexityExecutor(p.Perplexity, models),
	} {
		r.chat[e.Identifier()] = e
		r.credentials[e.Identifier()] = Credential{Server: p.Provider(e.Identifier()).APIKey, ProfileKey: e.Identifier()}
	}
	for _, entry := range cfg.OpenAICompatibility {
		e := NewCustomExecutor(entry, models)
		r.custom[entry.Name] = e
		r.credentials[e.Identifier()] = Credential{Server: entry.APIKey, ProfileKey: e.Identifier()}
	}

	r.images[ModelDallE3] = NewDallEExecutor(p.OpenAI)
	r.credentials[ModelDallE3] = Credential{Server: p.OpenAI.APIKey, ProfileKey: config.ProviderOpenAI}
	r.images[ModelStableDiffusion] = NewStableDiffusionExecutor(p.StableDiffusion)
	r.credentials[ModelStableDiffusion] = Credential{Server: p.StableDiffusion.APIKey, ProfileKey: config.ProviderStableDiffusion}
	r.credentials[assistantsCredential] = Credential{Server: p.OpenAI.APIKey, ProfileKey: config.ProviderOpenAI}
	return r
}

const assistantsCredential = "assistants"

// Models returns the model table the adapters were built with.
func (r *Registry) Models() *registry.ModelRegistry { return r.models }

// Chat returns the adapter behind /chat/<provider>.
func (r *Registry) Chat(provider string) (ChatExecutor, bool) {
	e, ok := r.chat[provider]
	return e, ok
}

// Custom returns the configured compatible backend called name.
func (r *Registry) Custom(name string) (ChatExecutor, bool) {
	e, ok := r.custom[name]
	return e, ok
}

// CustomNames lists the configured compatible backends.
func (r *Registry) CustomNames() []string {
	names := make([]string, 0, len(r.custom))
	for name := range r.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Image returns the generator for model. Any model other than dall-e-3 is
// served by Stable Diffusion.
func (r *Registry) Image(model string) ImageExecutor {
	if e, ok := r.images[model]; ok {
		return e
	}
	return r.images[ModelStableDiffusion]
}

// Assistants returns the OpenAI assistants client.
func (r *Registry) Assistants() *AssistantsClient { return r.assistants }

// Credential returns the key locations for an adapter identifier.
func (r *Registry) Credential(identifier string) Credential {
	return r.credentials[identifier]
}

// AssistantsCredential returns the key locations for the assistants listing.
func (r *Registry) AssistantsCredential() Credential {
	return r.credentials[assistantsCredential]
}
