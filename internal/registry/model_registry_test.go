package registry

import (
	"sync"
	"testing"
)

func TestModelRegistry_MaxOutputTokens(t *testing.T) {
	r := NewModelRegistry()

	tests := []struct {
		name  string
		model string
		want  int
	}{
		{"gpt-4o capped", "gpt-4o", 4096},
		{"gpt-4o-mini capped", "gpt-4o-mini", 4096},
		{"vision preview capped", "gpt-4-vision-preview", 4096},
		{"gpt-3.5 uncapped", "gpt-3.5-turbo", 0},
		{"gpt-4 uncapped", "gpt-4", 0},
		{"groq llama", "llama3-70b-8192", 8192},
		{"groq mixtral", "mixtral-8x7b-32768", 4096},
		{"mistral", "mistral-large-latest", 2000},
		{"perplexity uncapped", "pplx-70b-online", 0},
		{"unknown model", "made-up-model", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.MaxOutputTokens(tt.model); got != tt.want {
				t.Errorf("MaxOutputTokens(%q) = %d, want %d", tt.model, got, tt.want)
			}
		})
	}
}

func TestModelRegistry_ProviderFor(t *testing.T) {
	r := NewModelRegistry()

	tests := []struct {
		model    string
		provider string
		ok       bool
	}{
		{"gpt-4o", "openai", true},
		{"gemini-1.5-flash", "google", true},
		{"gemma-7b-it", "groq", true},
		{"mistral-tiny", "mistral", true},
		{"sonar-small-online", "perplexity", true},
		{"dall-e-3", ProviderImage, true},
		{"stable-diffusion", ProviderImage, true},
		{"nope", "", false},
	}

	for _, tt := range tests {
		got, ok := r.ProviderFor(tt.model)
		if got != tt.provider || ok != tt.ok {
			t.Errorf("ProviderFor(%q) = (%q, %v), want (%q, %v)", tt.model, got, ok, tt.provider, tt.ok)
		}
	}
}

func TestModelRegistry_ExtraModelsOverride(t *testing.T) {
	r := NewModelRegistry(
		&ModelInfo{ID: "gpt-4o", Provider: "openai", Kind: KindChat, MaxCompletionTokens: 16384},
		&ModelInfo{ID: "meta-llama/llama-3-70b-instruct", Provider: "openrouter", Kind: KindChat},
		nil,
		&ModelInfo{ID: "  "},
	)

	if got := r.MaxOutputTokens("gpt-4o"); got != 16384 {
		t.Errorf("override not applied: %d", got)
	}
	models := r.GetModelsForProvider("openrouter")
	if len(models) != 1 || models[0].ID != "meta-llama/llama-3-70b-instruct" {
		t.Errorf("GetModelsForProvider(openrouter) = %v", models)
	}
}

func TestModelRegistry_GetModelInfoReturnsCopy(t *testing.T) {
	r := NewModelRegistry()

	info := r.GetModelInfo("gpt-4o")
	if info == nil {
		t.Fatal("expected gpt-4o to be registered")
	}
	info.MaxCompletionTokens = 1
	if got := r.MaxOutputTokens("gpt-4o"); got != 4096 {
		t.Errorf("registry mutated through returned copy: %d", got)
	}
	if r.GetModelInfo("missing") != nil {
		t.Error("expected nil for unknown model")
	}
}

func TestModelRegistry_GetAvailableModelsOrdered(t *testing.T) {
	r := NewModelRegistry()
	models := r.GetAvailableModels()
	if len(models) == 0 {
		t.Fatal("no models registered")
	}
	for i := 1; i < len(models); i++ {
		prev, cur := models[i-1], models[i]
		if prev.Provider > cur.Provider || (prev.Provider == cur.Provider && prev.ID >= cur.ID) {
			t.Fatalf("models out of order at %d: %s/%s then %s/%s", i, prev.Provider, prev.ID, cur.Provider, cur.ID)
		}
	}
}

func TestModelRegistry_NilSafe(t *testing.T) {
	var r *ModelRegistry
	if r.MaxOutputTokens("gpt-4o") != 0 || r.GetModelInfo("gpt-4o") != nil || r.GetAvailableModels() != nil {
		t.Error("nil registry should behave as empty")
	}
	if _, ok := r.ProviderFor("gpt-4o"); ok {
		t.Error("nil registry should not resolve providers")
	}
}

func TestModelRegistry_ConcurrentReads(t *testing.T) {
	r := NewModelRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.MaxOutputTokens("gpt-4o")
			_ = r.GetModelsForProvider("groq")
			_, _ = r.ProviderFor("gemini-pro")
		}()
	}
	wg.Wait()
}
