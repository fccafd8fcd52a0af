package registry

import (
	"sort"
	"strings"
)

// ModelRegistry is an immutable index over the static model tables plus any
// configured extras. A new registry is built on every configuration reload.
type ModelRegistry struct {
	models     map[string]*ModelInfo
	byProvider map[string][]*ModelInfo
}

// NewModelRegistry indexes the built-in tables and extra. Extra entries
// replace built-ins with the same id.
func NewModelRegistry(extra ...*ModelInfo) *ModelRegistry {
	r := &ModelRegistry{
		models:     make(map[string]*ModelInfo),
		byProvider: make(map[string][]*ModelInfo),
	}
	tables := [][]*ModelInfo{
		GetOpenAIModels(),
		GetGeminiModels(),
		GetGroqModels(),
		GetMistralModels(),
		GetPerplexityModels(),
		GetImageModels(),
		extra,
	}
	for _, table := range tables {
		for _, m := range table {
			if m == nil || strings.TrimSpace(m.ID) == "" {
				continue
			}
			r.models[m.ID] = m
		}
	}
	for _, m := range r.models {
		r.byProvider[m.Provider] = append(r.byProvider[m.Provider], m)
	}
	for _, list := range r.byProvider {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return r
}

// GetModelInfo returns a copy of the model's definition, or nil.
func (r *ModelRegistry) GetModelInfo(id string) *ModelInfo {
	if r == nil {
		return nil
	}
	m, ok := r.models[id]
	if !ok {
		return nil
	}
	clone := *m
	return &clone
}

// MaxOutputTokens returns the model's output cap, 0 when unknown or uncapped.
func (r *ModelRegistry) MaxOutputTokens(id string) int {
	if r == nil {
		return 0
	}
	if m, ok := r.models[id]; ok {
		return m.MaxCompletionTokens
	}
	return 0
}

// ProviderFor reports which provider serves id.
func (r *ModelRegistry) ProviderFor(id string) (string, bool) {
	if r == nil {
		return "", false
	}
	m, ok := r.models[id]
	if !ok {
		return "", false
	}
	return m.Provider, true
}

// GetModelsForProvider lists a provider's models ordered by id.
func (r *ModelRegistry) GetModelsForProvider(provider string) []*ModelInfo {
	if r == nil {
		return nil
	}
	list := r.byProvider[provider]
	out := make([]*ModelInfo, len(list))
	copy(out, list)
	return out
}

// GetAvailableModels lists every model ordered by provider then id.
func (r *ModelRegistry) GetAvailableModels() []*ModelInfo {
	if r == nil {
		return nil
	}
	out := make([]*ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}
