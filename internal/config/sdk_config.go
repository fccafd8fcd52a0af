// Package config provides configuration management for the chat proxy server.
// It handles loading and parsing YAML configuration files, environment
// overrides and hot reload, and exposes structured access to server, store,
// session and provider settings.
package config

// DefaultFreeModels lists the models a NONE-tier profile may use while it
// still has free questions.
var DefaultFreeModels = []string{"gpt-3.5-turbo", "gpt-4o", "gpt-4o-mini"}

// SDKConfig holds the settings consumed by the request handlers. It is
// embedded inline in Config.
type SDKConfig struct {
	// FreeModels is the free-tier model set. Empty means DefaultFreeModels.
	FreeModels []string `yaml:"free-models,omitempty" json:"free-models,omitempty"`

	// DefaultFreeQuestions seeds newly created profiles.
	// nil means default (10).
	DefaultFreeQuestions *int `yaml:"default-free-questions,omitempty" json:"default-free-questions,omitempty"`

	// UpstreamTimeoutSeconds bounds a single provider invocation including the
	// relay of its stream. nil or <= 0 leaves only the client's own deadline.
	UpstreamTimeoutSeconds *int `yaml:"upstream-timeout-seconds,omitempty" json:"upstream-timeout-seconds,omitempty"`

	// Streaming configures how relayed chunks are framed.
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
}

// StreamingConfig holds server streaming behavior configuration.
type StreamingConfig struct {
	// AllowSSE lets clients opt into SSE framing with "Accept: text/event-stream".
	// nil means default (true).
	AllowSSE *bool `yaml:"allow-sse,omitempty" json:"allow-sse,omitempty"`
}

// FreeModelSet returns the configured free-tier models as a lookup set.
func (c *SDKConfig) FreeModelSet() map[string]struct{} {
	models := DefaultFreeModels
	if c != nil && len(c.FreeModels) > 0 {
		models = c.FreeModels
	}
	set := make(map[string]struct{}, len(models))
	for _, m := range models {
		set[m] = struct{}{}
	}
	return set
}

// GetDefaultFreeQuestions returns the seed quota, defaulting to 10.
func (c *SDKConfig) GetDefaultFreeQuestions() int {
	if c == nil || c.DefaultFreeQuestions == nil {
		return 10
	}
	if *c.DefaultFreeQuestions < 0 {
		return 0
	}
	return *c.DefaultFreeQuestions
}

// GetUpstreamTimeoutSeconds returns the provider deadline, 0 meaning none.
func (c *SDKConfig) GetUpstreamTimeoutSeconds() int {
	if c == nil || c.UpstreamTimeoutSeconds == nil || *c.UpstreamTimeoutSeconds < 0 {
		return 0
	}
	return *c.UpstreamTimeoutSeconds
}

// SSEAllowed reports whether SSE framing may be negotiated, defaulting to true.
func (s *StreamingConfig) SSEAllowed() bool {
	if s == nil || s.AllowSSE == nil {
		return true
	}
	return *s.AllowSSE
}
