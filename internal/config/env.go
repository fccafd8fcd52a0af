package config

import "strings"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	keys   []string
	assign func(cfg *Config, value string)
}

var envBindings = []envBinding{
	{[]string{"OPENAI_API_KEY"}, func(c *Config, v string) { c.Providers.OpenAI.APIKey = v }},
	{[]string{"GOOGLE_GEMINI_API_KEY"}, func(c *Config, v string) { c.Providers.Google.APIKey = v }},
	{[]string{"GROQ_API_KEY"}, func(c *Config, v string) { c.Providers.Groq.APIKey = v }},
	{[]string{"MISTRAL_API_KEY"}, func(c *Config, v string) { c.Providers.Mistral.APIKey = v }},
	{[]string{"PERPLEXITY_API_KEY"}, func(c *Config, v string) { c.Providers.Perplexity.APIKey = v }},
	{[]string{"STABLE_DIFFUSION_API_KEY"}, func(c *Config, v string) { c.Providers.StableDiffusion.APIKey = v }},
	{[]string{"SESSION_JWT_SECRET", "SUPABASE_JWT_SECRET"}, func(c *Config, v string) { c.Session.JWTSecret = v }},
	{[]string{"PGSTORE_DSN"}, func(c *Config, v string) {
		c.Store.Driver = StoreDriverPostgres
		c.Store.DSN = v
	}},
	{[]string{"PGSTORE_SCHEMA"}, func(c *Config, v string) { c.Store.Schema = v }},
	{[]string{"PAYPAL_CLIENT_ID"}, func(c *Config, v string) { c.PayPal.ClientID = v }},
	{[]string{"PAYPAL_CLIENT_SECRET"}, func(c *Config, v string) { c.PayPal.ClientSecret = v }},
	{[]string{"PAYPAL_WEBHOOK_ID"}, func(c *Config, v string) { c.PayPal.WebhookID = v }},
	{[]string{"IMAGE_STORE_ACCESS_KEY"}, func(c *Config, v string) { c.ImageStore.AccessKey = v }},
	{[]string{"IMAGE_STORE_SECRET_KEY"}, func(c *Config, v string) { c.ImageStore.SecretKey = v }},
}

// ApplyEnvironment overlays credentials and connection strings from the
// environment. Only non-empty variables override file values; for bindings
// with several names the first one present wins.
func ApplyEnvironment(cfg *Config, lookup LookupFunc) {
	if cfg == nil || lookup == nil {
		return
	}
	for _, b := range envBindings {
		for _, key := range b.keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				b.assign(cfg, strings.TrimSpace(v))
				break
			}
		}
	}
}
