package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPort is used when the configuration file does not set one.
const DefaultPort = 8787

// Provider identifiers used for routes, credentials and the model table.
const (
	ProviderOpenAI          = "openai"
	ProviderGoogle          = "google"
	ProviderGroq            = "groq"
	ProviderMistral         = "mistral"
	ProviderPerplexity      = "perplexity"
	ProviderStableDiffusion = "stable-diffusion"
)

// Store drivers.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Host is the interface to bind to. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"port"`
	// Debug enables gin debug mode and debug logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LogLevel is one of debug, info, warn, error, quiet.
	LogLevel string `yaml:"log-level,omitempty" json:"log-level,omitempty"`
	// LoggingToFile writes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`
	// LogDir is the directory for rotated log files. Defaults to "logs".
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	TLS TLSConfig `yaml:"tls" json:"tls"`

	// HTTP2Cleartext serves HTTP/2 without TLS (h2c), for use behind a proxy.
	HTTP2Cleartext bool `yaml:"http2-cleartext" json:"http2-cleartext"`

	CORS CORSConfig `yaml:"cors" json:"cors"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// RequestDecompression accepts gzip, zstd and br encoded request bodies.
	// nil means default (true).
	RequestDecompression *bool `yaml:"request-decompression,omitempty" json:"request-decompression,omitempty"`

	Session SessionConfig `yaml:"session" json:"session"`

	Store StoreConfig `yaml:"store" json:"store"`

	Providers ProvidersConfig `yaml:"providers" json:"providers"`

	// OpenAICompatibility declares extra OpenAI-compatible chat backends.
	OpenAICompatibility []OpenAICompatibility `yaml:"openai-compatibility,omitempty" json:"openai-compatibility,omitempty"`

	PayPal PayPalConfig `yaml:"paypal" json:"paypal"`

	ImageStore ImageStoreConfig `yaml:"image-store" json:"image-store"`
}

// TLSConfig holds HTTPS server settings.
type TLSConfig struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Cert   string `yaml:"cert" json:"cert"`
	Key    string `yaml:"key" json:"key"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	// AllowOrigins is matched exactly. "*" allows any origin without credentials.
	AllowOrigins []string `yaml:"allow-origins,omitempty" json:"allow-origins,omitempty"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics. nil means default (true).
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// SessionConfig configures how the caller's identity is resolved.
type SessionConfig struct {
	// CookieName carries the access token. Defaults to "sb-access-token".
	CookieName string `yaml:"cookie-name,omitempty" json:"cookie-name,omitempty"`
	// JWTSecret verifies HS256 access tokens.
	JWTSecret string `yaml:"jwt-secret,omitempty" json:"-"`
	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	// DevUserID is used for requests without a token. Local development only.
	DevUserID string `yaml:"dev-user-id,omitempty" json:"dev-user-id,omitempty"`
}

// StoreConfig selects the profile store.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn,omitempty" json:"-"`
	// Schema optionally qualifies the Postgres table.
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty"`
	// Path is the SQLite database file. Defaults to "data/profiles.db".
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// ProviderConfig carries one backend's credential and request shaping overrides.
type ProviderConfig struct {
	APIKey string `yaml:"api-key,omitempty" json:"-"`
	// BaseURL overrides the provider's public endpoint.
	BaseURL string `yaml:"base-url,omitempty" json:"base-url,omitempty"`
	// MaxTokens overrides the model table's output cap when > 0.
	MaxTokens int `yaml:"max-tokens,omitempty" json:"max-tokens,omitempty"`
}

// ProvidersConfig groups the built-in backends.
type ProvidersConfig struct {
	OpenAI          ProviderConfig `yaml:"openai" json:"openai"`
	Google          ProviderConfig `yaml:"google" json:"google"`
	Groq            ProviderConfig `yaml:"groq" json:"groq"`
	Mistral         ProviderConfig `yaml:"mistral" json:"mistral"`
	Perplexity      ProviderConfig `yaml:"perplexity" json:"perplexity"`
	StableDiffusion ProviderConfig `yaml:"stable-diffusion" json:"stable-diffusion"`
}

// OpenAICompatibility describes a chat backend speaking the OpenAI schema.
type OpenAICompatibility struct {
	Name        string   `yaml:"name" json:"name"`
	DisplayName string   `yaml:"display-name,omitempty" json:"display-name,omitempty"`
	BaseURL     string   `yaml:"base-url" json:"base-url"`
	APIKey      string   `yaml:"api-key,omitempty" json:"-"`
	Models      []string `yaml:"models,omitempty" json:"models,omitempty"`
	MaxTokens   int      `yaml:"max-tokens,omitempty" json:"max-tokens,omitempty"`
}

// PayPalConfig enables webhook signature verification when WebhookID is set.
type PayPalConfig struct {
	APIBase      string `yaml:"api-base,omitempty" json:"api-base,omitempty"`
	ClientID     string `yaml:"client-id,omitempty" json:"client-id,omitempty"`
	ClientSecret string `yaml:"client-secret,omitempty" json:"-"`
	WebhookID    string `yaml:"webhook-id,omitempty" json:"webhook-id,omitempty"`
}

// ImageStoreConfig enables re-hosting generated images in S3-compatible storage.
type ImageStoreConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKey string `yaml:"access-key,omitempty" json:"-"`
	SecretKey string `yaml:"secret-key,omitempty" json:"-"`
	Bucket    string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
	// PublicBaseURL prefixes object keys in returned links. Empty means
	// presigned GET URLs.
	PublicBaseURL string `yaml:"public-base-url,omitempty" json:"public-base-url,omitempty"`
}

// Enabled reports whether re-hosting is configured.
func (c ImageStoreConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Enabled reports whether webhook verification is configured.
func (c PayPalConfig) Enabled() bool {
	return c.WebhookID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// MetricsEnabled returns whether /metrics is served, defaulting to true.
func (c *Config) MetricsEnabled() bool {
	if c == nil || c.Metrics.Enabled == nil {
		return true
	}
	return *c.Metrics.Enabled
}

// RequestDecompressionEnabled defaults to true.
func (c *Config) RequestDecompressionEnabled() bool {
	if c == nil || c.RequestDecompression == nil {
		return true
	}
	return *c.RequestDecompression
}

// Provider returns the settings for a built-in provider identifier.
func (p *ProvidersConfig) Provider(id string) ProviderConfig {
	if p == nil {
		return ProviderConfig{}
	}
	switch id {
	case ProviderOpenAI:
		return p.OpenAI
	case ProviderGoogle:
		return p.Google
	case ProviderGroq:
		return p.Groq
	case ProviderMistral:
		return p.Mistral
	case ProviderPerplexity:
		return p.Perplexity
	case ProviderStableDiffusion:
		return p.StableDiffusion
	default:
		return ProviderConfig{}
	}
}

// LoadConfig reads and parses the YAML configuration file at configFile.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the configuration file. When optional is true a
// missing or unparsable file yields a default configuration instead of an
// error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		if optional {
			log.Warnf("config: failed to read %s, using defaults: %v", configFile, err)
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if len(strings.TrimSpace(string(data))) > 0 {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			if optional {
				log.Warnf("config: failed to parse %s, using defaults: %v", configFile, errUnmarshal)
				cfg = Config{}
				applyDefaults(&cfg)
				return &cfg, nil
			}
			return nil, fmt.Errorf("failed to parse config file: %w", errUnmarshal)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "sb-access-token"
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverSQLite
	}
	if cfg.Store.Driver == StoreDriverSQLite && cfg.Store.Path == "" {
		cfg.Store.Path = "data/profiles.db"
	}
	if cfg.PayPal.APIBase == "" {
		cfg.PayPal.APIBase = "https://api-m.paypal.com"
	}
	for i := range cfg.OpenAICompatibility {
		entry := &cfg.OpenAICompatibility[i]
		entry.Name = strings.ToLower(strings.TrimSpace(entry.Name))
		if entry.DisplayName == "" {
			entry.DisplayName = entry.Name
		}
	}
}

// ValidateConfig checks a loaded configuration. It returns non-fatal
// warnings alongside the first fatal problem found.
func ValidateConfig(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var warnings []string
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return warnings, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	if cfg.TLS.Enable && (strings.TrimSpace(cfg.TLS.Cert) == "" || strings.TrimSpace(cfg.TLS.Key) == "") {
		return warnings, errors.New("tls enabled but cert or key is empty")
	}
	switch cfg.Store.Driver {
	case "", StoreDriverSQLite:
	case StoreDriverPostgres:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return warnings, errors.New("postgres store selected but store.dsn is empty")
		}
	default:
		return warnings, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	builtins := map[string]ProviderConfig{
		ProviderOpenAI:          cfg.Providers.OpenAI,
		ProviderGoogle:          cfg.Providers.Google,
		ProviderGroq:            cfg.Providers.Groq,
		ProviderMistral:         cfg.Providers.Mistral,
		ProviderPerplexity:      cfg.Providers.Perplexity,
		ProviderStableDiffusion: cfg.Providers.StableDiffusion,
	}
	for id, p := range builtins {
		if p.BaseURL == "" {
			continue
		}
		if err := validateBaseURL(p.BaseURL); err != nil {
			return warnings, fmt.Errorf("providers.%s.base-url: %w", id, err)
		}
	}

	seen := make(map[string]struct{}, len(cfg.OpenAICompatibility))
	for i, entry := range cfg.OpenAICompatibility {
		if entry.Name == "" {
			return warnings, fmt.Errorf("openai-compatibility[%d]: name is required", i)
		}
		if _, dup := seen[entry.Name]; dup {
			return warnings, fmt.Errorf("openai-compatibility[%d]: duplicate name %q", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if err := validateBaseURL(entry.BaseURL); err != nil {
			return warnings, fmt.Errorf("openai-compatibility[%d].base-url: %w", i, err)
		}
	}

	if cfg.Session.JWTSecret == "" && cfg.Session.DevUserID == "" {
		warnings = append(warnings, "session.jwt-secret is empty: every chat request will be rejected as unauthenticated")
	}
	if cfg.Session.DevUserID != "" {
		warnings = append(warnings, "session.dev-user-id is set: unauthenticated requests act as that user")
	}
	if cfg.PayPal.WebhookID == "" {
		warnings = append(warnings, "paypal.webhook-id is empty: webhook signatures are not verified")
	}
	return warnings, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
