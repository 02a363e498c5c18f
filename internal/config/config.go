package config

import (
	"time"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Providers  []ProviderConfig `mapstructure:"providers" validate:"required,min=1,dive"`

	// Profiles overlays calibration entries onto the built-in model
	// profile table, keyed "provider/model". Entries here replace
	// built-ins with the same key.
	Profiles map[string]*domain.ModelProfile `mapstructure:"profiles"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// CacheConfig controls the response cache. When URL is empty the cache
// runs purely in-process and responses do not survive restarts.
type CacheConfig struct {
	// URL is the Postgres connection string of the durable cache store.
	URL string `mapstructure:"url" validate:"omitempty,url"`

	// TTL is how long durable entries stay valid. Zero disables expiry.
	TTL time.Duration `mapstructure:"ttl"`

	// MemoryEntries is the size of the in-process LRU tier.
	MemoryEntries int `mapstructure:"memory_entries" validate:"omitempty,gt=0"`
}

// AuthConfig contains authentication settings for the HTTP API.
// An empty TokenSecret disables authentication entirely.
type AuthConfig struct {
	TokenSecret string `mapstructure:"token_secret" validate:"omitempty,min=32"`
}

// GenerationConfig contains pipeline tuning settings.
type GenerationConfig struct {
	// MaxConcurrentRequests bounds how many provider calls may be in
	// flight at once for a single run.
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" validate:"required,gt=0"`

	// MaxRetries is the retry cap for transient provider failures,
	// per provider.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// RetryBaseDelay is the base delay of the exponential backoff schedule.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// RequestTimeout is the per-call provider timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RunTimeout is an optional aggregate deadline for a whole run.
	// Zero means no run-level deadline.
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// SimilarityThreshold enables the near-duplicate pass of the
	// deduplicator when greater than zero (0..1, higher is stricter).
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lte=1"`

	// PromptTemplateDir optionally overrides the embedded prompt templates.
	PromptTemplateDir string `mapstructure:"prompt_template_dir"`
}

// ProviderConfig describes one LLM backend. The first entry is the
// primary provider; later entries form the failover chain, tried in
// order after the primary exhausts its retries.
type ProviderConfig struct {
	// Name identifies the provider kind: openai, deepseek, ollama,
	// custom, or gemini.
	Name string `mapstructure:"name" validate:"required,oneof=openai deepseek ollama custom gemini"`

	// Model is the model identifier passed to the backend.
	Model string `mapstructure:"model" validate:"required"`

	// APIKey authenticates against the backend. Local backends (ollama)
	// may leave it empty.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the provider's default endpoint. Required for
	// custom providers.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}
