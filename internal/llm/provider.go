package llm

import (
	"context"
	"errors"
)

// Judge performs a single text-in, text-out model call. The claim extractor
// and both claim scorers depend only on this interface.
type Judge interface {
	AnalyzeText(ctx context.Context, prompt string) (string, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, prompt string) (string, error)

// AnalyzeText calls f.
func (f JudgeFunc) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Provider defines the interface for LLM providers
type Provider interface {
	Judge

	// Name returns the provider name
	Name() string

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from model")

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Model name (provider-specific)
	Model string `mapstructure:"model" yaml:"model"`

	// APIKey for OpenAI/Anthropic
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`

	// Timeout for API requests
	Timeout int `mapstructure:"timeout" yaml:"timeout"` // seconds

	// MaxTokens for response generation
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`

	// Temperature for judgment calls; low values keep scoring stable
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`

	// Proxy settings
	HTTPProxy  string `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy string `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy    string `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Timeout:     60,
		MaxTokens:   1000,
		Temperature: 0.1,
	}
}

const systemPrompt = "You are a meticulous fact-checking assistant. Answer only in the format the user requests."

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}
