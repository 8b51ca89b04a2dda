package llm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/rise/internal/config"
)

// ErrUnknownLLM is returned when neither the requested name nor the default is configured.
var ErrUnknownLLM = errors.New("llm not configured")

// Factory builds an LLM from its configuration.
type Factory func(cfg config.LLMConfig) (LLM, error)

// Provider resolves named LLMs from configuration and caches the clients.
type Provider struct {
	mu        sync.Mutex
	configs   map[string]config.LLMConfig
	factories map[string]Factory
	cache     map[string]LLM
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithFactory overrides the constructor used for a provider name.
func WithFactory(provider string, f Factory) ProviderOption {
	return func(p *Provider) { p.factories[provider] = f }
}

// NewProvider creates a provider over the named LLM configs.
func NewProvider(configs map[string]config.LLMConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		configs: configs,
		factories: map[string]Factory{
			"anthropic": newAnthropicFromConfig,
			"openai":    newOpenAIFromConfig,
			"ollama":    newOllamaFromConfig,
		},
		cache: make(map[string]LLM),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetLLM returns the LLM configured under name. Unknown names fall back to
// the default entry, matching how nodes ask for optional specialised models.
func (p *Provider) GetLLM(name string) (LLM, error) {
	if name == "" {
		name = config.DefaultLLM
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	resolved := name
	cfg, ok := p.configs[name]
	if !ok {
		resolved = config.DefaultLLM
		cfg, ok = p.configs[config.DefaultLLM]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrUnknownLLM)
		}
	}

	if l, ok := p.cache[resolved]; ok {
		return l, nil
	}

	factory, ok := p.factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("llm %s: unknown provider %q", resolved, cfg.Provider)
	}
	l, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm %s: %w", resolved, err)
	}
	p.cache[resolved] = l
	return l, nil
}

func newAnthropicFromConfig(cfg config.LLMConfig) (LLM, error) {
	key := ""
	if !cfg.UseBedrock {
		var err error
		key, err = config.GetAPIKey("anthropic", cfg.APIKey)
		if err != nil {
			return nil, err
		}
	}
	return NewAnthropic(AnthropicConfig{
		Model:         anthropic.Model(cfg.Model),
		APIKey:        key,
		BaseURL:       cfg.BaseURL,
		MaxTokens:     int64(cfg.MaxTokens),
		Temperature:   cfg.Temperature,
		UseAWSBedrock: cfg.UseBedrock,
		AWSRegion:     cfg.AWSRegion,
		AWSProfile:    cfg.AWSProfile,
	})
}

func newOpenAIFromConfig(cfg config.LLMConfig) (LLM, error) {
	key, err := config.GetAPIKey("openai", cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return NewOpenAI(OpenAIConfig{
		Model:       cfg.Model,
		APIKey:      key,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   int64(cfg.MaxTokens),
		Temperature: cfg.Temperature,
	})
}

func newOllamaFromConfig(cfg config.LLMConfig) (LLM, error) {
	return NewOllama(OllamaConfig{
		Host:        cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
}
