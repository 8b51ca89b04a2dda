// Package embed provides text embedders backed by OpenAI and Ollama.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/internal/llm"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
)

// ErrEmptyEmbedding is returned when a provider answers without a vector.
var ErrEmptyEmbedding = errors.New("provider returned no embedding")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// New builds the embedder selected by cfg. Provider "none" or "" yields a
// nil embedder and no error.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		key, err := config.GetAPIKey("openai", cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return NewOpenAI(key, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}

// OpenAI embeds text with the OpenAI embeddings endpoint.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

// Embed implements Embedder.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates an Ollama embedder. An empty host resolves through
// OLLAMA_HOST and then the default local address.
func NewOllama(host, model string) (*Ollama, error) {
	host = llm.ResolveOllamaHost(host)
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{client: api.NewClient(parsed, http.DefaultClient), model: model}, nil
}

// Embed implements Embedder.
func (e *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	vec := make([]float64, len(resp.Embeddings[0]))
	for i, v := range resp.Embeddings[0] {
		vec[i] = float64(v)
	}
	return vec, nil
}
