package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ShayCichocki/rise/pkg/models"
)

// DefaultOllamaHost is used when neither the config nor OLLAMA_HOST set a host.
const DefaultOllamaHost = "http://localhost:11434"

// Ollama calls a local Ollama server's chat endpoint.
type Ollama struct {
	client  *api.Client
	model   string
	options map[string]any
	tracker *TokenTracker
}

// OllamaConfig configures an Ollama client.
type OllamaConfig struct {
	Host        string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// NewOllama creates an Ollama chat client.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	host := ResolveOllamaHost(cfg.Host)
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}

	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}

	options := map[string]any{}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		options["temperature"] = *cfg.Temperature
	}

	return &Ollama{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		options: options,
		tracker: NewTokenTracker(),
	}, nil
}

// ResolveOllamaHost picks the configured host, then OLLAMA_HOST, then the default.
func ResolveOllamaHost(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv("OLLAMA_HOST"); env != "" {
		if !strings.Contains(env, "://") {
			env = "http://" + env
		}
		return env
	}
	return DefaultOllamaHost
}

// Generate sends the history plus prompt as a non-streaming chat request.
func (o *Ollama) Generate(ctx context.Context, prompt string, history []models.Turn) (string, error) {
	messages := make([]api.Message, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := string(t.Role)
		if !t.Role.Valid() {
			role = string(models.RoleUser)
		}
		messages = append(messages, api.Message{Role: role, Content: speakerPrefix(t) + t.Content})
	}
	messages = append(messages, api.Message{Role: string(models.RoleUser), Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  o.options,
	}

	var result strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		result.WriteString(resp.Message.Content)
		if resp.Done {
			o.tracker.Add(int64(resp.PromptEvalCount), int64(resp.EvalCount))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	if result.Len() == 0 {
		return "", ErrEmptyResponse
	}

	return result.String(), nil
}

// Tracker returns the token tracker for this client.
func (o *Ollama) Tracker() *TokenTracker {
	return o.tracker
}
