package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ShayCichocki/rise/pkg/models"
)

// OpenAI calls the Chat Completions API of OpenAI or a compatible gateway.
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature *float64
	tracker     *TokenTracker
}

// OpenAIConfig configures an OpenAI client.
type OpenAIConfig struct {
	Model string
	// APIKey defaults to OPENAI_API_KEY.
	APIKey      string
	BaseURL     string
	MaxTokens   int64
	Temperature *float64
}

// NewOpenAI creates a Chat Completions client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		tracker:     NewTokenTracker(),
	}, nil
}

// Generate sends the history plus prompt and returns the first choice.
func (o *OpenAI) Generate(ctx context.Context, prompt string, history []models.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		switch t.Role {
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(speakerPrefix(t)+t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}
	if o.temperature != nil {
		params.Temperature = openai.Float(*o.temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	o.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Tracker returns the token tracker for this client.
func (o *OpenAI) Tracker() *TokenTracker {
	return o.tracker
}
