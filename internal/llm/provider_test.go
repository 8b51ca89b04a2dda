package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/rise/internal/config"
	"github.com/ShayCichocki/rise/pkg/models"
)

func fakeFactory(built *int) Factory {
	return func(cfg config.LLMConfig) (LLM, error) {
		*built++
		model := cfg.Model
		return Func(func(ctx context.Context, prompt string, history []models.Turn) (string, error) {
			return model, nil
		}), nil
	}
}

func TestProvider_GetLLM(t *testing.T) {
	built := 0
	p := NewProvider(map[string]config.LLMConfig{
		config.DefaultLLM:           {Provider: "ollama", Model: "base"},
		config.ResponseGeneratorLLM: {Provider: "ollama", Model: "writer"},
	}, WithFactory("ollama", fakeFactory(&built)))

	gen, err := p.GetLLM(config.ResponseGeneratorLLM)
	require.NoError(t, err)
	out, _ := gen.Generate(context.Background(), "", nil)
	assert.Equal(t, "writer", out)

	def, err := p.GetLLM("")
	require.NoError(t, err)
	out, _ = def.Generate(context.Background(), "", nil)
	assert.Equal(t, "base", out)

	// Unknown names resolve to the default and reuse its cached client.
	fallback, err := p.GetLLM("planner_llm")
	require.NoError(t, err)
	out, _ = fallback.Generate(context.Background(), "", nil)
	assert.Equal(t, "base", out)
	assert.Equal(t, 2, built)
}

func TestProvider_NoDefault(t *testing.T) {
	p := NewProvider(map[string]config.LLMConfig{})
	_, err := p.GetLLM("anything")
	assert.True(t, errors.Is(err, ErrUnknownLLM))
}

func TestProvider_FactoryError(t *testing.T) {
	p := NewProvider(map[string]config.LLMConfig{
		config.DefaultLLM: {Provider: "openai"},
	}, WithFactory("openai", func(config.LLMConfig) (LLM, error) {
		return nil, errors.New("no key")
	}))
	_, err := p.GetLLM("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key")
}

func TestProvider_OllamaWithoutNetwork(t *testing.T) {
	// Constructing an Ollama client does not contact the server.
	p := NewProvider(map[string]config.LLMConfig{
		config.DefaultLLM: {Provider: "ollama", Model: "llama3.1", BaseURL: "http://127.0.0.1:1"},
	})
	l, err := p.GetLLM("")
	require.NoError(t, err)
	_, ok := l.(*Ollama)
	assert.True(t, ok)
}
