package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/rise/pkg/models"
)

func TestExtractJSON(t *testing.T) {
	var obj struct {
		Next string `json:"next"`
	}
	require.NoError(t, ExtractJSON("Sure!\n```json\n{\"next\": \"math_team\"}\n```", &obj))
	assert.Equal(t, "math_team", obj.Next)

	var arr []int
	require.NoError(t, ExtractJSON("values: [1, 2, 3] done", &arr))
	assert.Equal(t, []int{1, 2, 3}, arr)

	assert.Error(t, ExtractJSON("no json here", &obj))
	assert.Error(t, ExtractJSON("{broken", &obj))
}

func TestFormatHistory(t *testing.T) {
	out := FormatHistory([]models.Turn{
		models.UserTurn("sum 1 and 2"),
		{Role: models.RoleAssistant, Name: "math_team", Content: "3", Error: "calculator offline"},
	})
	assert.Contains(t, out, "[user] sum 1 and 2")
	assert.Contains(t, out, "[math_team] 3")
	assert.Contains(t, out, "tool error: calculator offline")
}

func TestFunc(t *testing.T) {
	var l LLM = Func(func(ctx context.Context, prompt string, history []models.Turn) (string, error) {
		return strings.ToUpper(prompt), nil
	})
	out, err := l.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "HI", out)
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(10, 5)
	tr.Add(1, 1)
	in, out := tr.Total()
	assert.Equal(t, int64(11), in)
	assert.Equal(t, int64(6), out)
	assert.Equal(t, 2, tr.Calls())
	tr.Reset()
	assert.Equal(t, 0, tr.Calls())
}

func TestAnthropic_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"math_team"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":12,"output_tokens":3}}`)
	}))
	defer srv.Close()

	client, err := NewAnthropic(AnthropicConfig{APIKey: "sk-ant-test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "who next?", []models.Turn{
		{Role: models.RoleSystem, Content: "you are a supervisor"},
		models.UserTurn("add numbers"),
	})
	require.NoError(t, err)
	assert.Equal(t, "math_team", out)
	assert.Equal(t, 1, client.Tracker().Calls())
	assert.NotNil(t, got["system"], "system turns are sent as the system parameter")
	msgs, _ := got["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"report_team"}}],
			"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "who next?", []models.Turn{models.UserTurn("format a report")})
	require.NoError(t, err)
	assert.Equal(t, "report_team", out)
	in, _ := client.Tracker().Total()
	assert.Equal(t, int64(9), in)
}

func TestOpenAI_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "[math_team] 60", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"llama3.1","created_at":"2025-01-01T00:00:00Z",`+
			`"message":{"role":"assistant","content":"FINISH"},"done":true,"prompt_eval_count":4,"eval_count":1}`+"\n")
	}))
	defer srv.Close()

	client, err := NewOllama(OllamaConfig{Host: srv.URL})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "next?", []models.Turn{models.AssistantTurn("math_team", "60")})
	require.NoError(t, err)
	assert.Equal(t, "FINISH", out)
	assert.Equal(t, 1, client.Tracker().Calls())
}

func TestResolveOllamaHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	assert.Equal(t, DefaultOllamaHost, ResolveOllamaHost(""))
	assert.Equal(t, "http://gpu:11434", ResolveOllamaHost("http://gpu:11434"))
	t.Setenv("OLLAMA_HOST", "10.0.0.2:11434")
	assert.Equal(t, "http://10.0.0.2:11434", ResolveOllamaHost(""))
}
