// Package llm adapts language model providers to the single Generate call
// used by teams, nodes and the supervisor.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/rise/pkg/models"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// LLM generates text for a prompt given prior conversation turns.
type LLM interface {
	Generate(ctx context.Context, prompt string, history []models.Turn) (string, error)
}

// Func adapts a function to the LLM interface.
type Func func(ctx context.Context, prompt string, history []models.Turn) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, history []models.Turn) (string, error) {
	return f(ctx, prompt, history)
}

// ExtractJSON finds the outermost JSON object or array in a model response
// and decodes it into target. Markdown code fences are tolerated.
func ExtractJSON(response string, target any) error {
	jsonStart := strings.IndexAny(response, "{[")
	if jsonStart == -1 {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	closer := "}"
	if response[jsonStart] == '[' {
		closer = "]"
	}
	jsonEnd := strings.LastIndex(response, closer)
	if jsonEnd <= jsonStart {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	jsonStr := response[jsonStart : jsonEnd+1]
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}

	return nil
}

// FormatHistory renders turns as plain text for prompts that embed the conversation.
func FormatHistory(turns []models.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		speaker := string(t.Role)
		if t.Name != "" {
			speaker = t.Name
		}
		fmt.Fprintf(&b, "[%s] %s\n", speaker, t.Content)
		if t.Error != "" {
			fmt.Fprintf(&b, "[%s] tool error: %s\n", speaker, t.Error)
		}
	}
	return b.String()
}

// speakerPrefix labels assistant turns from named teams so providers that
// only know user/assistant roles still see who said what.
func speakerPrefix(t models.Turn) string {
	if t.Role == models.RoleAssistant && t.Name != "" {
		return "[" + t.Name + "] "
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
