package config

import (
	"errors"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := GetAPIKey("anthropic", ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	key, err := GetAPIKey("anthropic", "sk-ant-configured")
	if err != nil || key != "sk-ant-configured" {
		t.Errorf("GetAPIKey() = %q, %v; want configured key", key, err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	key, _ = GetAPIKey("anthropic", "sk-ant-configured")
	if key != "sk-ant-env" {
		t.Errorf("environment should win, got %q", key)
	}

	// Unresolved references are not keys.
	if _, err := GetAPIKey("openai", "${RISE_UNSET_VARIABLE_FOR_TEST}"); err == nil {
		t.Error("expected error for unresolved reference")
	}

	// Ollama has no key variable; a configured value is still honoured.
	key, err = GetAPIKey("ollama", "token")
	if err != nil || key != "token" {
		t.Errorf("GetAPIKey(ollama) = %q, %v", key, err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		key      string
		wantErr  bool
	}{
		{"empty", "anthropic", "", true},
		{"wrong prefix", "anthropic", "sk-proj-aaaaaaaaaaaaaaaaaaaa", true},
		{"too short", "anthropic", "sk-ant-abc", true},
		{"valid anthropic", "anthropic", "sk-ant-REDACTED", false},
		{"valid openai", "openai", "sk-proj-aaaaaaaaaaaaaaaaaaaa", false},
		{"openai wrong prefix", "openai", "pk-aaaaaaaaaaaaaaaaaaaaaaa", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.provider, tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("MaskAPIKey(\"\") = %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("MaskAPIKey(short) = %q", got)
	}
	if got := MaskAPIKey("sk-ant-REDACTED"); got != "sk-ant-...mnop" {
		t.Errorf("MaskAPIKey(long) = %q", got)
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	l := LLMConfig{Provider: "openai"}
	if got := GetAPIKeySource(l); got != KeySourceNone {
		t.Errorf("expected none, got %s", got)
	}
	l.APIKey = "sk-config"
	if got := GetAPIKeySource(l); got != KeySourceConfig {
		t.Errorf("expected config_file, got %s", got)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	if got := GetAPIKeySource(l); got != KeySourceEnv {
		t.Errorf("expected environment, got %s", got)
	}
}
