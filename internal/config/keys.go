package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// apiKeyEnv maps providers to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// APIKeyEnv returns the environment variable consulted for provider,
// or "" when the provider does not use API keys.
func APIKeyEnv(provider string) string {
	return apiKeyEnv[provider]
}

// GetAPIKey returns the API key for an LLM or embeddings provider.
// It checks in order: environment variable, config file.
func GetAPIKey(provider, configured string) (string, error) {
	if env := APIKeyEnv(provider); env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}

	if configured != "" {
		// Expand any remaining env var references
		key := os.ExpandEnv(configured)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", fmt.Errorf("%s: %w", provider, ErrNoAPIKey)
}

// ValidateAPIKey performs basic validation on an API key.
// It checks format but does not verify the key with the provider.
func ValidateAPIKey(provider, key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return errors.New("invalid API key format: expected 'sk-ant-' prefix")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return errors.New("invalid API key format: expected 'sk-' prefix")
		}
	}

	// Keys should be reasonably long
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the API key for an LLM config would be sourced from.
func GetAPIKeySource(l LLMConfig) KeySource {
	if env := APIKeyEnv(l.Provider); env != "" && os.Getenv(env) != "" {
		return KeySourceEnv
	}

	if l.APIKey != "" {
		key := os.ExpandEnv(l.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return KeySourceConfig
		}
	}

	return KeySourceNone
}
