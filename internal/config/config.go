// Package config handles configuration loading and management for rise.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Conventional LLM names. Any other name may be configured and looked up.
const (
	DefaultLLM           = "default"
	ResponseGeneratorLLM = "response_generator_llm"
)

// Config holds all configuration for rise.
type Config struct {
	LLMs       map[string]LLMConfig `mapstructure:"llms" yaml:"llms"`
	Embeddings EmbeddingsConfig     `mapstructure:"embeddings" yaml:"embeddings"`
	RL         RLConfig             `mapstructure:"rl" yaml:"rl"`
	Graph      GraphConfig          `mapstructure:"graph" yaml:"graph"`
	State      StateConfig          `mapstructure:"state" yaml:"state"`
	Logging    LoggingConfig        `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
	TUI        TUIConfig            `mapstructure:"tui" yaml:"tui"`
}

// LLMConfig describes one named language model.
type LLMConfig struct {
	// Provider is anthropic, openai or ollama.
	Provider string `mapstructure:"provider" yaml:"provider"`
	// Model is the provider-specific model name.
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey may reference environment variables as ${VAR}.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint (Ollama host, OpenAI-compatible gateways).
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	// MaxTokens bounds the response length.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Temperature is left to the provider default when nil.
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	// UseBedrock routes Anthropic calls through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock" yaml:"use_bedrock,omitempty"`
	AWSRegion  string `mapstructure:"aws_region" yaml:"aws_region,omitempty"`
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile,omitempty"`
}

// EmbeddingsConfig selects the embedding provider used for semantic state matching.
type EmbeddingsConfig struct {
	// Provider is none, openai or ollama.
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// RLConfig holds tool-selection learning parameters shared by every team.
type RLConfig struct {
	ExplorationRate     float64 `mapstructure:"exploration_rate" yaml:"exploration_rate"`
	LearningRate        float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	DiscountFactor      float64 `mapstructure:"discount_factor" yaml:"discount_factor"`
	ExplorationDecay    float64 `mapstructure:"exploration_decay" yaml:"exploration_decay"`
	MinExplorationRate  float64 `mapstructure:"min_exploration_rate" yaml:"min_exploration_rate"`
	UseEmbeddings       bool    `mapstructure:"use_embeddings" yaml:"use_embeddings"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	EmbeddingCacheSize  int     `mapstructure:"embedding_cache_size" yaml:"embedding_cache_size"`
	TopN                int     `mapstructure:"top_n" yaml:"top_n"`
	// QTableDir holds one Q-table per team.
	QTableDir string `mapstructure:"q_table_dir" yaml:"q_table_dir"`
	// Store is file (JSON per team) or sqlite (one shared database).
	Store string `mapstructure:"store" yaml:"store"`
}

// GraphConfig holds orchestration limits and node behavior.
type GraphConfig struct {
	StepLimit           int  `mapstructure:"step_limit" yaml:"step_limit"`
	ReplanLimit         int  `mapstructure:"replan_limit" yaml:"replan_limit"`
	StrictValidation    bool `mapstructure:"strict_validation" yaml:"strict_validation"`
	AutoFix             bool `mapstructure:"auto_fix" yaml:"auto_fix"`
	ReplanOnToolFailure bool `mapstructure:"replan_on_tool_failure" yaml:"replan_on_tool_failure"`
	TeamMaxIterations   int  `mapstructure:"team_max_iterations" yaml:"team_max_iterations"`
}

// StateConfig locates the thread checkpoint database.
type StateConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is a listen address such as ":9090". Empty disables the endpoint.
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate" yaml:"refresh_rate"`
}

// LLM returns the named LLM config, falling back to the default entry.
func (c *Config) LLM(name string) (LLMConfig, bool) {
	if name == "" {
		name = DefaultLLM
	}
	if l, ok := c.LLMs[name]; ok {
		return l, true
	}
	l, ok := c.LLMs[DefaultLLM]
	return l, ok
}

// LLMNames returns the configured LLM names in sorted order.
func (c *Config) LLMNames() []string {
	names := make([]string, 0, len(c.LLMs))
	for name := range c.LLMs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (OLLAMA_HOST, RISE_LOG_LEVEL)
// 2. Project config (.rise.yaml in current directory or parent)
// 3. User config (~/.config/rise/config.yaml)
// 4. Built-in defaults
//
// Provider API keys are resolved at client construction, see GetAPIKey.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.BindEnv("embeddings.base_url", "OLLAMA_HOST")
	v.BindEnv("logging.level", "RISE_LOG_LEVEL")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	for name, l := range cfg.LLMs {
		l.APIKey = expandEnv(l.APIKey)
		cfg.LLMs[name] = l
	}
	cfg.Embeddings.APIKey = expandEnv(cfg.Embeddings.APIKey)
	cfg.State.DBPath = expandEnv(cfg.State.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveToPath(cfg, GetUserConfigPath())
}

// SaveToPath writes the configuration to path as YAML.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for name, l := range cfg.LLMs {
		prefix := "llms." + name + "."
		v.Set(prefix+"provider", l.Provider)
		v.Set(prefix+"model", l.Model)
		v.Set(prefix+"api_key", l.APIKey)
		v.Set(prefix+"base_url", l.BaseURL)
		v.Set(prefix+"max_tokens", l.MaxTokens)
		if l.Temperature != nil {
			v.Set(prefix+"temperature", *l.Temperature)
		}
		v.Set(prefix+"use_bedrock", l.UseBedrock)
		v.Set(prefix+"aws_region", l.AWSRegion)
		v.Set(prefix+"aws_profile", l.AWSProfile)
	}
	v.Set("embeddings.provider", cfg.Embeddings.Provider)
	v.Set("embeddings.model", cfg.Embeddings.Model)
	v.Set("embeddings.base_url", cfg.Embeddings.BaseURL)
	v.Set("embeddings.api_key", cfg.Embeddings.APIKey)
	v.Set("rl.exploration_rate", cfg.RL.ExplorationRate)
	v.Set("rl.learning_rate", cfg.RL.LearningRate)
	v.Set("rl.discount_factor", cfg.RL.DiscountFactor)
	v.Set("rl.exploration_decay", cfg.RL.ExplorationDecay)
	v.Set("rl.min_exploration_rate", cfg.RL.MinExplorationRate)
	v.Set("rl.use_embeddings", cfg.RL.UseEmbeddings)
	v.Set("rl.similarity_threshold", cfg.RL.SimilarityThreshold)
	v.Set("rl.embedding_cache_size", cfg.RL.EmbeddingCacheSize)
	v.Set("rl.top_n", cfg.RL.TopN)
	v.Set("rl.q_table_dir", cfg.RL.QTableDir)
	v.Set("rl.store", cfg.RL.Store)
	v.Set("graph.step_limit", cfg.Graph.StepLimit)
	v.Set("graph.replan_limit", cfg.Graph.ReplanLimit)
	v.Set("graph.strict_validation", cfg.Graph.StrictValidation)
	v.Set("graph.auto_fix", cfg.Graph.AutoFix)
	v.Set("graph.replan_on_tool_failure", cfg.Graph.ReplanOnToolFailure)
	v.Set("graph.team_max_iterations", cfg.Graph.TeamMaxIterations)
	v.Set("state.db_path", cfg.State.DBPath)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfigAs(path)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultStateDBPath returns the default thread checkpoint database path.
func DefaultStateDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".rise", "state.db")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "rise", "state.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llms.default.provider", "anthropic")
	v.SetDefault("llms.default.model", "claude-sonnet-4-20250514")
	v.SetDefault("llms.default.max_tokens", 4096)

	v.SetDefault("embeddings.provider", "none")

	// RL defaults
	v.SetDefault("rl.exploration_rate", 0.2)
	v.SetDefault("rl.learning_rate", 0.1)
	v.SetDefault("rl.discount_factor", 0.99)
	v.SetDefault("rl.exploration_decay", 1.0)
	v.SetDefault("rl.min_exploration_rate", 0.0)
	v.SetDefault("rl.use_embeddings", false)
	v.SetDefault("rl.similarity_threshold", 0.92)
	v.SetDefault("rl.embedding_cache_size", 1000)
	v.SetDefault("rl.top_n", 1)
	v.SetDefault("rl.q_table_dir", "rl_data")
	v.SetDefault("rl.store", "file")

	// Graph defaults
	v.SetDefault("graph.step_limit", 50)
	v.SetDefault("graph.replan_limit", 2)
	v.SetDefault("graph.strict_validation", false)
	v.SetDefault("graph.auto_fix", true)
	v.SetDefault("graph.replan_on_tool_failure", false)
	v.SetDefault("graph.team_max_iterations", 4)

	v.SetDefault("state.db_path", DefaultStateDBPath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for rise.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rise")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "rise")
	}
	return filepath.Join(home, ".config", "rise")
}

// findProjectConfig searches for .rise.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".rise.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLMs: map[string]LLMConfig{
			DefaultLLM: {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 4096,
			},
		},
		Embeddings: EmbeddingsConfig{Provider: "none"},
		RL: RLConfig{
			ExplorationRate:     0.2,
			LearningRate:        0.1,
			DiscountFactor:      0.99,
			ExplorationDecay:    1.0,
			SimilarityThreshold: 0.92,
			EmbeddingCacheSize:  1000,
			TopN:                1,
			QTableDir:           "rl_data",
			Store:               "file",
		},
		Graph: GraphConfig{
			StepLimit:         50,
			ReplanLimit:       2,
			AutoFix:           true,
			TeamMaxIterations: 4,
		},
		State:   StateConfig{DBPath: DefaultStateDBPath()},
		Logging: LoggingConfig{Level: "info"},
		TUI:     TUIConfig{RefreshRate: 100 * time.Millisecond},
	}
}

// Validate checks that values are within acceptable ranges.
// Out-of-range numeric values are reset to their defaults; unknown
// provider names are reported as errors.
func (c *Config) Validate() error {
	if c.RL.ExplorationRate < 0 || c.RL.ExplorationRate > 1 {
		c.RL.ExplorationRate = 0.2
	}
	if c.RL.LearningRate <= 0 || c.RL.LearningRate > 1 {
		c.RL.LearningRate = 0.1
	}
	if c.RL.DiscountFactor < 0 || c.RL.DiscountFactor > 1 {
		c.RL.DiscountFactor = 0.99
	}
	if c.RL.ExplorationDecay <= 0 || c.RL.ExplorationDecay > 1 {
		c.RL.ExplorationDecay = 1.0
	}
	if c.RL.MinExplorationRate < 0 || c.RL.MinExplorationRate > c.RL.ExplorationRate {
		c.RL.MinExplorationRate = 0
	}
	if c.RL.SimilarityThreshold <= 0 || c.RL.SimilarityThreshold > 1 {
		c.RL.SimilarityThreshold = 0.92
	}
	if c.RL.EmbeddingCacheSize < 1 {
		c.RL.EmbeddingCacheSize = 1000
	}
	if c.RL.TopN < 1 {
		c.RL.TopN = 1
	}
	if c.RL.Store != "file" && c.RL.Store != "sqlite" {
		return fmt.Errorf("rl.store must be file or sqlite, got %q", c.RL.Store)
	}
	if c.Graph.StepLimit < 1 {
		c.Graph.StepLimit = 50
	}
	if c.Graph.ReplanLimit < 0 {
		c.Graph.ReplanLimit = 2
	}
	if c.Graph.TeamMaxIterations < 1 {
		c.Graph.TeamMaxIterations = 4
	}
	for name, l := range c.LLMs {
		switch l.Provider {
		case "anthropic", "openai", "ollama":
		default:
			return fmt.Errorf("llms.%s: unknown provider %q", name, l.Provider)
		}
	}
	switch c.Embeddings.Provider {
	case "", "none", "openai", "ollama":
	default:
		return fmt.Errorf("embeddings: unknown provider %q", c.Embeddings.Provider)
	}
	return nil
}
