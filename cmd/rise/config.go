package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/rise/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise configuration",
	Long: `Show the effective configuration, with API keys masked.

Configuration is stored at ~/.config/rise/config.yaml.
Project-specific overrides can be placed in .rise.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fail("load config", err)
		}
		out, err := renderConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists; pass --force to overwrite", path)
		}
		if err := config.SaveToPath(config.Default(), path); err != nil {
			return fail("write config", err)
		}
		printStatus("✓", "Wrote "+path, color.FgGreen)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config files in use",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// renderConfig returns cfg as YAML with API keys masked.
func renderConfig(cfg *config.Config) (string, error) {
	masked := *cfg
	masked.LLMs = make(map[string]config.LLMConfig, len(cfg.LLMs))
	for name, l := range cfg.LLMs {
		if l.APIKey != "" {
			l.APIKey = config.MaskAPIKey(l.APIKey)
		}
		masked.LLMs[name] = l
	}
	if masked.Embeddings.APIKey != "" {
		masked.Embeddings.APIKey = config.MaskAPIKey(masked.Embeddings.APIKey)
	}

	data, err := yaml.Marshal(masked)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(data), nil
}
