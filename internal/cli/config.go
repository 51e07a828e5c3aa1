package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/groundcheck/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage groundcheck configuration",
	Long: `Manage groundcheck configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (GROUNDCHECK_*, e.g. GROUNDCHECK_CACHE_BACKEND)
3. Config file (~/.groundcheck/config.yaml)
4. Defaults

Credentials are read from OPENAI_API_KEY, ANTHROPIC_API_KEY,
GOOGLE_SEARCH_API_KEY, GOOGLE_SEARCH_ENGINE_ID, BRAVE_API_KEY,
TAVILY_API_KEY and RERANK_API_KEY when not set in the file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the effective configuration after defaults, config file, environment and flags. Secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		yamlData, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
		fmt.Fprintln(w, "  Current Configuration")
		fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
		fmt.Fprintln(w)
		fmt.Fprintln(w, string(yamlData))
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.groundcheck/config.yaml (or --config) with every option set to its default.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		configPath := cfgFile
		if configPath == "" {
			configPath = filepath.Join(config.DefaultDir(), "config.yaml")
		}

		if _, statErr := os.Stat(configPath); statErr == nil && !configInitForce {
			return fmt.Errorf("config file already exists: %s\nUse 'groundcheck config show' to view it, or pass --force to overwrite", configPath)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		yamlData, err := yaml.Marshal(config.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		header := `# groundcheck configuration
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (GROUNDCHECK_*)
#   3. This config file
#   4. Built-in defaults
#
# Keep credentials in the environment:
#   export OPENAI_API_KEY=sk-...
#   export GOOGLE_SEARCH_API_KEY=... GOOGLE_SEARCH_ENGINE_ID=...
#   export TAVILY_API_KEY=...

`
		if err := os.WriteFile(configPath, append([]byte(header), yamlData...), 0600); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "✓ Created default configuration: %s\n", configPath)
		fmt.Fprintf(w, "\nTo view the configuration:\n")
		fmt.Fprintf(w, "  groundcheck config show\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}
