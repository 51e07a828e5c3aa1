package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/groundcheck/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "groundcheck",
	Short: "groundcheck - grounding metric for generated text",
	Long: `groundcheck measures how well the factual claims in AI-generated text are
supported by external evidence.

It extracts checkable claims, retrieves evidence from routed sources,
reranks and places the evidence, scores every claim 0-100 and reports the
mean as a grounding metric.

A low score means the evidence found does not support the claims. It does
not prove the claims false.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(os.Stderr, verbose, logFormat))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of groundcheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "groundcheck %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.groundcheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger on w.
func newLogger(w io.Writer, debug bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig reads the configuration and binds command flags onto it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	bindFlags(v, cmd)

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose && v.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}
	return cfg, nil
}

// flagKeys maps command flags onto config keys. Flags win over the file
// and environment when set.
var flagKeys = map[string]string{
	"llm-provider": "llm.provider",
	"llm-model":    "llm.model",
	"strategy":     "scoring.strategy",
	"cache":        "cache.backend",
	"cache-path":   "cache.path",
	"concurrency":  "pipeline.concurrency",
	"enrich":       "pipeline.enrich_top_n",
	"rerank-url":   "rerank.url",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// addEngineFlags registers the flags shared by commands that run evaluations.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("llm-provider", "", "judge provider (openai, anthropic, ollama)")
	cmd.Flags().String("llm-model", "", "judge model name")
	cmd.Flags().String("strategy", "", "scoring strategy (llm, entity, preferred)")
	cmd.Flags().String("cache", "", "cache backend (none, memory, disk, sqlite, badger, layered)")
	cmd.Flags().Int("concurrency", 0, "claims verified in parallel")
	cmd.Flags().Int("enrich", 0, "replace snippets of the top N evidence items with page text")
	cmd.Flags().String("rerank-url", "", "cross-encoder rerank endpoint")
}
