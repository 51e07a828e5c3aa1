package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/pipeline"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the grounding cache",
	Long: `Inspect and manage the grounding cache of claim verdicts.

Verdicts are keyed by normalized claim text and tagged with the cache
version; entries written under another version read as misses.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache backend, version and the verdict for optional claims",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gc, backend, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = gc.Close() }()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Backend: %s\n", backend)
		fmt.Fprintf(w, "Version: %s\n", gc.Version())

		for _, claim := range args {
			if v, ok := gc.Get(cmd.Context(), claim); ok {
				fmt.Fprintf(w, "  ✓ %5.1f  %s (verified %s)\n", v.Score, claim, v.VerifiedAt.Format("2006-01-02"))
			} else {
				fmt.Fprintf(w, "  - miss   %s\n", claim)
			}
		}

		data, err := json.MarshalIndent(gc.Stats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Session counters:\n%s\n", data)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		gc, backend, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = gc.Close() }()

		if !gc.Clear(cmd.Context()) {
			return fmt.Errorf("clear %s cache failed (see log)", backend)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s cache\n", backend)
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <claim>",
	Short: "Remove the cached verdict for one claim",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gc, _, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = gc.Close() }()

		claim := strings.Join(args, " ")
		if !gc.Delete(cmd.Context(), claim) {
			return fmt.Errorf("delete failed (see log)")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted verdict for %q\n", claim)
		return nil
	},
}

func openCache(cmd *cobra.Command) (*cache.GroundingCache, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	if strings.EqualFold(cfg.Cache.Backend, cache.BackendNone) || cfg.Cache.Backend == "" {
		return nil, "", fmt.Errorf("cache is disabled (cache.backend: none)")
	}
	gc, err := pipeline.OpenGroundingCache(cfg, slog.Default())
	if err != nil {
		return nil, "", err
	}
	return gc, cfg.Cache.Backend, nil
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)

	for _, c := range []*cobra.Command{cacheStatsCmd, cacheClearCmd, cacheDeleteCmd} {
		c.Flags().String("cache", "", "cache backend (memory, disk, sqlite, badger, layered)")
		c.Flags().String("cache-path", "", "cache directory")
	}
}
