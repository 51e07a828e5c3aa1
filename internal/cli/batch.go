package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/pipeline"
	"github.com/ppiankov/groundcheck/internal/worker"
)

var (
	batchWorkers int
	batchList    string
	batchOut     string
	batchTimeout time.Duration
	batchMetrics string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [file...]",
	Short: "Evaluate many output files in parallel",
	Long: `Batch evaluates every input file (YAML or JSON outputs, same formats as
verify --file) through a worker pool and writes one JSON line per file.

Claims shared between files are verified once per file run and then served
from the grounding cache.

Example:
  groundcheck batch run1.yaml run2.yaml
  groundcheck batch --list files.txt --workers 4 --out results.jsonl`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchWorkers, "workers", runtime.NumCPU(), "files evaluated in parallel")
	batchCmd.Flags().StringVar(&batchList, "list", "", "file listing input paths, one per line")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write JSON lines to this path instead of stdout")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchMetrics, "metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
	addEngineFlags(batchCmd)
}

// batchLine is one JSON line of batch output.
type batchLine struct {
	Path    string      `json:"path"`
	Outputs int         `json:"outputs"`
	Score   *float64    `json:"score,omitempty"`
	Metric  interface{} `json:"metric,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	paths := args
	if batchList != "" {
		listed, err := worker.ReadLines(batchList)
		if err != nil {
			return err
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no input files (pass paths or --list)")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	engine, err := pipeline.NewEngine(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	stopMetrics, err := serveMetrics(batchMetrics, slog.Default())
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	defer stopMetrics()

	var w io.Writer = cmd.OutOrStdout()
	if batchOut != "" {
		f, err := os.Create(batchOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output: %w", closeErr)
			}
		}()
		w = f
	}

	fmt.Fprintf(os.Stderr, "⚙️  Evaluating %d file(s) with %d workers...\n", len(paths), batchWorkers)

	processor := worker.NewBatchProcessor(engine, batchWorkers)
	results := processor.ProcessFiles(ctx, paths)

	enc := json.NewEncoder(w)
	failures := 0
	for _, r := range results {
		line := batchLine{Path: r.Path, Outputs: r.Outputs}
		switch {
		case r.Error != nil:
			line.Error = r.Error.Error()
		case r.Metric != nil:
			line.Score = &r.Metric.Score
			line.Metric = r.Metric
			line.Error = r.Metric.Error
		default:
			line.Error = "not evaluated"
		}
		if line.Error != "" {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", r.Path, line.Error)
		} else {
			fmt.Fprintf(os.Stderr, "✓ %s (score: %.1f)\n", r.Path, *line.Score)
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n  Total: %d  Success: %d  Failures: %d\n", len(results), len(results)-failures, failures)
	if failures == len(results) {
		return fmt.Errorf("all %d file(s) failed", failures)
	}
	return nil
}
