package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/pipeline"
	"github.com/ppiankov/groundcheck/internal/worker"
)

var (
	verifyFile    string
	verifyInput   string
	verifyOut     string
	verifyJSON    bool
	verifyCheck   bool
	verifyTimeout time.Duration
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [text...]",
	Short: "Score how well generated text is grounded in evidence",
	Long: `Verify extracts the factual claims from one or more generated outputs,
checks each unique claim against external evidence and prints the grounding
metric (0-100).

Each argument is one output. Without arguments the outputs are read from
--file (YAML or JSON) or from stdin as a single output.

Example:
  groundcheck verify "OpenAI announced GPT-4 on March 14, 2023."
  groundcheck verify --file outputs.yaml --json
  groundcheck verify --check`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "outputs file (YAML or JSON)")
	verifyCmd.Flags().StringVar(&verifyInput, "input", "", "prompt input the outputs were generated for")
	verifyCmd.Flags().StringVar(&verifyOut, "out", "", "also write the JSON metric to this path")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the metric as JSON")
	verifyCmd.Flags().BoolVar(&verifyCheck, "check", false, "check judge availability and exit")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 10*time.Minute, "overall evaluation timeout")
	addEngineFlags(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
	defer cancel()

	engine, err := pipeline.NewEngine(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	if verifyCheck {
		return runCheck(ctx, cmd.OutOrStdout(), engine)
	}

	outputs, err := collectOutputs(args, verifyFile, verifyInput, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(outputs) == 0 {
		return fmt.Errorf("no outputs to verify")
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Verifying %d output(s) with %s/%s, strategy %s\n",
			len(outputs), cfg.LLM.Provider, cfg.LLM.Model, cfg.Scoring.Strategy)
	}

	metric := engine.Run(ctx, outputs)

	if verifyOut != "" {
		if err := writeJSON(verifyOut, metric); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", verifyOut)
		}
	}

	w := cmd.OutOrStdout()
	if verifyJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(metric); err != nil {
			return fmt.Errorf("encode metric: %w", err)
		}
	} else {
		renderSummary(w, metric)
	}

	if metric.Error != "" {
		return fmt.Errorf("evaluation failed: %s", metric.Error)
	}
	return nil
}

func runCheck(ctx context.Context, w io.Writer, engine *pipeline.Engine) error {
	fmt.Fprintf(w, "Judge:   %s ", engine.Judge.Name())
	if !engine.Judge.IsAvailable(ctx) {
		fmt.Fprintln(w, "✗ unavailable")
		return fmt.Errorf("judge %s is not available", engine.Judge.Name())
	}
	fmt.Fprintln(w, "✓ available")

	kinds := engine.Registry.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	fmt.Fprintf(w, "Sources: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(w, "Cache:   version %s\n", engine.Cache.Version())
	return nil
}

// collectOutputs gathers outputs from arguments, a file or stdin, in that
// order of preference.
func collectOutputs(args []string, file, input string, stdin io.Reader) ([]model.Output, error) {
	if len(args) > 0 {
		outputs := make([]model.Output, len(args))
		for i, a := range args {
			outputs[i] = model.Output{Input: input, Text: a}
		}
		return outputs, nil
	}

	if file != "" {
		outputs, err := worker.LoadOutputs(file)
		if err != nil {
			return nil, err
		}
		for i := range outputs {
			if outputs[i].Input == "" {
				outputs[i].Input = input
			}
		}
		return outputs, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []model.Output{{Input: input, Text: text}}, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// renderSummary prints a human-readable metric.
func renderSummary(w io.Writer, m model.MetricScore) {
	d := m.Details

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  Grounding score: %.1f/100\n", m.Score)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  Run:               %s\n", d.RunID)
	fmt.Fprintf(w, "  Claims:            %d (%d cached, %d new, %d failed)\n",
		d.ClaimsProcessed, d.CacheHits, d.NewVerifications, d.Failures)
	fmt.Fprintf(w, "  Distribution:      %d grounded, %d partial, %d unsupported\n",
		d.ScoreDistribution.Perfect, d.ScoreDistribution.Partial, d.ScoreDistribution.Zero)
	fmt.Fprintf(w, "  Duration:          %s\n", d.Duration.Round(time.Millisecond))

	if len(d.ClaimScores) > 0 {
		fmt.Fprintln(w)
		for _, cs := range d.ClaimScores {
			mark := "✓"
			switch {
			case !cs.Verified:
				mark = "?"
			case cs.Score < 50:
				mark = "✗"
			}
			cached := ""
			if cs.Cached {
				cached = " (cached)"
			}
			fmt.Fprintf(w, "  %s %5.1f  %s%s\n", mark, cs.Score, cs.Claim, cached)
			if verbose && cs.Reasoning != "" {
				fmt.Fprintf(w, "           %s\n", cs.Reasoning)
			}
		}
	}

	if len(d.PerInput) > 0 {
		fmt.Fprintln(w)
		for _, in := range d.PerInput {
			fmt.Fprintf(w, "  input %q: %.1f over %d output(s)\n", in.Input, in.Score, in.Outputs)
		}
	}

	if m.Error != "" {
		fmt.Fprintf(w, "\n  Error: %s\n", m.Error)
	}
}
