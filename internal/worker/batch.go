package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/groundcheck/internal/model"
)

// Evaluator scores one batch of generated outputs.
type Evaluator interface {
	Run(ctx context.Context, outputs []model.Output) model.MetricScore
}

// EvaluationJob evaluates the outputs stored in one input file.
type EvaluationJob struct {
	Index     int
	Path      string
	Evaluator Evaluator
}

// Execute loads the file and runs the evaluator over it
func (j *EvaluationJob) Execute(ctx context.Context) Result {
	outputs, err := LoadOutputs(j.Path)
	if err != nil {
		return &EvaluationResult{Index: j.Index, Path: j.Path, Error: err}
	}

	metric := j.Evaluator.Run(ctx, outputs)
	return &EvaluationResult{
		Index:   j.Index,
		Path:    j.Path,
		Outputs: len(outputs),
		Metric:  &metric,
	}
}

// EvaluationResult is the outcome of one EvaluationJob
type EvaluationResult struct {
	Index   int                `json:"-"`
	Path    string             `json:"path"`
	Outputs int                `json:"outputs"`
	Metric  *model.MetricScore `json:"metric,omitempty"`
	Error   error              `json:"-"`
}

// GetError returns the error from the evaluation
func (r *EvaluationResult) GetError() error {
	return r.Error
}

// BatchProcessor evaluates many input files concurrently
type BatchProcessor struct {
	evaluator   Evaluator
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(evaluator Evaluator, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		evaluator:   evaluator,
		concurrency: concurrency,
	}
}

// ProcessFiles evaluates every file and returns results in input order.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*EvaluationResult {
	if len(paths) == 0 {
		return []*EvaluationResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, path := range paths {
		pool.Submit(&EvaluationJob{Index: i, Path: path, Evaluator: b.evaluator})
	}

	results := pool.Wait()

	done := make(map[int]bool, len(results))
	out := make([]*EvaluationResult, 0, len(paths))
	for _, result := range results {
		r := result.(*EvaluationResult)
		done[r.Index] = true
		out = append(out, r)
	}

	// Files never picked up before cancellation still get a result.
	for i, path := range paths {
		if !done[i] {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("not evaluated")
			}
			out = append(out, &EvaluationResult{Index: i, Path: path, Error: fmt.Errorf("skipped: %w", err)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	return out
}

// ReadLines reads file paths from a list file (one per line), skipping
// blanks, comments and duplicates.
func ReadLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}

// outputsFile accepts the supported input layouts:
//
//	outputs: ["text", ...]                     (plain strings)
//	outputs: [{input: "...", text: "..."}]     (attributed outputs)
//	inputs:  [{input: "...", outputs: [...]}]  (grouped by input)
type outputsFile struct {
	Outputs []yaml.Node  `yaml:"outputs"`
	Inputs  []inputGroup `yaml:"inputs"`
}

type inputGroup struct {
	Input   string   `yaml:"input"`
	Outputs []string `yaml:"outputs"`
}

// LoadOutputs reads generated outputs from a YAML or JSON file. A top-level
// sequence of strings is also accepted.
func LoadOutputs(path string) ([]model.Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	return ParseOutputs(data)
}

// ParseOutputs decodes the document formats accepted by LoadOutputs.
func ParseOutputs(data []byte) ([]model.Output, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse outputs: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		return decodeOutputNodes(doc.Content, "")
	}

	var file outputsFile
	if err := doc.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse outputs: %w", err)
	}

	outputs, err := decodeOutputNodes(nodePtrs(file.Outputs), "")
	if err != nil {
		return nil, err
	}
	for _, group := range file.Inputs {
		for _, text := range group.Outputs {
			outputs = append(outputs, model.Output{Input: group.Input, Text: text})
		}
	}
	return outputs, nil
}

func decodeOutputNodes(nodes []*yaml.Node, input string) ([]model.Output, error) {
	outputs := make([]model.Output, 0, len(nodes))
	for i, n := range nodes {
		switch n.Kind {
		case yaml.ScalarNode:
			outputs = append(outputs, model.Output{Input: input, Text: n.Value})
		case yaml.MappingNode:
			var o model.Output
			if err := n.Decode(&o); err != nil {
				return nil, fmt.Errorf("output %d: %w", i, err)
			}
			outputs = append(outputs, o)
		default:
			return nil, fmt.Errorf("output %d: unsupported value", i)
		}
	}
	return outputs, nil
}

func nodePtrs(nodes []yaml.Node) []*yaml.Node {
	out := make([]*yaml.Node, len(nodes))
	for i := range nodes {
		out[i] = &nodes[i]
	}
	return out
}
