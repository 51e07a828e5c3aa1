package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/groundcheck/internal/model"
)

type countingEvaluator struct {
	calls int32
}

func (e *countingEvaluator) Run(_ context.Context, outputs []model.Output) model.MetricScore {
	atomic.AddInt32(&e.calls, 1)
	return model.MetricScore{Score: float64(len(outputs))}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBatchProcessor_ProcessFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "outputs:\n  - first\n  - second\n")
	b := writeFile(t, dir, "b.json", `["only one"]`)
	missing := filepath.Join(dir, "missing.yaml")

	eval := &countingEvaluator{}
	processor := NewBatchProcessor(eval, 2)

	results := processor.ProcessFiles(context.Background(), []string{a, b, missing})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Path != a || results[0].Metric == nil || results[0].Metric.Score != 2 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Path != b || results[1].Metric == nil || results[1].Metric.Score != 1 {
		t.Errorf("unexpected second result: %+v", results[1])
	}
	if results[2].GetError() == nil {
		t.Error("expected error for missing file")
	}
	if atomic.LoadInt32(&eval.calls) != 2 {
		t.Errorf("expected 2 evaluator calls, got %d", eval.calls)
	}
}

func TestBatchProcessor_CancelledReportsEveryFile(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.yaml", "outputs: [one]\n"),
		writeFile(t, dir, "b.yaml", "outputs: [two]\n"),
		writeFile(t, dir, "c.yaml", "outputs: [three]\n"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewBatchProcessor(&countingEvaluator{}, 1).ProcessFiles(ctx, paths)
	if len(results) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(results))
	}
	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("result %d: expected path %s, got %s", i, paths[i], r.Path)
		}
		if r.Metric == nil && r.GetError() == nil {
			t.Errorf("result %d has neither metric nor error", i)
		}
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&countingEvaluator{}, 2)
	if got := processor.ProcessFiles(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestParseOutputs_Formats(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []model.Output
	}{
		{
			name: "json array",
			doc:  `["OpenAI announced GPT-4 on March 14, 2023."]`,
			want: []model.Output{{Text: "OpenAI announced GPT-4 on March 14, 2023."}},
		},
		{
			name: "attributed outputs",
			doc:  "outputs:\n  - input: q1\n    text: answer one\n  - plain answer\n",
			want: []model.Output{{Input: "q1", Text: "answer one"}, {Text: "plain answer"}},
		},
		{
			name: "grouped inputs",
			doc:  "inputs:\n  - input: q1\n    outputs: [a, b]\n  - input: q2\n    outputs: [c]\n",
			want: []model.Output{{Input: "q1", Text: "a"}, {Input: "q1", Text: "b"}, {Input: "q2", Text: "c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutputs([]byte(tt.doc))
			if err != nil {
				t.Fatalf("ParseOutputs failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d outputs, got %d (%+v)", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("output %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestParseOutputs_Invalid(t *testing.T) {
	if _, err := ParseOutputs([]byte("outputs: [[nested]]")); err == nil {
		t.Error("expected error for nested sequence")
	}
}

func TestReadLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "list.txt", "# inputs\na.yaml\n\nb.yaml\na.yaml\n")

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "a.yaml" || lines[1] != "b.yaml" {
		t.Errorf("unexpected lines: %v", lines)
	}
}
