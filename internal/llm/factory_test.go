package llm

import (
	"context"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantErr  bool
	}{
		{name: "openai", config: Config{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{name: "claude alias", config: Config{Provider: "Claude", APIKey: "k"}, wantName: "anthropic"},
		{name: "ollama", config: Config{Provider: "ollama", Model: "llama3.1"}, wantName: "ollama"},
		{name: "empty", config: Config{}, wantErr: true},
		{name: "unknown", config: Config{Provider: "bard"}, wantErr: true},
		{name: "openai without key", config: Config{Provider: "openai"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got provider %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Expected %s, got %s", tt.wantName, p.Name())
			}
		})
	}
}

func TestJudgeFunc(t *testing.T) {
	var j Judge = JudgeFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	got, err := j.AnalyzeText(context.Background(), "hi")
	if err != nil || got != "echo: hi" {
		t.Fatalf("Unexpected result %q, %v", got, err)
	}
}
