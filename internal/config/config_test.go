package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "preferred", cfg.Scoring.Strategy)
	assert.Equal(t, 15, cfg.Rerank.TopK)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.ClaimTimeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scoring:
  strategy: entity
cache:
  backend: memory
  ttl: 1h
sources:
  general:
    backend: brave
  limits:
    academic:
      rate: 0.5
      burst: 1
`), 0o600))

	t.Setenv("GROUNDCHECK_PIPELINE_CONCURRENCY", "3")
	t.Setenv("BRAVE_API_KEY", "brave-key")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "entity", cfg.Scoring.Strategy)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Pipeline.Concurrency)
	assert.Equal(t, "brave-key", cfg.Sources.General.APIKey)
	assert.Equal(t, RateConfig{Rate: 0.5, Burst: 1}, cfg.Sources.Limits["academic"])

	// Untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Sources.LimitPerSearch)
	assert.Equal(t, 0.9, cfg.Scoring.ThinEvidencePenalty)
	assert.NotEmpty(t, cfg.Authority.PrimaryDomains)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  strategy: hybrid\n"), 0o600))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hybrid")
}

func TestApplyEnvCredentials(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":          "sk-env",
		"GOOGLE_SEARCH_API_KEY":   "g-key",
		"GOOGLE_SEARCH_ENGINE_ID": "g-cx",
		"TAVILY_API_KEY":          "tv-key",
		"RERANK_API_KEY":          "rr-key",
		"BRAVE_API_KEY":           "brave-key",
	}
	getenv := func(k string) string { return env[k] }

	cfg := DefaultConfig()
	cfg.Rerank.APIKey = "from-file"
	ApplyEnvCredentials(&cfg, getenv)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "g-key", cfg.Sources.General.APIKey)
	assert.Equal(t, "g-cx", cfg.Sources.General.EngineID)
	assert.Equal(t, "tv-key", cfg.Sources.Tavily.APIKey)
	assert.Equal(t, "from-file", cfg.Rerank.APIKey)

	cfg = DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.Sources.General.Backend = "brave"
	ApplyEnvCredentials(&cfg, getenv)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, "brave-key", cfg.Sources.General.APIKey)
	assert.Empty(t, cfg.Sources.General.EngineID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"general backend", func(c *Config) { c.Sources.General.Backend = "bing" }, "sources.general.backend"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"mcp tool", func(c *Config) { c.Sources.MCP = MCPConfig{Command: "search-server", Kind: "broad_search"} }, "sources.mcp.tool"},
		{"mcp kind", func(c *Config) { c.Sources.MCP = MCPConfig{Command: "search-server", Tool: "search", Kind: "web"} }, "sources.mcp.kind"},
		{"limit kind", func(c *Config) { c.Sources.Limits = map[string]RateConfig{"bing": {Rate: 1}} }, "sources.limits"},
		{"penalty", func(c *Config) { c.Scoring.ThinEvidencePenalty = 1.5 }, "thin_evidence_penalty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-1234567890abcdef"
	cfg.Sources.Tavily.APIKey = "short"

	red := cfg.Redacted()
	assert.Equal(t, "sk-1****", red.LLM.APIKey)
	assert.Equal(t, "****", red.Sources.Tavily.APIKey)
	assert.Empty(t, red.Sources.General.APIKey)
	assert.Equal(t, "sk-1234567890abcdef", cfg.LLM.APIKey)
}
