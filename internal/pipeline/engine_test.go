package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/config"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/source"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3.1:8b"
	cfg.Cache.Backend = "memory"
	cfg.Cache.Path = t.TempDir()
	return &cfg
}

func TestNewEngine(t *testing.T) {
	cfg := testConfig(t)

	engine, err := NewEngine(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	assert.Equal(t, "ollama", engine.Judge.Name())
	assert.Equal(t, model.SourceKinds, sortedKinds(engine.Registry.Kinds()))

	// Missing credentials surface per source, not at build time
	_, err = engine.Registry.Search(context.Background(), model.SourceGeneralSearch, "GPT-4", 3)
	assert.True(t, source.IsConfigurationError(err))
}

func TestNewEngine_Failures(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Provider = ""
		_, err := NewEngine(context.Background(), cfg, quietLogger)
		assert.Error(t, err)
	})

	t.Run("bad strategy", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Scoring.Strategy = "hybrid"
		_, err := NewEngine(context.Background(), cfg, quietLogger)
		assert.Error(t, err)
	})

	t.Run("bad cache backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Cache.Backend = "redis"
		_, err := NewEngine(context.Background(), cfg, quietLogger)
		assert.ErrorIs(t, err, cache.ErrUnknownBackend)
	})
}

func TestNewEngine_UnavailableCacheFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "sqlite"
	// A regular file where the cache directory should be
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.Cache.Path = blocker

	_, err := OpenGroundingCache(cfg, quietLogger)
	require.Error(t, err)

	engine, err := NewEngine(context.Background(), cfg, quietLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	verdict := model.ClaimVerdict{Claim: model.Claim{Text: gptClaim}, Score: 100, Verified: true}
	assert.False(t, engine.Cache.Set(context.Background(), gptClaim, verdict, 0))
	_, ok := engine.Cache.Get(context.Background(), gptClaim)
	assert.False(t, ok)
}

func TestOpenGroundingCache_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "sqlite"

	gc, err := OpenGroundingCache(cfg, quietLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gc.Close() })

	verdict := model.ClaimVerdict{Claim: model.Claim{Text: gptClaim}, Score: 100, Verified: true}
	require.True(t, gc.Set(context.Background(), gptClaim, verdict, 0))

	got, ok := gc.Get(context.Background(), "openai announced gpt-4 on march 14 2023")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Score)
	assert.FileExists(t, filepath.Join(cfg.Cache.Path, "grounding.db"))
}

func sortedKinds(kinds []model.SourceKind) []model.SourceKind {
	order := make(map[model.SourceKind]int, len(model.SourceKinds))
	for i, k := range model.SourceKinds {
		order[k] = i
	}
	out := make([]model.SourceKind, len(kinds))
	for _, k := range kinds {
		out[order[k]] = k
	}
	return out
}
