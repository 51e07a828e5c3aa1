package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/config"
	"github.com/ppiankov/groundcheck/internal/extract"
	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/rerank"
	"github.com/ppiankov/groundcheck/internal/retrieve"
	"github.com/ppiankov/groundcheck/internal/score"
	"github.com/ppiankov/groundcheck/internal/source"
	"github.com/ppiankov/groundcheck/internal/util"
	"github.com/ppiankov/groundcheck/internal/validate"
	"github.com/ppiankov/groundcheck/internal/worker"
)

// Engine is a fully wired orchestrator together with the resources it owns.
type Engine struct {
	*Orchestrator

	Judge    llm.Provider
	Registry *source.Registry
	Cache    *cache.GroundingCache
}

// NewEngine builds every component from cfg. The caller must Close the
// engine to release the cache store and any MCP session.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	judge, err := llm.NewProvider(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	strategy, err := score.ParseStrategy(cfg.Scoring.Strategy)
	if err != nil {
		return nil, err
	}
	scorer, err := score.New(strategy, judge, score.Options{
		MaxEvidence:         cfg.Scoring.MaxEvidence,
		ThinEvidenceCount:   cfg.Scoring.ThinEvidenceThreshold,
		ThinEvidencePenalty: cfg.Scoring.ThinEvidencePenalty,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}

	registry, err := BuildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	grounding, err := OpenGroundingCache(cfg, logger)
	if errors.Is(err, cache.ErrUnknownBackend) {
		_ = registry.Close()
		return nil, err
	}
	if err != nil {
		// An unreachable store only costs cache hits
		logger.Warn("Cache store unavailable, continuing without persistent cache",
			"backend", cfg.Cache.Backend, "path", cfg.Cache.Path, "error", err)
		grounding = cache.NewGroundingCache(nil, groundingOptions(cfg, logger))
	}

	var reranker *rerank.Reranker
	if svc := rerank.NewServiceScorer(cfg.Rerank.URL, cfg.Rerank.Model, cfg.Rerank.APIKey, cfg.Rerank.Timeout); svc != nil {
		reranker = rerank.New(svc, cfg.Rerank.TopK, logger)
	} else {
		reranker = rerank.New(nil, cfg.Rerank.TopK, logger)
	}

	orch := New(
		extract.NewExtractor(judge, extract.Options{
			BatchSize:      cfg.Extract.BatchSize,
			MinClaimLength: cfg.Extract.MinClaimLength,
			Logger:         logger,
		}),
		retrieve.NewRetriever(registry, retrieve.Options{
			LimitPerSearch: cfg.Sources.LimitPerSearch,
			EnrichTopN:     cfg.Pipeline.EnrichTopN,
			SearchTimeout:  3 * cfg.Sources.Timeout,
			Logger:         logger,
		}),
		reranker,
		scorer,
		grounding,
		Options{
			Concurrency:  cfg.Pipeline.Concurrency,
			ClaimTimeout: cfg.Pipeline.ClaimTimeout,
			CacheTTL:     cfg.Cache.TTL,
			Logger:       logger,
		},
	)

	return &Engine{Orchestrator: orch, Judge: judge, Registry: registry, Cache: grounding}, nil
}

// Close releases the cache store and source sessions.
func (e *Engine) Close() error {
	return errors.Join(e.Registry.Close(), e.Cache.Close())
}

// BuildRegistry registers the built-in adapters, then the MCP tool when one
// is configured. Per-source rate limits come from the config.
func BuildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*source.Registry, error) {
	limiter := worker.NewLimiter(cfg.Sources.Rate, cfg.Sources.Burst)
	for kind, rc := range cfg.Sources.Limits {
		limiter.SetRate(kind, rc.Rate, rc.Burst)
	}
	authority := validate.NewAuthorityClassifier(&cfg.Authority)
	registry := source.NewRegistry(limiter, authority, logger)

	proxy := util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	client := source.NewHTTPClient(cfg.Sources.Timeout, proxy)

	if strings.EqualFold(cfg.Sources.General.Backend, "brave") {
		registry.Register(&source.BraveSearch{
			APIKey:  cfg.Sources.General.APIKey,
			BaseURL: cfg.Sources.General.BaseURL,
			Client:  client,
		})
	} else {
		registry.Register(&source.GoogleSearch{
			APIKey:   cfg.Sources.General.APIKey,
			EngineID: cfg.Sources.General.EngineID,
			BaseURL:  cfg.Sources.General.BaseURL,
			Client:   client,
		})
	}
	registry.Register(&source.TavilySearch{
		APIKey:  cfg.Sources.Tavily.APIKey,
		BaseURL: cfg.Sources.Tavily.BaseURL,
		Client:  client,
	})
	registry.Register(&source.Wikipedia{
		BaseURL:   cfg.Sources.Wikipedia.BaseURL,
		UserAgent: cfg.HTTP.UserAgent,
		Client:    client,
		Logger:    logger,
	})
	registry.Register(&source.Arxiv{
		BaseURL: cfg.Sources.Arxiv.BaseURL,
		Client:  client,
	})

	var robots *util.RobotsChecker
	if cfg.Sources.PageFetch.RespectRobots {
		robots = util.NewRobotsChecker(client, cfg.HTTP.UserAgent, cfg.Sources.Timeout, logger)
	}
	registry.Register(source.NewPageFetcher(cfg.Sources.Timeout, cfg.HTTP.UserAgent,
		cfg.Sources.PageFetch.MaxBodyBytes, robots, logger))

	if mc := cfg.Sources.MCP; mc.Command != "" {
		kind, ok := model.ParseSourceKind(mc.Kind)
		if !ok {
			return nil, fmt.Errorf("sources.mcp.kind %q is not a source kind", mc.Kind)
		}
		src, err := source.ConnectMCPCommand(ctx, kind, mc.Command, mc.Args, mc.Tool, logger)
		if err != nil {
			return nil, fmt.Errorf("connect MCP source: %w", err)
		}
		registry.Register(src)
	}

	return registry, nil
}

// OpenGroundingCache opens the configured store behind a fail-open cache.
func OpenGroundingCache(cfg *config.Config, logger *slog.Logger) (*cache.GroundingCache, error) {
	path := cfg.Cache.Path
	if strings.EqualFold(cfg.Cache.Backend, cache.BackendSQLite) {
		path = filepath.Join(path, "grounding.db")
	}

	store, err := cache.Open(cfg.Cache.Backend, path, cfg.Cache.TTL, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return cache.NewGroundingCache(store, groundingOptions(cfg, logger)), nil
}

func groundingOptions(cfg *config.Config, logger *slog.Logger) cache.Options {
	return cache.Options{
		Version:   cfg.Cache.Version,
		TTL:       cfg.Cache.TTL,
		OpTimeout: cfg.Cache.OpTimeout,
		Logger:    logger,
	}
}
