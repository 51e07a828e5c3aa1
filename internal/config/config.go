// Package config loads groundcheck settings from defaults, the config file,
// GROUNDCHECK_* environment variables and provider credential variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/score"
	"github.com/ppiankov/groundcheck/internal/validate"
)

// EnvPrefix is the prefix of environment overrides (GROUNDCHECK_CACHE_BACKEND).
const EnvPrefix = "GROUNDCHECK"

// Config is the complete groundcheck configuration.
type Config struct {
	LLM       llm.Config               `mapstructure:"llm" yaml:"llm"`
	Extract   ExtractConfig            `mapstructure:"extract" yaml:"extract"`
	Sources   SourcesConfig            `mapstructure:"sources" yaml:"sources"`
	Rerank    RerankConfig             `mapstructure:"rerank" yaml:"rerank"`
	Cache     CacheConfig              `mapstructure:"cache" yaml:"cache"`
	Scoring   ScoringConfig            `mapstructure:"scoring" yaml:"scoring"`
	Pipeline  PipelineConfig           `mapstructure:"pipeline" yaml:"pipeline"`
	HTTP      HTTPConfig               `mapstructure:"http" yaml:"http"`
	Authority validate.AuthorityConfig `mapstructure:"authority" yaml:"authority"`
}

// ExtractConfig tunes claim extraction.
type ExtractConfig struct {
	BatchSize      int `mapstructure:"batch_size" yaml:"batch_size"`
	MinClaimLength int `mapstructure:"min_claim_length" yaml:"min_claim_length"`
}

// SourcesConfig configures the evidence source gateway.
type SourcesConfig struct {
	General        GeneralSearchConfig   `mapstructure:"general" yaml:"general"`
	Tavily         APIKeyConfig          `mapstructure:"tavily" yaml:"tavily"`
	Wikipedia      EndpointConfig        `mapstructure:"wikipedia" yaml:"wikipedia"`
	Arxiv          EndpointConfig        `mapstructure:"arxiv" yaml:"arxiv"`
	PageFetch      PageFetchConfig       `mapstructure:"page_fetch" yaml:"page_fetch"`
	MCP            MCPConfig             `mapstructure:"mcp" yaml:"mcp"`
	LimitPerSearch int                   `mapstructure:"limit_per_search" yaml:"limit_per_search"`
	Timeout        time.Duration         `mapstructure:"timeout" yaml:"timeout"`
	Rate           float64               `mapstructure:"rate" yaml:"rate"` // Default requests/second per source, 0 = unlimited
	Burst          int                   `mapstructure:"burst" yaml:"burst"`
	Limits         map[string]RateConfig `mapstructure:"limits" yaml:"limits,omitempty"` // Per source kind overrides
}

// GeneralSearchConfig selects and authenticates the general web search.
type GeneralSearchConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"` // google or brave
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	EngineID string `mapstructure:"engine_id" yaml:"engine_id,omitempty"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// APIKeyConfig is a keyed HTTP API.
type APIKeyConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// EndpointConfig is an unauthenticated HTTP API.
type EndpointConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// PageFetchConfig configures direct page fetches.
type PageFetchConfig struct {
	RespectRobots bool  `mapstructure:"respect_robots" yaml:"respect_robots"`
	MaxBodyBytes  int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// MCPConfig registers an MCP server tool as an evidence source.
type MCPConfig struct {
	Command string   `mapstructure:"command" yaml:"command,omitempty"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	Tool    string   `mapstructure:"tool" yaml:"tool,omitempty"`
	Kind    string   `mapstructure:"kind" yaml:"kind,omitempty"` // Source kind the tool replaces
}

// RateConfig is a per-source rate limit.
type RateConfig struct {
	Rate  float64 `mapstructure:"rate" yaml:"rate"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// RerankConfig configures the cross-encoder service.
type RerankConfig struct {
	URL     string        `mapstructure:"url" yaml:"url,omitempty"`
	Model   string        `mapstructure:"model" yaml:"model,omitempty"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	TopK    int           `mapstructure:"top_k" yaml:"top_k"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CacheConfig configures the grounding cache.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	Path      string        `mapstructure:"path" yaml:"path"` // Directory; sqlite uses <path>/grounding.db
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Version   string        `mapstructure:"version" yaml:"version"`
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// ScoringConfig configures claim scoring.
type ScoringConfig struct {
	Strategy              string  `mapstructure:"strategy" yaml:"strategy"`
	MaxEvidence           int     `mapstructure:"max_evidence" yaml:"max_evidence"`
	ThinEvidenceThreshold int     `mapstructure:"thin_evidence_threshold" yaml:"thin_evidence_threshold"`
	ThinEvidencePenalty   float64 `mapstructure:"thin_evidence_penalty" yaml:"thin_evidence_penalty"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	ClaimTimeout time.Duration `mapstructure:"claim_timeout" yaml:"claim_timeout"`
	EnrichTopN   int           `mapstructure:"enrich_top_n" yaml:"enrich_top_n"`
}

// HTTPConfig holds outbound HTTP settings shared by the sources.
type HTTPConfig struct {
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent"`
	HTTPProxy  string `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy string `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy    string `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// DefaultDir returns ~/.groundcheck, or .groundcheck when there is no home.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".groundcheck"
	}
	return filepath.Join(home, ".groundcheck")
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		LLM: llm.DefaultConfig(),
		Extract: ExtractConfig{
			BatchSize:      10,
			MinClaimLength: 10,
		},
		Sources: SourcesConfig{
			General:        GeneralSearchConfig{Backend: "google"},
			PageFetch:      PageFetchConfig{RespectRobots: true, MaxBodyBytes: 2_000_000},
			LimitPerSearch: 5,
			Timeout:        20 * time.Second,
			Rate:           2,
			Burst:          4,
		},
		Rerank: RerankConfig{
			Model:   "rerank-v3.5",
			TopK:    15,
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			Backend:   cache.BackendSQLite,
			Path:      filepath.Join(DefaultDir(), "cache"),
			TTL:       cache.DefaultTTL,
			Version:   cache.DefaultVersion,
			OpTimeout: 2 * time.Second,
		},
		Scoring: ScoringConfig{
			Strategy:              string(score.StrategyPreferred),
			MaxEvidence:           10,
			ThinEvidenceThreshold: 3,
			ThinEvidencePenalty:   0.9,
		},
		Pipeline: PipelineConfig{
			Concurrency:  8,
			ClaimTimeout: 90 * time.Second,
		},
		HTTP: HTTPConfig{
			UserAgent: "groundcheck/0.1 (+https://github.com/ppiankov/groundcheck)",
		},
		Authority: validate.DefaultAuthorityConfig(),
	}
}

// SetDefaults registers every default on v so environment overrides apply
// to keys missing from the config file.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.http_proxy", "")
	v.SetDefault("llm.https_proxy", "")
	v.SetDefault("llm.no_proxy", "")

	v.SetDefault("extract.batch_size", d.Extract.BatchSize)
	v.SetDefault("extract.min_claim_length", d.Extract.MinClaimLength)

	v.SetDefault("sources.general.backend", d.Sources.General.Backend)
	v.SetDefault("sources.general.api_key", "")
	v.SetDefault("sources.general.engine_id", "")
	v.SetDefault("sources.general.base_url", "")
	v.SetDefault("sources.tavily.api_key", "")
	v.SetDefault("sources.tavily.base_url", "")
	v.SetDefault("sources.wikipedia.base_url", "")
	v.SetDefault("sources.arxiv.base_url", "")
	v.SetDefault("sources.page_fetch.respect_robots", d.Sources.PageFetch.RespectRobots)
	v.SetDefault("sources.page_fetch.max_body_bytes", d.Sources.PageFetch.MaxBodyBytes)
	v.SetDefault("sources.mcp.command", "")
	v.SetDefault("sources.mcp.args", []string{})
	v.SetDefault("sources.mcp.tool", "")
	v.SetDefault("sources.mcp.kind", "")
	v.SetDefault("sources.limit_per_search", d.Sources.LimitPerSearch)
	v.SetDefault("sources.timeout", d.Sources.Timeout)
	v.SetDefault("sources.rate", d.Sources.Rate)
	v.SetDefault("sources.burst", d.Sources.Burst)

	v.SetDefault("rerank.url", "")
	v.SetDefault("rerank.model", d.Rerank.Model)
	v.SetDefault("rerank.api_key", "")
	v.SetDefault("rerank.top_k", d.Rerank.TopK)
	v.SetDefault("rerank.timeout", d.Rerank.Timeout)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.version", d.Cache.Version)
	v.SetDefault("cache.op_timeout", d.Cache.OpTimeout)

	v.SetDefault("scoring.strategy", d.Scoring.Strategy)
	v.SetDefault("scoring.max_evidence", d.Scoring.MaxEvidence)
	v.SetDefault("scoring.thin_evidence_threshold", d.Scoring.ThinEvidenceThreshold)
	v.SetDefault("scoring.thin_evidence_penalty", d.Scoring.ThinEvidencePenalty)

	v.SetDefault("pipeline.concurrency", d.Pipeline.Concurrency)
	v.SetDefault("pipeline.claim_timeout", d.Pipeline.ClaimTimeout)
	v.SetDefault("pipeline.enrich_top_n", d.Pipeline.EnrichTopN)

	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.http_proxy", "")
	v.SetDefault("http.https_proxy", "")
	v.SetDefault("http.no_proxy", "")

	v.SetDefault("authority.primary_domains", d.Authority.PrimaryDomains)
	v.SetDefault("authority.secondary_domains", d.Authority.SecondaryDomains)
	v.SetDefault("authority.tertiary_domains", d.Authority.TertiaryDomains)
	v.SetDefault("authority.path_patterns", d.Authority.PathPatterns)
}

// Load reads the configuration. An explicit file must exist; the default
// ~/.groundcheck/config.yaml is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	ApplyEnvCredentials(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvCredentials fills empty credentials from the conventional provider
// variables. Values set in the file or GROUNDCHECK_* win.
func ApplyEnvCredentials(cfg *Config, getenv func(string) string) {
	setIfEmpty := func(dst *string, env string) {
		if *dst == "" {
			*dst = getenv(env)
		}
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		setIfEmpty(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "anthropic", "claude":
		setIfEmpty(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "ollama":
		setIfEmpty(&cfg.LLM.BaseURL, "OLLAMA_BASE_URL")
	}

	if strings.EqualFold(cfg.Sources.General.Backend, "brave") {
		setIfEmpty(&cfg.Sources.General.APIKey, "BRAVE_API_KEY")
	} else {
		setIfEmpty(&cfg.Sources.General.APIKey, "GOOGLE_SEARCH_API_KEY")
		setIfEmpty(&cfg.Sources.General.EngineID, "GOOGLE_SEARCH_ENGINE_ID")
	}
	setIfEmpty(&cfg.Sources.Tavily.APIKey, "TAVILY_API_KEY")
	setIfEmpty(&cfg.Rerank.APIKey, "RERANK_API_KEY")

	setIfEmpty(&cfg.HTTP.HTTPProxy, "HTTP_PROXY")
	setIfEmpty(&cfg.HTTP.HTTPSProxy, "HTTPS_PROXY")
	setIfEmpty(&cfg.HTTP.NoProxy, "NO_PROXY")
}

// Validate rejects settings no component can run with. Missing source
// credentials are not an error: that source reports a configuration error
// and contributes no evidence.
func (c *Config) Validate() error {
	var errs []error

	if _, err := score.ParseStrategy(c.Scoring.Strategy); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Sources.General.Backend) {
	case "google", "brave":
	default:
		errs = append(errs, fmt.Errorf("sources.general.backend must be google or brave, got %q", c.Sources.General.Backend))
	}
	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendNone, cache.BackendMemory, cache.BackendDisk, cache.BackendSQLite, cache.BackendBadger, cache.BackendLayered, "":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Sources.MCP.Command != "" {
		if c.Sources.MCP.Tool == "" {
			errs = append(errs, errors.New("sources.mcp.tool is required when sources.mcp.command is set"))
		}
		if _, ok := model.ParseSourceKind(c.Sources.MCP.Kind); !ok {
			errs = append(errs, fmt.Errorf("sources.mcp.kind %q is not a source kind", c.Sources.MCP.Kind))
		}
	}
	for kind := range c.Sources.Limits {
		if _, ok := model.ParseSourceKind(kind); !ok {
			errs = append(errs, fmt.Errorf("sources.limits: unknown source kind %q", kind))
		}
	}
	if c.Scoring.ThinEvidencePenalty < 0 || c.Scoring.ThinEvidencePenalty > 1 {
		errs = append(errs, fmt.Errorf("scoring.thin_evidence_penalty must be within [0, 1], got %v", c.Scoring.ThinEvidencePenalty))
	}
	if c.Pipeline.Concurrency < 0 {
		errs = append(errs, errors.New("pipeline.concurrency must not be negative"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 8 {
			return "****"
		}
		return s[:4] + "****"
	}
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.Sources.General.APIKey = mask(c.Sources.General.APIKey)
	c.Sources.Tavily.APIKey = mask(c.Sources.Tavily.APIKey)
	c.Rerank.APIKey = mask(c.Rerank.APIKey)
	return c
}
