package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ppiankov/groundcheck/internal/metrics"
	"github.com/ppiankov/groundcheck/internal/model"
)

// DefaultVersion is the cache schema version written by this build. Bump it
// whenever verdict semantics change so stale entries read as misses.
const DefaultVersion = "v1"

// DefaultTTL is how long a verdict stays reusable.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is the persisted form of a claim verdict.
type Entry struct {
	NormalizedKey string             `json:"normalized_key"`
	Verdict       model.ClaimVerdict `json:"verdict"`
	CacheVersion  string             `json:"cache_version"`
	CreatedAt     time.Time          `json:"created_at"`
	ExpiresAt     time.Time          `json:"expires_at"`
}

// Options configures a GroundingCache.
type Options struct {
	Version   string
	TTL       time.Duration
	OpTimeout time.Duration // Per-operation deadline on the store
	Logger    *slog.Logger
}

// Stats counts cache traffic since construction.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Stale   int64  `json:"stale"` // Version mismatch or expired
	Writes  int64  `json:"writes"`
	Errors  int64  `json:"errors"`
	Version string `json:"version"`
}

// GroundingCache stores claim verdicts keyed by normalized claim text.
// It is fail-open: store failures are logged and reported as a miss or an
// unsuccessful write, never returned to the caller.
type GroundingCache struct {
	store     Store
	version   string
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time

	hits, misses, stale, writes, failures atomic.Int64
}

// NewGroundingCache wraps store. A nil store yields a cache that always misses.
func NewGroundingCache(store Store, opts Options) *GroundingCache {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &GroundingCache{
		store:     store,
		version:   opts.Version,
		ttl:       opts.TTL,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger.With("component", "grounding-cache"),
		now:       time.Now,
	}
}

// Version returns the schema version this cache reads and writes.
func (c *GroundingCache) Version() string {
	return c.version
}

// Get returns the cached verdict for claimText, or false on miss, stale
// entry or store failure.
func (c *GroundingCache) Get(ctx context.Context, claimText string) (verdict *model.ClaimVerdict, found bool) {
	if c.store == nil {
		c.misses.Add(1)
		return nil, false
	}
	defer c.recoverOp("get", func() { verdict, found = nil, false })

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	key := model.ClaimKey(claimText)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.fail("get", key, err)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.fail("decode", key, err)
		return nil, false
	}

	if entry.CacheVersion != c.version || !c.now().Before(entry.ExpiresAt) ||
		entry.NormalizedKey != model.Normalize(claimText) {
		c.stale.Add(1)
		c.misses.Add(1)
		metrics.CacheOps.WithLabelValues("get", "stale").Inc()
		c.logger.Debug("stale cache entry", "key", key, "entry_version", entry.CacheVersion, "version", c.version)
		return nil, false
	}

	c.hits.Add(1)
	metrics.CacheOps.WithLabelValues("get", "hit").Inc()
	return &entry.Verdict, true
}

// Set stores verdict for claimText. A zero ttl uses the configured default.
// It reports whether the write succeeded.
func (c *GroundingCache) Set(ctx context.Context, claimText string, verdict model.ClaimVerdict, ttl time.Duration) (ok bool) {
	if c.store == nil {
		return false
	}
	defer c.recoverOp("set", func() { ok = false })

	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now()
	key := model.ClaimKey(claimText)
	raw, err := json.Marshal(Entry{
		NormalizedKey: model.Normalize(claimText),
		Verdict:       verdict,
		CacheVersion:  c.version,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	})
	if err != nil {
		c.fail("encode", key, err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.fail("set", key, err)
		return false
	}

	c.writes.Add(1)
	metrics.CacheOps.WithLabelValues("set", "ok").Inc()
	return true
}

// Delete removes the verdict for claimText.
func (c *GroundingCache) Delete(ctx context.Context, claimText string) bool {
	if c.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	key := model.ClaimKey(claimText)
	if err := c.store.Delete(ctx, key); err != nil {
		c.fail("delete", key, err)
		return false
	}
	return true
}

// Clear removes every cached verdict.
func (c *GroundingCache) Clear(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	if err := c.store.Clear(ctx); err != nil {
		c.fail("clear", "", err)
		return false
	}
	return true
}

// Stats returns a snapshot of the cache counters.
func (c *GroundingCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stale:   c.stale.Load(),
		Writes:  c.writes.Load(),
		Errors:  c.failures.Load(),
		Version: c.version,
	}
}

// Close closes the underlying store.
func (c *GroundingCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *GroundingCache) fail(op, key string, err error) {
	c.failures.Add(1)
	if op == "get" || op == "decode" {
		c.misses.Add(1)
	}
	metrics.CacheOps.WithLabelValues(op, "error").Inc()
	c.logger.Warn("grounding cache unavailable, continuing uncached", "op", op, "key", key, "error", err)
}

func (c *GroundingCache) recoverOp(op string, reset func()) {
	if r := recover(); r != nil {
		c.fail(op, "", fmt.Errorf("%w: panic: %v", ErrUnavailable, r))
		reset()
	}
}
