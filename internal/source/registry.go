package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/groundcheck/internal/metrics"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/validate"
	"github.com/ppiankov/groundcheck/internal/worker"
)

const (
	defaultMaxAttempts = 2
	retryBackoff       = 500 * time.Millisecond
)

// Registry is the gateway: it maps source kinds to adapters and applies
// rate limiting, retry and authority weighting uniformly.
type Registry struct {
	mu          sync.RWMutex
	sources     map[model.SourceKind]Source
	limiter     *worker.Limiter
	authority   *validate.AuthorityClassifier
	maxAttempts int
	logger      *slog.Logger

	// retrySleep waits between attempts; replaced in tests
	retrySleep func(ctx context.Context, d time.Duration) error
}

// NewRegistry creates an empty registry. limiter and authority may be nil.
func NewRegistry(limiter *worker.Limiter, authority *validate.AuthorityClassifier, logger *slog.Logger) *Registry {
	if limiter == nil {
		limiter = worker.NewLimiter(0, 1)
	}
	if authority == nil {
		authority = validate.NewAuthorityClassifier(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sources:     make(map[model.SourceKind]Source),
		limiter:     limiter,
		authority:   authority,
		maxAttempts: defaultMaxAttempts,
		logger:      logger.With("component", "source_gateway"),
		retrySleep:  sleepContext,
	}
}

// Register adds or replaces the adapter for its kind.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sources[src.Kind()]; ok && old != src {
		r.logger.Info("Replacing source adapter", "source", string(src.Kind()))
	}
	r.sources[src.Kind()] = src
}

// Has reports whether an adapter is registered for kind.
func (r *Registry) Has(kind model.SourceKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[kind]
	return ok
}

// Kinds returns the registered source kinds in sorted order.
func (r *Registry) Kinds() []model.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]model.SourceKind, 0, len(r.sources))
	for k := range r.sources {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Search runs query against the adapter for kind. Transient failures are
// retried; configuration errors are returned immediately.
func (r *Registry) Search(ctx context.Context, kind model.SourceKind, query string, limit int) ([]model.EvidenceItem, error) {
	r.mu.RLock()
	src, ok := r.sources[kind]
	r.mu.RUnlock()
	if !ok {
		metrics.SourceSearches.WithLabelValues(string(kind), "config_error").Inc()
		return nil, &ConfigurationError{Source: kind, Reason: "no adapter registered"}
	}

	start := time.Now()
	defer func() {
		metrics.SourceLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx, string(kind)); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", kind, err)
		}

		items, err := src.Search(ctx, query, limit)
		if err == nil {
			r.authority.Annotate(items)
			outcome := "ok"
			if len(items) == 0 {
				outcome = "empty"
			}
			metrics.SourceSearches.WithLabelValues(string(kind), outcome).Inc()
			r.logger.Debug("Source search completed",
				"source", string(kind), "query", query, "results", len(items), "attempt", attempt)
			return items, nil
		}
		lastErr = err

		if !errors.Is(err, ErrTransient) || attempt == r.maxAttempts {
			break
		}

		r.logger.Warn("Transient source failure, retrying",
			"source", string(kind), "attempt", attempt, "error", err)
		if err := r.retrySleep(ctx, retryBackoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}

	metrics.SourceSearches.WithLabelValues(string(kind), outcomeOf(lastErr)).Inc()
	r.logger.Warn("Source search failed", "source", string(kind), "query", query, "error", lastErr)
	return nil, lastErr
}

// Close releases adapters that hold connections, such as MCP sessions.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, src := range r.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func outcomeOf(err error) string {
	switch {
	case IsConfigurationError(err):
		return "config_error"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
