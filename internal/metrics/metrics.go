// Package metrics exposes Prometheus instruments for the grounding engine.
// Instruments register on the default registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOps counts grounding cache operations by op and result
	// (hit, miss, stale, error, ok).
	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcheck_cache_operations_total",
		Help: "Grounding cache operations by operation and result",
	}, []string{"op", "result"})

	// SourceSearches counts evidence searches by source and outcome
	// (ok, empty, config_error, transient, error).
	SourceSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcheck_source_searches_total",
		Help: "Evidence source searches by source and outcome",
	}, []string{"source", "outcome"})

	// SourceLatency tracks evidence search latency per source
	SourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groundcheck_source_search_duration_seconds",
		Help:    "Evidence source search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"source"})

	// RerankRuns counts reranks by path (service, fallback)
	RerankRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcheck_rerank_total",
		Help: "Evidence reranks by path",
	}, []string{"method"})

	// ClaimScores tracks the distribution of per-claim scores by strategy
	ClaimScores = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groundcheck_claim_score",
		Help:    "Per-claim grounding scores",
		Buckets: []float64{0, 20, 40, 50, 60, 80, 99, 100},
	}, []string{"strategy"})

	// ScorerFailures counts scoring fallbacks by strategy and reason
	ScorerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundcheck_scorer_failures_total",
		Help: "Claim scorer failures by strategy and reason",
	}, []string{"strategy", "reason"})

	// RunDuration tracks end-to-end evaluation latency
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "groundcheck_run_duration_seconds",
		Help:    "Grounding evaluation run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
	})

	// RunClaims tracks unique claims per run
	RunClaims = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "groundcheck_run_claims",
		Help:    "Unique claims processed per run",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
)
