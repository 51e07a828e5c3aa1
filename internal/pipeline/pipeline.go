// Package pipeline runs a grounding evaluation over a set of generated
// outputs: extract claims, dedupe, consult the cache, verify the misses and
// aggregate one metric.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/metrics"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/place"
	"github.com/ppiankov/groundcheck/internal/rerank"
	"github.com/ppiankov/groundcheck/internal/retrieve"
	"github.com/ppiankov/groundcheck/internal/score"
	"github.com/ppiankov/groundcheck/internal/source"
)

const (
	// DefaultConcurrency bounds the number of claims verified at once
	DefaultConcurrency = 8

	// DefaultClaimTimeout bounds one claim's retrieve-rerank-score branch
	DefaultClaimTimeout = 90 * time.Second
)

// ClaimExtractor returns the claims of each output, indexed like outputs.
type ClaimExtractor interface {
	Extract(ctx context.Context, outputs []string) ([][]model.Claim, error)
}

// EvidenceRetriever gathers evidence for one claim from the routed sources.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, claim model.Claim, kinds []model.SourceKind, run *cache.RunCache) retrieve.Result
}

// EvidenceReranker orders and trims evidence for one claim.
type EvidenceReranker interface {
	Rerank(ctx context.Context, claim string, items []model.EvidenceItem) ([]model.EvidenceItem, rerank.Method)
}

// Options tunes the orchestrator.
type Options struct {
	Concurrency  int
	ClaimTimeout time.Duration
	CacheTTL     time.Duration // Zero uses the cache's default
	Router       func(model.Domain) []model.SourceKind
	Logger       *slog.Logger
}

// Orchestrator evaluates runs. It is safe for concurrent use; all per-run
// state lives in the run.
type Orchestrator struct {
	extractor ClaimExtractor
	retriever EvidenceRetriever
	reranker  EvidenceReranker
	scorer    score.ClaimScorer
	cache     *cache.GroundingCache
	opts      Options
	logger    *slog.Logger
}

// New wires an orchestrator. grounding may be nil to run uncached.
func New(extractor ClaimExtractor, retriever EvidenceRetriever, reranker EvidenceReranker,
	scorer score.ClaimScorer, grounding *cache.GroundingCache, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = DefaultClaimTimeout
	}
	if opts.Router == nil {
		opts.Router = source.Route
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if grounding == nil {
		grounding = cache.NewGroundingCache(nil, cache.Options{Logger: opts.Logger})
	}

	return &Orchestrator{
		extractor: extractor,
		retriever: retriever,
		reranker:  reranker,
		scorer:    scorer,
		cache:     grounding,
		opts:      opts,
		logger:    opts.Logger.With("component", "orchestrator"),
	}
}

// uniqueClaim is one deduplicated claim and the outputs that reference it.
type uniqueClaim struct {
	key     string
	claim   model.Claim
	outputs []int
	verdict model.ClaimVerdict
	cached  bool
	failed  bool
}

// run holds the state of one evaluation.
type run struct {
	id       string
	outputs  []model.Output
	perOut   [][]model.Claim
	unique   []*uniqueClaim
	byKey    map[string]*uniqueClaim
	runCache *cache.RunCache
	methods  map[string]int
	started  time.Time
	logger   *slog.Logger
}

// Run evaluates outputs and returns the grounding metric. It never panics
// and never returns an error: a structural failure yields a zero score with
// the Error field set.
func (o *Orchestrator) Run(ctx context.Context, outputs []model.Output) (result model.MetricScore) {
	r := &run{
		id:       uuid.NewString(),
		outputs:  outputs,
		byKey:    make(map[string]*uniqueClaim),
		runCache: cache.NewRunCache(),
		methods:  make(map[string]int),
		started:  time.Now(),
	}
	r.logger = o.logger.With("run_id", r.id)
	defer r.runCache.Flush()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Grounding run panicked", "panic", p, "stack", string(debug.Stack()))
			result = model.MetricScore{
				Score:   0,
				Details: model.Details{RunID: r.id, Duration: time.Since(r.started)},
				Error:   fmt.Sprintf("grounding run failed: %v", p),
			}
		}
	}()

	// 1. EXTRACT
	if err := o.extract(ctx, r); err != nil {
		return failedRun(r, fmt.Errorf("extract claims: %w", err))
	}

	// 2. DEDUP
	o.dedup(r)
	r.logger.Debug("Claims deduplicated", "outputs", len(outputs), "unique", len(r.unique))

	// 3. CACHE_LOOKUP
	misses := o.lookup(ctx, r)

	// 4. RETRIEVE_SCORE
	o.verifyAll(ctx, r, misses)

	// 5. MERGE + 6. AGGREGATE
	result = o.aggregate(r)
	metrics.RunDuration.Observe(result.Details.Duration.Seconds())
	metrics.RunClaims.Observe(float64(result.Details.ClaimsProcessed))

	r.logger.Info("Grounding run complete",
		"score", fmt.Sprintf("%.1f", result.Score),
		"claims", result.Details.ClaimsProcessed,
		"cache_hits", result.Details.CacheHits,
		"new_verifications", result.Details.NewVerifications,
		"failures", result.Details.Failures,
		"duration", result.Details.Duration)
	return result
}

func (o *Orchestrator) extract(ctx context.Context, r *run) error {
	texts := make([]string, len(r.outputs))
	for i, out := range r.outputs {
		texts[i] = out.Text
	}

	perOut, err := o.extractor.Extract(ctx, texts)
	if err != nil {
		return err
	}
	if len(perOut) != len(texts) {
		return fmt.Errorf("extractor returned %d claim lists for %d outputs", len(perOut), len(texts))
	}
	r.perOut = perOut
	return nil
}

// dedup collapses claims that normalize to the same text across all outputs.
func (o *Orchestrator) dedup(r *run) {
	for i, claims := range r.perOut {
		for _, c := range claims {
			key := c.Key()
			if key == "" {
				continue
			}
			u, ok := r.byKey[key]
			if !ok {
				u = &uniqueClaim{key: key, claim: c}
				r.byKey[key] = u
				r.unique = append(r.unique, u)
			} else {
				u.claim.Keywords = mergeKeywords(u.claim.Keywords, c.Keywords)
			}
			if len(u.outputs) == 0 || u.outputs[len(u.outputs)-1] != i {
				u.outputs = append(u.outputs, i)
			}
		}
	}
}

// lookup splits unique claims into cache hits and the misses to verify.
func (o *Orchestrator) lookup(ctx context.Context, r *run) []*uniqueClaim {
	var misses []*uniqueClaim
	for _, u := range r.unique {
		if v, ok := o.cache.Get(ctx, u.claim.Text); ok {
			u.verdict = *v
			u.cached = true
			continue
		}
		misses = append(misses, u)
	}

	// Claims sharing a route are scheduled together so their searches
	// overlap in the source gateway.
	sort.SliceStable(misses, func(i, j int) bool {
		return routeKey(o.opts.Router(misses[i].claim.Domain)) < routeKey(o.opts.Router(misses[j].claim.Domain))
	})
	return misses
}

// verifyAll fans the misses out. A branch failure is contained to its claim.
func (o *Orchestrator) verifyAll(ctx context.Context, r *run, misses []*uniqueClaim) {
	if len(misses) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for _, u := range misses {
		u := u
		g.Go(func() error {
			u.verdict, u.failed = o.verifyBounded(ctx, r, u.claim)
			if !u.failed {
				o.cache.Set(ctx, u.claim.Text, u.verdict, o.opts.CacheTTL)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, u := range misses {
		if u.verdict.RerankMethod != "" {
			r.methods[u.verdict.RerankMethod]++
		}
	}
}

// verifyBounded runs one claim's branch under the claim timeout. A branch
// that does not return in time is abandoned with the neutral score.
func (o *Orchestrator) verifyBounded(ctx context.Context, r *run, claim model.Claim) (model.ClaimVerdict, bool) {
	bctx, cancel := context.WithTimeout(ctx, o.opts.ClaimTimeout)
	defer cancel()

	type outcome struct {
		verdict model.ClaimVerdict
		failed  bool
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Claim verification panicked", "claim", claim.Text, "panic", p)
				done <- outcome{verdict: neutral(claim, fmt.Sprintf("verification failed: %v", p), nil), failed: true}
			}
		}()
		v, failed := o.verify(bctx, r, claim)
		done <- outcome{verdict: v, failed: failed}
	}()

	select {
	case res := <-done:
		return res.verdict, res.failed
	case <-bctx.Done():
		r.logger.Warn("Claim verification timed out, using neutral score",
			"claim", claim.Text, "timeout", o.opts.ClaimTimeout)
		metrics.ScorerFailures.WithLabelValues(o.scorer.Name(), "timeout").Inc()
		return neutral(claim, "Verification did not finish in time; score undetermined", []model.Signal{{
			Type:        model.SignalTimeout,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("Claim verification exceeded %s", o.opts.ClaimTimeout),
			Data:        map[string]interface{}{"timeout_seconds": o.opts.ClaimTimeout.Seconds()},
		}}), true
	}
}

// verify is Route -> Retrieve -> Rerank -> Place -> Score for one claim.
func (o *Orchestrator) verify(ctx context.Context, r *run, claim model.Claim) (model.ClaimVerdict, bool) {
	kinds := o.opts.Router(claim.Domain)

	found := o.retriever.Retrieve(ctx, claim, kinds, r.runCache)
	signals := sourceSignals(found)

	ranked, method := o.reranker.Rerank(ctx, claim.Text, found.Items)
	if method == rerank.MethodFallback {
		signals = append(signals, model.Signal{
			Type:        model.SignalRerankFallback,
			Severity:    model.SeverityInfo,
			Description: "Evidence ordered by keyword overlap",
			Data: map[string]interface{}{
				"items":   len(ranked),
				"formula": "0.6 * keyword_match + 0.4 * base_relevance",
			},
		})
	}

	placed := place.Place(ranked)

	verdict, err := o.scorer.Score(ctx, claim, placed)
	if err != nil {
		r.logger.Warn("Claim scoring failed, using default score",
			"claim", claim.Text, "score", verdict.Score, "error", err)
	}

	verdict.Claim = claim
	verdict.Sources = kinds
	verdict.RerankMethod = string(method)
	verdict.Signals = append(signals, verdict.Signals...)
	if verdict.VerifiedAt.IsZero() {
		verdict.VerifiedAt = time.Now().UTC()
	}
	metrics.ClaimScores.WithLabelValues(o.scorer.Name()).Observe(verdict.Score)

	// Zero evidence because searches failed is not a finding worth caching
	if retrievalFailed(found) {
		r.logger.Warn("Evidence retrieval failed, verdict not cached",
			"claim", claim.Text, "failures", len(found.Failures), "searches", found.Searches)
		return verdict, true
	}
	return verdict, err != nil
}

// retrievalFailed reports whether a claim ended with no evidence while at
// least one of its searches failed.
func retrievalFailed(res retrieve.Result) bool {
	return len(res.Failures) > 0 && len(res.Items) == 0
}

// aggregate merges verdicts back to outputs and computes the metric. A claim
// referenced by K outputs counts K times; an output without claims counts
// as fully grounded.
func (o *Orchestrator) aggregate(r *run) model.MetricScore {
	d := model.Details{
		RunID:           r.id,
		ClaimsProcessed: len(r.unique),
		ClaimScores:     make([]model.ClaimScore, 0, len(r.unique)),
		RerankMethods:   r.methods,
	}

	for _, u := range r.unique {
		if u.cached {
			d.CacheHits++
		} else {
			d.CacheMisses++
			d.NewVerifications++
		}
		if u.failed {
			d.Failures++
		}
		switch {
		case u.verdict.Score >= 100:
			d.ScoreDistribution.Perfect++
		case u.verdict.Score <= 0:
			d.ScoreDistribution.Zero++
		default:
			d.ScoreDistribution.Partial++
		}
		d.ClaimScores = append(d.ClaimScores, model.ClaimScore{
			Claim:     u.claim.Text,
			Domain:    u.claim.Domain,
			Score:     u.verdict.Score,
			Cached:    u.cached,
			Verified:  u.verdict.Verified,
			Sources:   u.verdict.Sources,
			Reasoning: u.verdict.Reasoning,
		})
	}

	var total float64
	var count int
	inputs := make(map[string]*model.InputScore)
	var inputOrder []string

	for i, claims := range r.perOut {
		out := model.OutputScore{Index: i, Input: r.outputs[i].Input, Claims: []string{}}
		seen := make(map[string]bool)
		var sum float64
		for _, c := range claims {
			u, ok := r.byKey[c.Key()]
			if !ok || seen[u.key] {
				continue
			}
			seen[u.key] = true
			out.Claims = append(out.Claims, u.claim.Text)
			sum += u.verdict.Score
			total += u.verdict.Score
			count++
		}
		if len(out.Claims) == 0 {
			out.Score = 100
			total += 100
			count++
		} else {
			out.Score = sum / float64(len(out.Claims))
		}
		d.PerOutput = append(d.PerOutput, out)

		if out.Input != "" {
			in, ok := inputs[out.Input]
			if !ok {
				in = &model.InputScore{Input: out.Input}
				inputs[out.Input] = in
				inputOrder = append(inputOrder, out.Input)
			}
			in.Outputs++
			in.Score += out.Score
		}
	}

	for _, name := range inputOrder {
		in := inputs[name]
		in.Score /= float64(in.Outputs)
		d.PerInput = append(d.PerInput, *in)
	}

	final := 100.0
	if count > 0 {
		final = total / float64(count)
	}
	d.Duration = time.Since(r.started)

	return model.MetricScore{Score: final, Details: d}
}

func failedRun(r *run, err error) model.MetricScore {
	r.logger.Error("Grounding run failed", "error", err)
	return model.MetricScore{
		Score:   0,
		Details: model.Details{RunID: r.id, Duration: time.Since(r.started)},
		Error:   err.Error(),
	}
}

func neutral(claim model.Claim, reason string, signals []model.Signal) model.ClaimVerdict {
	return model.ClaimVerdict{
		Claim:      claim,
		Score:      model.NeutralScore,
		Reasoning:  reason,
		Verified:   false,
		Signals:    signals,
		VerifiedAt: time.Now().UTC(),
	}
}

// sourceSignals reports failed routed sources on the verdict.
func sourceSignals(res retrieve.Result) []model.Signal {
	if len(res.Failures) == 0 {
		return nil
	}
	bySource := make(map[model.SourceKind][]string)
	config := make(map[model.SourceKind]bool)
	for _, f := range res.Failures {
		bySource[f.Source] = append(bySource[f.Source], f.Error)
		config[f.Source] = config[f.Source] || f.Configuration
	}

	var signals []model.Signal
	for _, kind := range res.Sources {
		errs, ok := bySource[kind]
		if !ok {
			continue
		}
		severity := model.SeverityWarning
		if config[kind] {
			severity = model.SeverityCritical
		}
		signals = append(signals, model.Signal{
			Type:        model.SignalSourceError,
			Severity:    severity,
			Description: fmt.Sprintf("%s: %d failed search(es)", kind, len(errs)),
			Data: map[string]interface{}{
				"source":        string(kind),
				"errors":        errs,
				"configuration": config[kind],
			},
		})
	}
	return signals
}

func routeKey(kinds []model.SourceKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func mergeKeywords(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, kw := range b {
		dup := false
		for _, have := range out {
			if strings.EqualFold(have, kw) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, kw)
		}
	}
	return out
}
