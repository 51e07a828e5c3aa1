// Package rerank reorders a claim's evidence by relevance, through an
// external cross-encoder service when one is configured and a deterministic
// keyword-overlap scorer otherwise.
package rerank

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/ppiankov/groundcheck/internal/metrics"
	"github.com/ppiankov/groundcheck/internal/model"
)

// DefaultTopK is the number of items kept after reranking.
const DefaultTopK = 15

// Method names the path that produced a ranking.
type Method string

const (
	MethodService  Method = "service"
	MethodFallback Method = "fallback"
	MethodNone     Method = "none" // Nothing to rank
)

// Scorer scores documents against a query. Results reference documents by
// index and may omit some.
type Scorer interface {
	Score(ctx context.Context, query string, documents []string, topN int) ([]Result, error)
}

// Result is one scored document.
type Result struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Reranker applies the service scorer with the keyword fallback.
type Reranker struct {
	scorer Scorer
	topK   int
	logger *slog.Logger
}

// New creates a reranker. scorer may be nil to always use the fallback.
func New(scorer Scorer, topK int, logger *slog.Logger) *Reranker {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, topK: topK, logger: logger.With("component", "reranker")}
}

// Rerank orders items for claim and keeps the top K. Every returned item has
// RerankScore and RerankPosition set regardless of the path taken.
func (r *Reranker) Rerank(ctx context.Context, claim string, items []model.EvidenceItem) ([]model.EvidenceItem, Method) {
	if len(items) == 0 {
		return nil, MethodNone
	}

	if r.scorer != nil {
		ranked, err := r.viaService(ctx, claim, items)
		if err == nil {
			metrics.RerankRuns.WithLabelValues(string(MethodService)).Inc()
			return ranked, MethodService
		}
		r.logger.Warn("Rerank service failed, using keyword fallback", "items", len(items), "error", err)
	}

	metrics.RerankRuns.WithLabelValues(string(MethodFallback)).Inc()
	return Fallback(claim, items, r.topK), MethodFallback
}

func (r *Reranker) viaService(ctx context.Context, claim string, items []model.EvidenceItem) ([]model.EvidenceItem, error) {
	docs := make([]string, len(items))
	for i, item := range items {
		docs[i] = item.Title + "\n" + item.Content
	}
	topN := r.topK
	if topN > len(docs) {
		topN = len(docs)
	}

	results, err := r.scorer.Score(ctx, claim, docs, topN)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errEmptyRanking
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	seen := make(map[int]bool, len(results))
	out := make([]model.EvidenceItem, 0, topN)
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(items) {
			return nil, errIndexRange(res.Index, len(items))
		}
		if seen[res.Index] {
			continue
		}
		seen[res.Index] = true

		item := items[res.Index]
		item.RerankScore = clamp01(res.Score)
		item.RerankPosition = len(out) + 1
		if item.OriginalPosition == 0 {
			item.OriginalPosition = res.Index + 1
		}
		out = append(out, item)
		if len(out) == topN {
			break
		}
	}
	return out, nil
}

// Fallback scores items by claim-term overlap, weighting title hits twice,
// blended 60/40 with the item's base relevance (0.5 when unset), then sorts
// descending and keeps topK.
func Fallback(claim string, items []model.EvidenceItem, topK int) []model.EvidenceItem {
	words := claimWords(claim)

	scored := make([]model.EvidenceItem, len(items))
	for i, item := range items {
		title := strings.ToLower(item.Title)
		content := strings.ToLower(item.Content)

		titleHits, contentHits := 0, 0
		for _, w := range words {
			if strings.Contains(title, w) {
				titleHits++
			}
			if strings.Contains(content, w) {
				contentHits++
			}
		}
		match := float64(titleHits*2+contentHits) / float64(len(words)+1)

		base := item.BaseRelevance
		if base == 0 {
			base = 0.5
		}

		item.RerankScore = 0.6*match + 0.4*base
		if item.OriginalPosition == 0 {
			item.OriginalPosition = i + 1
		}
		scored[i] = item
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].RerankScore > scored[j].RerankScore })

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	for i := range scored {
		scored[i].RerankPosition = i + 1
	}
	return scored
}

// claimWords returns the distinct claim terms longer than two characters.
func claimWords(claim string) []string {
	var words []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(model.Normalize(claim)) {
		if len(w) > 2 && !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
