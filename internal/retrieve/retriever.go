// Package retrieve gathers evidence for a claim by fanning out one search
// per keyword and routed source.
package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/source"
)

const (
	// DefaultLimitPerSearch is the result limit for each keyword search.
	DefaultLimitPerSearch = 5

	// DefaultSearchTimeout bounds one shared search, retries included.
	DefaultSearchTimeout = 60 * time.Second
)

// Searcher runs one search against a source kind. *source.Registry
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, kind model.SourceKind, query string, limit int) ([]model.EvidenceItem, error)
}

// Options tunes the retriever.
type Options struct {
	LimitPerSearch int
	// EnrichTopN replaces the snippet of the N most relevant items with the
	// fetched page text. Zero disables enrichment.
	EnrichTopN int
	// SearchTimeout bounds a search shared between claims. It runs apart
	// from any one caller's context.
	SearchTimeout time.Duration
	Logger        *slog.Logger
}

// Retriever fans out searches for claims.
type Retriever struct {
	searcher      Searcher
	limit         int
	enrichTopN    int
	searchTimeout time.Duration
	flight        singleflight.Group
	logger        *slog.Logger
}

// Failure records one search that returned an error.
type Failure struct {
	Source        model.SourceKind `json:"source"`
	Keyword       string           `json:"keyword"`
	Error         string           `json:"error"`
	Configuration bool             `json:"configuration"`
}

// Result is the merged evidence for one claim.
type Result struct {
	Items    []model.EvidenceItem
	Sources  []model.SourceKind
	Failures []Failure
	Searches int
}

// NewRetriever creates a retriever over searcher.
func NewRetriever(searcher Searcher, opts Options) *Retriever {
	if opts.LimitPerSearch <= 0 {
		opts.LimitPerSearch = DefaultLimitPerSearch
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultSearchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		searcher:      searcher,
		limit:         opts.LimitPerSearch,
		enrichTopN:    opts.EnrichTopN,
		searchTimeout: opts.SearchTimeout,
		logger:        opts.Logger.With("component", "retriever"),
	}
}

type searchTask struct {
	kind    model.SourceKind
	keyword string
	items   []model.EvidenceItem
	err     error
}

// Retrieve searches every keyword against every routed source in parallel
// and merges the results. A failed search contributes nothing and never
// fails the claim. run may be nil.
func (r *Retriever) Retrieve(ctx context.Context, claim model.Claim, kinds []model.SourceKind, run *cache.RunCache) Result {
	keywords := queriesFor(claim)
	result := Result{Sources: kinds}

	perSource := make(map[model.SourceKind][]model.EvidenceItem, len(kinds))
	var tasks []*searchTask
	for _, kind := range kinds {
		if run != nil {
			if items, ok := run.Evidence(claim.Text, kind); ok {
				perSource[kind] = items
				continue
			}
		}
		for _, kw := range keywords {
			tasks = append(tasks, &searchTask{kind: kind, keyword: kw})
		}
	}

	// Siblings keep running when one search fails
	var g errgroup.Group
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			task.items, task.err = r.search(ctx, task.kind, task.keyword)
			return nil
		})
	}
	_ = g.Wait()
	result.Searches = len(tasks)

	fresh := make(map[model.SourceKind]bool)
	for _, task := range tasks {
		fresh[task.kind] = true
		if task.err != nil {
			result.Failures = append(result.Failures, Failure{
				Source:        task.kind,
				Keyword:       task.keyword,
				Error:         task.err.Error(),
				Configuration: source.IsConfigurationError(task.err),
			})
			continue
		}
		for _, item := range task.items {
			item.SearchKeyword = task.keyword
			perSource[task.kind] = append(perSource[task.kind], item)
		}
	}

	if run != nil {
		for kind := range fresh {
			if !r.allFailed(result.Failures, kind, len(keywords)) {
				run.PutEvidence(claim.Text, kind, perSource[kind])
			}
		}
	}

	var merged []model.EvidenceItem
	for _, kind := range kinds {
		merged = append(merged, perSource[kind]...)
	}
	merged = dedupe(merged)
	for i := range merged {
		merged[i].OriginalPosition = i + 1
	}

	if r.enrichTopN > 0 {
		r.enrich(ctx, merged)
	}

	result.Items = merged
	r.logger.Debug("Retrieved evidence",
		"claim", claim.Text, "sources", len(kinds), "searches", result.Searches,
		"items", len(merged), "failures", len(result.Failures))
	return result
}

// search collapses identical in-flight (source, keyword) searches across
// claims into one call. The shared call is detached from the caller that
// started it, so one claim's deadline never fails another claim's search;
// each caller still stops waiting when its own ctx ends.
func (r *Retriever) search(ctx context.Context, kind model.SourceKind, keyword string) ([]model.EvidenceItem, error) {
	key := string(kind) + "\x00" + strings.ToLower(keyword)
	ch := r.flight.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.searchTimeout)
		defer cancel()
		return r.searcher.Search(sctx, kind, keyword, r.limit)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		items := res.Val.([]model.EvidenceItem)
		if res.Shared {
			items = append([]model.EvidenceItem(nil), items...)
		}
		return items, nil
	}
}

// enrich swaps snippets for page text on the most relevant items that
// carry a URL.
func (r *Retriever) enrich(ctx context.Context, items []model.EvidenceItem) {
	order := make([]int, 0, len(items))
	for i := range items {
		if items[i].URL != "" {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].BaseRelevance > items[order[b]].BaseRelevance
	})
	if len(order) > r.enrichTopN {
		order = order[:r.enrichTopN]
	}

	pages := make([][]model.EvidenceItem, len(order))
	var g errgroup.Group
	for n, idx := range order {
		n, url := n, items[idx].URL
		g.Go(func() error {
			page, err := r.searcher.Search(ctx, model.SourcePageFetch, url, 1)
			if err != nil {
				r.logger.Debug("Page enrichment failed", "url", url, "error", err)
				return nil
			}
			pages[n] = page
			return nil
		})
	}
	_ = g.Wait()

	for n, idx := range order {
		if len(pages[n]) == 0 || !pages[n][0].HasText() {
			continue
		}
		if len(pages[n][0].Content) > len(items[idx].Content) {
			items[idx].Content = pages[n][0].Content
		}
	}
}

func (r *Retriever) allFailed(failures []Failure, kind model.SourceKind, searches int) bool {
	n := 0
	for _, f := range failures {
		if f.Source == kind {
			n++
		}
	}
	return searches > 0 && n == searches
}

// queriesFor returns the claim's keywords, or the claim text when it has
// none.
func queriesFor(claim model.Claim) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range claim.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[strings.ToLower(kw)] {
			continue
		}
		seen[strings.ToLower(kw)] = true
		out = append(out, kw)
	}
	if len(out) == 0 && strings.TrimSpace(claim.Text) != "" {
		out = append(out, strings.TrimSpace(claim.Text))
	}
	return out
}

// dedupe drops repeated items, keyed by URL or by title and content when
// there is no URL. The first occurrence wins.
func dedupe(items []model.EvidenceItem) []model.EvidenceItem {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, item := range items {
		key := strings.TrimRight(strings.ToLower(item.URL), "/")
		if key == "" {
			key = model.Normalize(item.Title) + "\x00" + model.Normalize(item.Content)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// ConfigurationFailures reports whether every failure was a configuration
// error.
func (res Result) ConfigurationFailures() bool {
	if len(res.Failures) == 0 {
		return false
	}
	for _, f := range res.Failures {
		if !f.Configuration {
			return false
		}
	}
	return true
}

var _ Searcher = (*source.Registry)(nil)
