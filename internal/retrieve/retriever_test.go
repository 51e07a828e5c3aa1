package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/source"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string][]model.EvidenceItem
	errs    map[string]error
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		calls:   make(map[string]int),
		results: make(map[string][]model.EvidenceItem),
		errs:    make(map[string]error),
	}
}

func key(kind model.SourceKind, q string) string { return string(kind) + "|" + q }

func (f *fakeSearcher) Search(_ context.Context, kind model.SourceKind, query string, limit int) ([]model.EvidenceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(kind, query)
	f.calls[k]++
	if err := f.errs[k]; err != nil {
		return nil, err
	}
	items := f.results[k]
	if len(items) > limit {
		items = items[:limit]
	}
	return append([]model.EvidenceItem(nil), items...), nil
}

func (f *fakeSearcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func TestRetrieve_FansOutKeywordsAcrossSources(t *testing.T) {
	fs := newFakeSearcher()
	fs.results[key(model.SourceGeneralSearch, "OpenAI")] = []model.EvidenceItem{
		{SourceID: model.SourceGeneralSearch, Title: "OpenAI", URL: "https://openai.com"},
	}
	fs.results[key(model.SourceGeneralSearch, "GPT-4")] = []model.EvidenceItem{
		{SourceID: model.SourceGeneralSearch, Title: "GPT-4", URL: "https://openai.com/gpt-4"},
		{SourceID: model.SourceGeneralSearch, Title: "OpenAI dup", URL: "https://openai.com/"},
	}
	fs.results[key(model.SourceBroadSearch, "GPT-4")] = []model.EvidenceItem{
		{SourceID: model.SourceBroadSearch, Title: "Broad", URL: "https://news.example/gpt-4"},
	}

	r := NewRetriever(fs, Options{})
	claim := model.Claim{Text: "OpenAI announced GPT-4.", Keywords: []string{"OpenAI", "GPT-4", "openai"}}
	res := r.Retrieve(context.Background(), claim, []model.SourceKind{model.SourceGeneralSearch, model.SourceBroadSearch}, nil)

	assert.Equal(t, 4, res.Searches, "2 unique keywords x 2 sources")
	require.Len(t, res.Items, 3, "duplicate URL dropped")

	assert.Equal(t, "OpenAI", res.Items[0].SearchKeyword)
	assert.Equal(t, "GPT-4", res.Items[1].SearchKeyword)
	assert.Equal(t, model.SourceBroadSearch, res.Items[2].SourceID)
	for i, item := range res.Items {
		assert.Equal(t, i+1, item.OriginalPosition)
	}
	assert.Empty(t, res.Failures)
}

func TestRetrieve_FailedSearchIsIsolated(t *testing.T) {
	fs := newFakeSearcher()
	fs.errs[key(model.SourceBroadSearch, "Moon")] = &source.ConfigurationError{Source: model.SourceBroadSearch, Reason: "no key"}
	fs.errs[key(model.SourceGeneralSearch, "1969")] = fmt.Errorf("boom: %w", source.ErrTransient)
	fs.results[key(model.SourceGeneralSearch, "Moon")] = []model.EvidenceItem{{Title: "Moon", Content: "Apollo 11"}}

	r := NewRetriever(fs, Options{})
	claim := model.Claim{Text: "Apollo 11 landed on the Moon in 1969.", Keywords: []string{"Moon", "1969"}}
	res := r.Retrieve(context.Background(), claim, []model.SourceKind{model.SourceGeneralSearch, model.SourceBroadSearch}, nil)

	require.Len(t, res.Items, 1)
	require.Len(t, res.Failures, 2)
	assert.False(t, res.ConfigurationFailures())

	var sawConfig bool
	for _, f := range res.Failures {
		if f.Configuration {
			sawConfig = true
			assert.Equal(t, model.SourceBroadSearch, f.Source)
		}
	}
	assert.True(t, sawConfig)
}

// gatedSearcher blocks every search until release is closed or the
// search's own context ends.
type gatedSearcher struct {
	started  chan struct{}
	once     sync.Once
	release  chan struct{}
	calls    int32
	canceled int32
}

func (g *gatedSearcher) Search(ctx context.Context, kind model.SourceKind, query string, limit int) ([]model.EvidenceItem, error) {
	atomic.AddInt32(&g.calls, 1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return []model.EvidenceItem{{SourceID: kind, Title: query, URL: "https://example.org/" + query}}, nil
	case <-ctx.Done():
		atomic.AddInt32(&g.canceled, 1)
		return nil, ctx.Err()
	}
}

func TestRetrieve_SharedSearchOutlivesFirstCaller(t *testing.T) {
	gs := &gatedSearcher{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRetriever(gs, Options{SearchTimeout: 5 * time.Second})
	kinds := []model.SourceKind{model.SourceGeneralSearch}

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan Result, 1)
	go func() {
		claim := model.Claim{Text: "Apollo 11 landed on the Moon.", Keywords: []string{"Apollo"}}
		resA <- r.Retrieve(ctxA, claim, kinds, nil)
	}()
	<-gs.started

	resB := make(chan Result, 1)
	go func() {
		claim := model.Claim{Text: "Apollo 13 returned safely to Earth.", Keywords: []string{"Apollo"}}
		resB <- r.Retrieve(context.Background(), claim, kinds, nil)
	}()

	// A gives up while B is still waiting on the same search
	cancelA()
	a := <-resA
	require.Len(t, a.Failures, 1)
	assert.Empty(t, a.Items)

	time.Sleep(20 * time.Millisecond)
	close(gs.release)

	b := <-resB
	assert.Empty(t, b.Failures)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "Apollo", b.Items[0].Title)
	assert.Equal(t, int32(0), atomic.LoadInt32(&gs.canceled), "shared search must not inherit a caller's cancellation")
	assert.Equal(t, int32(1), atomic.LoadInt32(&gs.calls))
}

func TestRetrieve_SharedSearchTimeout(t *testing.T) {
	gs := &gatedSearcher{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRetriever(gs, Options{SearchTimeout: 30 * time.Millisecond})

	claim := model.Claim{Text: "Apollo 11 landed on the Moon.", Keywords: []string{"Apollo"}}
	res := r.Retrieve(context.Background(), claim, []model.SourceKind{model.SourceGeneralSearch}, nil)

	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&gs.canceled))
}

func TestRetrieve_UsesClaimTextWithoutKeywords(t *testing.T) {
	fs := newFakeSearcher()
	r := NewRetriever(fs, Options{})
	claim := model.Claim{Text: "Water boils at 100 degrees."}

	res := r.Retrieve(context.Background(), claim, []model.SourceKind{model.SourceGeneralSearch}, nil)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, fs.calls[key(model.SourceGeneralSearch, "Water boils at 100 degrees.")])
}

func TestRetrieve_RunCacheSkipsRepeatSearches(t *testing.T) {
	fs := newFakeSearcher()
	fs.results[key(model.SourceAcademic, "Transformer")] = []model.EvidenceItem{{Title: "Attention", URL: "https://arxiv.org/abs/1706.03762"}}
	fs.errs[key(model.SourceGeneralSearch, "Transformer")] = errors.New("down")

	run := cache.NewRunCache()
	r := NewRetriever(fs, Options{})
	claim := model.Claim{Text: "The Transformer was introduced in 2017.", Keywords: []string{"Transformer"}}
	kinds := []model.SourceKind{model.SourceGeneralSearch, model.SourceAcademic}

	first := r.Retrieve(context.Background(), claim, kinds, run)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 2, fs.total())

	// Normalized variant of the same claim hits the run cache for academic;
	// the failed general search is retried
	variant := model.Claim{Text: "the transformer was introduced in 2017", Keywords: []string{"Transformer"}}
	second := r.Retrieve(context.Background(), variant, kinds, run)
	require.Len(t, second.Items, 1)
	assert.Equal(t, 3, fs.total())
	assert.Equal(t, 1, second.Searches)
}

func TestRetrieve_Enrichment(t *testing.T) {
	fs := newFakeSearcher()
	fs.results[key(model.SourceGeneralSearch, "Apollo")] = []model.EvidenceItem{
		{Title: "Low", URL: "https://low.example", Content: "short", BaseRelevance: 0.2},
		{Title: "High", URL: "https://high.example", Content: "short", BaseRelevance: 0.9},
	}
	fs.results[key(model.SourcePageFetch, "https://high.example")] = []model.EvidenceItem{
		{Content: "The full article text about Apollo 11 landing on the Moon."},
	}

	r := NewRetriever(fs, Options{EnrichTopN: 1})
	res := r.Retrieve(context.Background(), model.Claim{Text: "Apollo landed.", Keywords: []string{"Apollo"}},
		[]model.SourceKind{model.SourceGeneralSearch}, nil)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "short", res.Items[0].Content)
	assert.Equal(t, "The full article text about Apollo 11 landing on the Moon.", res.Items[1].Content)
	assert.Equal(t, 0, fs.calls[key(model.SourcePageFetch, "https://low.example")])
}

func TestDedupe(t *testing.T) {
	items := []model.EvidenceItem{
		{Title: "A", URL: "https://x.example/page"},
		{Title: "B", URL: "HTTPS://X.EXAMPLE/page/"},
		{Title: "C", Content: "same"},
		{Title: "c", Content: "Same."},
		{Title: "D", Content: "other"},
	}
	got := dedupe(items)
	titles := make([]string, len(got))
	for i, it := range got {
		titles[i] = it.Title
	}
	assert.Equal(t, []string{"A", "C", "D"}, titles)
}
