package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/groundcheck/internal/model"
)

type scorerFunc func(ctx context.Context, query string, docs []string, topN int) ([]Result, error)

func (f scorerFunc) Score(ctx context.Context, query string, docs []string, topN int) ([]Result, error) {
	return f(ctx, query, docs, topN)
}

func sampleItems() []model.EvidenceItem {
	return []model.EvidenceItem{
		{Title: "Unrelated cooking blog", Content: "How to bake bread", BaseRelevance: 0.5},
		{Title: "GPT-4 announcement", Content: "OpenAI announced GPT-4 on March 14, 2023", BaseRelevance: 0.9},
		{Title: "AI news", Content: "OpenAI released a new model", BaseRelevance: 0.9},
	}
}

func TestFallback_OrdersByOverlap(t *testing.T) {
	claim := "OpenAI announced GPT-4 on March 14, 2023."
	got := Fallback(claim, sampleItems(), 10)

	require.Len(t, got, 3)
	assert.Equal(t, "GPT-4 announcement", got[0].Title)
	assert.Equal(t, "AI news", got[1].Title)
	assert.Equal(t, "Unrelated cooking blog", got[2].Title)

	for i, item := range got {
		assert.Equal(t, i+1, item.RerankPosition)
	}
	assert.Equal(t, 2, got[0].OriginalPosition)
	assert.GreaterOrEqual(t, got[0].RerankScore, got[1].RerankScore)
}

func TestFallback_Formula(t *testing.T) {
	// words: "alpha", "beta" -> denominator 3
	items := []model.EvidenceItem{{Title: "alpha", Content: "alpha beta"}}
	got := Fallback("alpha beta", items, 5)

	// match = (1*2 + 2) / 3, base defaults to 0.5
	want := 0.6*(4.0/3.0) + 0.4*0.5
	assert.InDelta(t, want, got[0].RerankScore, 1e-9)
}

func TestFallback_TopK(t *testing.T) {
	items := make([]model.EvidenceItem, 20)
	for i := range items {
		items[i] = model.EvidenceItem{Title: "item"}
	}
	got := Fallback("item", items, 15)
	assert.Len(t, got, 15)
	assert.Equal(t, 15, got[14].RerankPosition)
}

func TestRerank_Service(t *testing.T) {
	scorer := scorerFunc(func(_ context.Context, query string, docs []string, topN int) ([]Result, error) {
		assert.Equal(t, 3, topN)
		assert.Equal(t, "GPT-4 announcement\nOpenAI announced GPT-4 on March 14, 2023", docs[1])
		return []Result{{Index: 2, Score: 0.4}, {Index: 1, Score: 0.97}, {Index: 0, Score: 0.01}}, nil
	})

	r := New(scorer, 15, nil)
	got, method := r.Rerank(context.Background(), "claim", sampleItems())

	assert.Equal(t, MethodService, method)
	require.Len(t, got, 3)
	assert.Equal(t, "GPT-4 announcement", got[0].Title)
	assert.Equal(t, 0.97, got[0].RerankScore)
	assert.Equal(t, 1, got[0].RerankPosition)
	assert.Equal(t, 2, got[0].OriginalPosition)
	assert.Equal(t, "AI news", got[1].Title)
}

func TestRerank_FallsBackOnServiceFailure(t *testing.T) {
	cases := map[string]Scorer{
		"error": scorerFunc(func(context.Context, string, []string, int) ([]Result, error) {
			return nil, errors.New("unavailable")
		}),
		"empty": scorerFunc(func(context.Context, string, []string, int) ([]Result, error) {
			return nil, nil
		}),
		"bad index": scorerFunc(func(context.Context, string, []string, int) ([]Result, error) {
			return []Result{{Index: 7, Score: 1}}, nil
		}),
		"unconfigured": NewServiceScorer("", "", "", 0),
	}

	for name, scorer := range cases {
		t.Run(name, func(t *testing.T) {
			got, method := New(scorer, 15, nil).Rerank(context.Background(), "OpenAI announced GPT-4", sampleItems())
			assert.Equal(t, MethodFallback, method)
			require.Len(t, got, 3)
			assert.NotZero(t, got[0].RerankPosition)
		})
	}
}

func TestRerank_NoScorerAndEmpty(t *testing.T) {
	r := New(nil, 0, nil)

	got, method := r.Rerank(context.Background(), "claim", nil)
	assert.Nil(t, got)
	assert.Equal(t, MethodNone, method)

	_, method = r.Rerank(context.Background(), "claim", sampleItems())
	assert.Equal(t, MethodFallback, method)
}

func TestServiceScorer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer rk-1", r.Header.Get("Authorization"))
		var req serviceRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rerank-v3.5", req.Model)
		assert.Equal(t, 2, req.TopN)
		assert.Len(t, req.Documents, 2)
		_, _ = io.WriteString(w, `{"results":[{"index":1,"relevance_score":0.8},{"index":0,"relevance_score":0.1}]}`)
	}))
	defer server.Close()

	s := NewServiceScorer(server.URL, "rerank-v3.5", "rk-1", 0)
	results, err := s.Score(context.Background(), "q", []string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Index: 1, Score: 0.8}, {Index: 0, Score: 0.1}}, results)
}

func TestServiceScorer_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewServiceScorer(server.URL, "", "", 0)
	_, err := s.Score(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
