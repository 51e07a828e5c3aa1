package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/ppiankov/groundcheck/internal/model"
)

const tavilySearchURL = "https://api.tavily.com/search"

// TavilySearch queries the Tavily search API. It backs broad_search.
type TavilySearch struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *TavilySearch) Kind() model.SourceKind { return model.SourceBroadSearch }

func (t *TavilySearch) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	if t.APIKey == "" {
		return nil, &ConfigurationError{Source: t.Kind(), Reason: "TAVILY_API_KEY is required"}
	}

	base := t.BaseURL
	if base == "" {
		base = tavilySearchURL
	}
	payload, err := json.Marshal(tavilyRequest{
		APIKey:      t.APIKey,
		Query:       query,
		MaxResults:  clampLimit(limit, 20),
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, base, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp tavilyResponse
	if err := doJSON(ctx, clientOrDefault(t.Client), t.Kind(), req, &resp); err != nil {
		return nil, err
	}

	items := make([]model.EvidenceItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(items) >= limit {
			break
		}
		items = append(items, model.EvidenceItem{
			SourceID:      t.Kind(),
			Title:         r.Title,
			Content:       truncate(r.Content, maxContentLength),
			URL:           r.URL,
			BaseRelevance: clamp01(r.Score),
			MatchType:     matchType(query, r.Title, r.Content),
		})
	}
	return items, nil
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
