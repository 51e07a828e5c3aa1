package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ppiankov/groundcheck/internal/model"
)

const googleSearchURL = "https://www.googleapis.com/customsearch/v1"

// GoogleSearch queries the Google Custom Search JSON API.
type GoogleSearch struct {
	APIKey   string
	EngineID string
	BaseURL  string
	Client   *http.Client
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *GoogleSearch) Kind() model.SourceKind { return model.SourceGeneralSearch }

func (g *GoogleSearch) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	if g.APIKey == "" || g.EngineID == "" {
		return nil, &ConfigurationError{Source: g.Kind(), Reason: "GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_ENGINE_ID are required"}
	}

	base := g.BaseURL
	if base == "" {
		base = googleSearchURL
	}
	params := url.Values{}
	params.Set("key", g.APIKey)
	params.Set("cx", g.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(clampLimit(limit, 10)))

	req, err := http.NewRequest(http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp googleResponse
	if err := doJSON(ctx, clientOrDefault(g.Client), g.Kind(), req, &resp); err != nil {
		return nil, err
	}

	items := make([]model.EvidenceItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		if len(items) >= limit {
			break
		}
		items = append(items, model.EvidenceItem{
			SourceID:      g.Kind(),
			Title:         it.Title,
			Content:       truncate(it.Snippet, maxContentLength),
			URL:           it.Link,
			BaseRelevance: 0.9,
			MatchType:     matchType(query, it.Title, it.Snippet),
		})
	}
	return items, nil
}
