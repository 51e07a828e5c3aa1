package source

import (
	"context"
	"html"
	"net/http"
	"net/url"
	"strconv"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ppiankov/groundcheck/internal/model"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// BraveSearch queries the Brave web search API.
type BraveSearch struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveSearch) Kind() model.SourceKind { return model.SourceGeneralSearch }

func (b *BraveSearch) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	if b.APIKey == "" {
		return nil, &ConfigurationError{Source: b.Kind(), Reason: "BRAVE_API_KEY is required"}
	}

	base := b.BaseURL
	if base == "" {
		base = braveSearchURL
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(clampLimit(limit, 20)))

	req, err := http.NewRequest(http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	var resp braveResponse
	if err := doJSON(ctx, clientOrDefault(b.Client), b.Kind(), req, &resp); err != nil {
		return nil, err
	}

	items := make([]model.EvidenceItem, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		if len(items) >= limit {
			break
		}
		// Descriptions carry <strong> highlight markup
		content := stripMarkup(r.Description)
		items = append(items, model.EvidenceItem{
			SourceID:      b.Kind(),
			Title:         stripMarkup(r.Title),
			Content:       truncate(content, maxContentLength),
			URL:           r.URL,
			BaseRelevance: 0.9,
			MatchType:     matchType(query, r.Title, content),
		})
	}
	return items, nil
}

var markupPolicy = bluemonday.StrictPolicy()

// stripMarkup removes tags and decodes entities from API snippets.
func stripMarkup(s string) string {
	return html.UnescapeString(markupPolicy.Sanitize(s))
}
