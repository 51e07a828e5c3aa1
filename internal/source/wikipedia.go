package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

const wikipediaBaseURL = "https://en.wikipedia.org"

// Wikipedia serves encyclopedic evidence: the page summary for the best
// title guess, falling back to full-text search.
type Wikipedia struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
}

type wikiSummary struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			PageID  int    `json:"pageid"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

func (w *Wikipedia) Kind() model.SourceKind { return model.SourceEncyclopedic }

func (w *Wikipedia) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	title := EncyclopedicQuery(query)
	if title == "" {
		return nil, nil
	}

	item, err := w.summary(ctx, title)
	switch {
	case err == nil && item != nil:
		item.MatchType = model.MatchExact
		return []model.EvidenceItem{*item}, nil
	case err != nil && (errors.Is(err, context.Canceled) || IsConfigurationError(err)):
		return nil, err
	case err != nil:
		w.logger().Debug("Wikipedia summary failed, falling back to search", "title", title, "error", err)
	}

	return w.search(ctx, title, limit)
}

func (w *Wikipedia) summary(ctx context.Context, title string) (*model.EvidenceItem, error) {
	path := "/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	req, err := http.NewRequest(http.MethodGet, w.base()+path, nil)
	if err != nil {
		return nil, err
	}
	w.headers(req)

	resp, err := clientOrDefault(w.Client).Do(req.WithContext(ctx))
	if err != nil {
		return nil, classifyTransport(w.Kind(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A missing article is a normal miss
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := checkStatus(w.Kind(), resp); err != nil {
		return nil, err
	}

	var s wikiSummary
	if err := decodeLimited(resp, &s); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Extract) == "" || s.Type == "disambiguation" {
		return nil, nil
	}

	return &model.EvidenceItem{
		SourceID:      w.Kind(),
		Title:         s.Title,
		Content:       truncate(s.Extract, maxContentLength),
		URL:           s.ContentURLs.Desktop.Page,
		BaseRelevance: 0.95,
	}, nil
}

func (w *Wikipedia) search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("format", "json")
	params.Set("srlimit", strconv.Itoa(clampLimit(limit, 10)))

	req, err := http.NewRequest(http.MethodGet, w.base()+"/w/api.php?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	w.headers(req)

	var resp wikiSearchResponse
	if err := doJSON(ctx, clientOrDefault(w.Client), w.Kind(), req, &resp); err != nil {
		return nil, err
	}

	items := make([]model.EvidenceItem, 0, len(resp.Query.Search))
	for _, r := range resp.Query.Search {
		if len(items) >= limit {
			break
		}
		items = append(items, model.EvidenceItem{
			SourceID:      w.Kind(),
			Title:         r.Title,
			Content:       truncate(stripMarkup(r.Snippet), maxContentLength),
			URL:           w.base() + "/wiki/" + url.PathEscape(strings.ReplaceAll(r.Title, " ", "_")),
			BaseRelevance: 0.9,
			MatchType:     model.MatchPartial,
		})
	}
	return items, nil
}

func (w *Wikipedia) base() string {
	if w.BaseURL != "" {
		return strings.TrimRight(w.BaseURL, "/")
	}
	return wikipediaBaseURL
}

// Wikimedia APIs reject requests without a descriptive User-Agent
func (w *Wikipedia) headers(req *http.Request) {
	ua := w.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")
}

func (w *Wikipedia) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
