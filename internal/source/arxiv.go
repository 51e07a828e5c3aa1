package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

const arxivBaseURL = "http://export.arxiv.org"

// Arxiv serves academic evidence from the arXiv Atom API.
type Arxiv struct {
	BaseURL string
	Client  *http.Client
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type arxivEntry struct {
	ID        string `xml:"http://www.w3.org/2005/Atom id"`
	Title     string `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string `xml:"http://www.w3.org/2005/Atom summary"`
	Published string `xml:"http://www.w3.org/2005/Atom published"`
	Authors   []struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
}

func (a *Arxiv) Kind() model.SourceKind { return model.SourceAcademic }

func (a *Arxiv) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	terms := strings.Fields(AcademicQuery(query))
	if len(terms) == 0 {
		return nil, nil
	}

	base := a.BaseURL
	if base == "" {
		base = arxivBaseURL
	}
	params := url.Values{}
	params.Set("search_query", "all:"+strings.Join(terms, " AND all:"))
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(clampLimit(limit, 10)))

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(base, "/")+"/api/query?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	body, err := doRaw(ctx, clientOrDefault(a.Client), a.Kind(), req)
	if err != nil {
		return nil, err
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%s: decode feed: %w", a.Kind(), err)
	}

	items := make([]model.EvidenceItem, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if len(items) >= limit {
			break
		}
		title := strings.Join(strings.Fields(e.Title), " ")
		summary := strings.Join(strings.Fields(e.Summary), " ")
		if byline := authorLine(e); byline != "" {
			summary = byline + ". " + summary
		}
		items = append(items, model.EvidenceItem{
			SourceID:      a.Kind(),
			Title:         title,
			Content:       truncate(summary, maxContentLength),
			URL:           strings.TrimSpace(e.ID),
			BaseRelevance: 0.88,
			MatchType:     matchType(query, title, summary),
		})
	}
	return items, nil
}

func authorLine(e arxivEntry) string {
	names := make([]string, 0, len(e.Authors))
	for _, au := range e.Authors {
		if n := strings.TrimSpace(au.Name); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return ""
	}
	line := strings.Join(names, ", ")
	if len(e.Published) >= 10 {
		line += " (" + e.Published[:10] + ")"
	}
	return line
}
