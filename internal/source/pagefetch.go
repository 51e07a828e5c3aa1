package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/util"
)

// ErrDisallowed is returned when robots.txt forbids fetching a page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// PageFetcher fetches a page by URL and returns its visible text as a
// single evidence item. The query passed to Search is the URL.
type PageFetcher struct {
	httpClient *http.Client
	robots     *util.RobotsChecker
	userAgent  string
	maxBytes   int64
	logger     *slog.Logger
}

// NewPageFetcher creates a page fetcher. robots may be nil to skip
// robots.txt checks.
func NewPageFetcher(timeout time.Duration, userAgent string, maxBytes int64, robots *util.RobotsChecker, logger *slog.Logger) *PageFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		robots:    robots,
		userAgent: userAgent,
		maxBytes:  maxBytes,
		logger:    logger.With("component", "page_fetch"),
	}
}

func (f *PageFetcher) Kind() model.SourceKind { return model.SourcePageFetch }

func (f *PageFetcher) Search(ctx context.Context, rawURL string, limit int) ([]model.EvidenceItem, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%s: not a fetchable URL: %q", f.Kind(), rawURL)
	}

	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, parsed.String())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Kind(), err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %s: %w", f.Kind(), parsed, ErrDisallowed)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(f.Kind(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(f.Kind(), resp); err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "" && mediaType != "text/html" && mediaType != "text/plain" && mediaType != "application/xhtml+xml" {
		f.logger.Debug("Skipping non-text page", "url", parsed.String(), "content_type", mediaType)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, classifyTransport(f.Kind(), err)
	}

	finalURL := resp.Request.URL.String()
	title, text := extractSubject(finalURL), ""
	if mediaType == "text/plain" {
		text = strings.Join(strings.Fields(string(body)), " ")
	} else {
		doc, err := html.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: parse HTML: %w", f.Kind(), err)
		}
		if t := pageTitle(doc); t != "" {
			title = t
		}
		text = extractVisibleText(doc)
	}

	if text == "" {
		return nil, nil
	}

	return []model.EvidenceItem{{
		SourceID:      f.Kind(),
		Title:         title,
		Content:       truncate(text, maxContentLength),
		URL:           finalURL,
		BaseRelevance: 0.7,
		MatchType:     model.MatchNone,
	}}, nil
}

// extractVisibleText walks the document and joins text outside of
// non-content elements.
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer", "header", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func pageTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := pageTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// extractSubject derives a readable title from the URL path.
func extractSubject(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	last = strings.NewReplacer("_", " ", "-", " ").Replace(last)
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	return last
}
