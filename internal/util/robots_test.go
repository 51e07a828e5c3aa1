package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRobotsChecker_CanFetch(t *testing.T) {
	var robotsHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits++
			_, _ = w.Write([]byte("User-agent: groundcheck\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "groundcheck/1.0 (+https://example.com)", time.Second, nil)
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, server.URL+"/public/page")
	if err != nil {
		t.Fatalf("CanFetch failed: %v", err)
	}
	if !allowed {
		t.Error("Expected /public/page to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("Expected crawl delay 2s, got %v", delay)
	}

	if checker.IsAllowed(ctx, server.URL+"/private/doc") {
		t.Error("Expected /private/doc to be disallowed")
	}

	if robotsHits != 1 {
		t.Errorf("Expected robots.txt to be fetched once, got %d", robotsHits)
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "groundcheck/1.0", time.Second, nil)
	if !checker.IsAllowed(context.Background(), server.URL+"/anything") {
		t.Error("Expected fetch to be allowed when robots.txt is missing")
	}
}

func TestRobotsChecker_RejectsNonHTTP(t *testing.T) {
	checker := NewRobotsChecker(nil, "groundcheck/1.0", time.Second, nil)
	if _, _, err := checker.CanFetch(context.Background(), "ftp://example.com/file"); err == nil {
		t.Error("Expected error for ftp scheme")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	if got := NormalizeUserAgent("groundcheck/1.0 (+https://example.com)"); got != "groundcheck" {
		t.Errorf("Expected groundcheck, got %s", got)
	}
}

func TestNewProxyFunc_NoProxy(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "", "localhost,.corp.example")

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/search", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy func failed: %v", err)
	}
	if u == nil || u.Host != "proxy.internal:3128" {
		t.Errorf("Expected proxy.internal:3128, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://wiki.corp.example/page", nil)
	u, err = proxy(req)
	if err != nil {
		t.Fatalf("proxy func failed: %v", err)
	}
	if u != nil {
		t.Errorf("Expected no proxy for NO_PROXY host, got %v", u)
	}
}
