package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var errEmptyRanking = errors.New("rerank service returned no results")

func errIndexRange(idx, n int) error {
	return fmt.Errorf("rerank service returned index %d for %d documents", idx, n)
}

// ServiceScorer calls a Cohere-compatible /rerank endpoint.
type ServiceScorer struct {
	URL    string
	Model  string
	APIKey string
	Client *http.Client
}

type serviceRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type serviceResponse struct {
	Results []Result `json:"results"`
}

// NewServiceScorer returns a scorer for url, or nil when url is empty.
func NewServiceScorer(url, model, apiKey string, timeout time.Duration) *ServiceScorer {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServiceScorer{
		URL:    url,
		Model:  model,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

// Score implements Scorer.
func (s *ServiceScorer) Score(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if s == nil || s.URL == "" {
		return nil, errors.New("rerank service not configured")
	}
	payload, err := json.Marshal(serviceRequest{
		Model:     s.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out serviceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return out.Results, nil
}
