package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/groundcheck/internal/model"
)

// maxResponseBytes limits how much of an API response is read.
const maxResponseBytes = 4 << 20

// NewHTTPClient returns the client adapters share by default.
// proxy may be nil to use the environment.
func NewHTTPClient(timeout time.Duration, proxy func(*http.Request) (*url.URL, error)) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		transport.Proxy = proxy
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// doJSON executes req and decodes a JSON body into out.
func doJSON(ctx context.Context, client *http.Client, kind model.SourceKind, req *http.Request, out interface{}) error {
	body, err := doRaw(ctx, client, kind, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", kind, err)
	}
	return nil
}

func doRaw(ctx context.Context, client *http.Client, kind model.SourceKind, req *http.Request) ([]byte, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(kind, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(kind, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(kind, err)
	}
	return body, nil
}

var defaultClient = NewHTTPClient(15*time.Second, nil)

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return defaultClient
}

func decodeLimited(resp *http.Response, out interface{}) error {
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out)
}
