// Package source implements the evidence source gateway: one adapter per
// external knowledge source behind a uniform Search call.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/groundcheck/internal/model"
)

// DefaultUserAgent is sent by every adapter that talks to a public API.
const DefaultUserAgent = "groundcheck/1.0 (+https://github.com/ppiankov/groundcheck)"

// maxContentLength caps evidence content taken from any adapter.
const maxContentLength = 2000

// Source is a single evidence provider.
type Source interface {
	// Kind returns the gateway identifier this adapter serves
	Kind() model.SourceKind

	// Search returns up to limit evidence items for the query.
	// An empty result is not an error.
	Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error)
}

// ErrTransient marks failures worth retrying: rate limiting, server errors
// and network timeouts.
var ErrTransient = errors.New("transient source failure")

// ConfigurationError reports missing or rejected credentials.
// It is never retried.
type ConfigurationError struct {
	Source model.SourceKind
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("source %s misconfigured: %s", e.Source, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// checkStatus converts a non-2xx response into the gateway error taxonomy.
func checkStatus(kind model.SourceKind, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ConfigurationError{Source: kind, Reason: fmt.Sprintf("credentials rejected (HTTP %d)", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s: HTTP %d: %w", kind, resp.StatusCode, ErrTransient)
	default:
		return fmt.Errorf("%s: HTTP %d", kind, resp.StatusCode)
	}
}

// classifyTransport wraps network-level failures as transient.
// Context cancellation by the caller is returned unchanged.
func classifyTransport(kind model.SourceKind, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	var opErr *net.OpError
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &opErr) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %v: %w", kind, err, ErrTransient)
	}
	return fmt.Errorf("%s: %w", kind, err)
}

// matchType reports exact when the normalized query appears in the title,
// partial when it appears in the content.
func matchType(query, title, content string) model.MatchType {
	q := model.Normalize(query)
	if q == "" {
		return model.MatchNone
	}
	if strings.Contains(model.Normalize(title), q) {
		return model.MatchExact
	}
	if strings.Contains(model.Normalize(content), q) {
		return model.MatchPartial
	}
	return model.MatchNone
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Avoid splitting a multi-byte rune
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
