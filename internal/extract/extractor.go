// Package extract turns generated outputs into checkable claims with one
// model call per batch of outputs.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
)

const (
	// DefaultBatchSize is the number of outputs sent in one extraction call
	DefaultBatchSize = 10

	// DefaultMinClaimLength drops fragments at or below this many characters
	DefaultMinClaimLength = 10

	maxOutputChars = 4000
	minKeywords    = 2
	maxKeywords    = 4
)

// Options tunes the extractor.
type Options struct {
	BatchSize      int
	MinClaimLength int
	Logger         *slog.Logger
}

// Extractor extracts and classifies claims using a Judge.
type Extractor struct {
	judge     llm.Judge
	batchSize int
	minLength int
	logger    *slog.Logger
}

// NewExtractor creates an extractor. Zero option values use the defaults.
func NewExtractor(judge llm.Judge, opts Options) *Extractor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MinClaimLength <= 0 {
		opts.MinClaimLength = DefaultMinClaimLength
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		judge:     judge,
		batchSize: opts.BatchSize,
		minLength: opts.MinClaimLength,
		logger:    opts.Logger.With("component", "extractor"),
	}
}

// Extract returns the claims found in each output, indexed like outputs.
// A failed or unparseable batch contributes no claims; it never fails the
// whole call. Only context cancellation is returned as an error.
func (e *Extractor) Extract(ctx context.Context, outputs []string) ([][]model.Claim, error) {
	perOutput := make([][]model.Claim, len(outputs))

	for start := 0; start < len(outputs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(outputs) {
			end = len(outputs)
		}

		claims, err := e.extractBatch(ctx, outputs[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return perOutput, ctx.Err()
			}
			e.logger.Warn("Claim extraction failed for batch, continuing without claims",
				"batch_start", start, "batch_size", end-start, "error", err)
			continue
		}

		for i, batchClaims := range claims {
			perOutput[start+i] = batchClaims
		}
	}

	return perOutput, nil
}

func (e *Extractor) extractBatch(ctx context.Context, batch []string) ([][]model.Claim, error) {
	result := make([][]model.Claim, len(batch))

	// Skip the model call when there is nothing to read
	empty := true
	for _, out := range batch {
		if strings.TrimSpace(out) != "" {
			empty = false
			break
		}
	}
	if empty {
		return result, nil
	}

	response, err := e.judge.AnalyzeText(ctx, buildPrompt(batch))
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	raw, err := ParseClaims(response)
	if err != nil {
		return nil, err
	}

	kept, dropped := 0, 0
	for _, rc := range raw {
		text := strings.TrimSpace(rc.Claim)
		if reason := e.rejectReason(text); reason != "" {
			dropped++
			e.logger.Debug("Dropping extracted claim", "claim", text, "reason", reason)
			continue
		}

		idx := attribute(int(rc.Output), text, batch)
		if idx < 0 {
			dropped++
			e.logger.Debug("Dropping claim with no matching output", "claim", text, "output", rc.Output)
			continue
		}

		domain, ok := model.ParseDomain(rc.Domain)
		if !ok && rc.Domain != "" {
			e.logger.Debug("Unknown claim domain, routing as general search", "domain", rc.Domain)
		}

		result[idx] = append(result[idx], model.Claim{
			Text:       text,
			Domain:     domain,
			Keywords:   completeKeywords(rc.Keywords, text),
			Confidence: clampConfidence(rc.Confidence),
		})
		kept++
	}

	e.logger.Debug("Extracted claims", "outputs", len(batch), "kept", kept, "dropped", dropped)
	return result, nil
}

func buildPrompt(batch []string) string {
	var b strings.Builder
	b.WriteString(`Extract the objectively verifiable factual claims from the AI outputs below.

A claim is verifiable when external sources (news, encyclopedias, papers, official documents)
can confirm or refute it: it names specific dates, numbers, people, organizations, products,
places or events.

Do NOT extract: opinions, predictions, instructions, creative or marketing text, hypotheticals,
greetings or closings, sentences containing template variables like {{name}}, or anything
outside the outputs.

For every claim return:
- "output": the number of the output it came from
- "claim": one self-contained sentence
- "keywords": 2-4 search keywords (names, dates, key terms)
- "domain": one of current_events, history_people, science_research, academic_paper, general_search
- "confidence": 0.0-1.0, how clearly the sentence is a checkable fact

Respond with a JSON array only, for example:
[{"output": 1, "claim": "...", "keywords": ["...", "..."], "domain": "general_search", "confidence": 0.9}]
Respond with [] when there are no verifiable claims.

`)
	for i, out := range batch {
		fmt.Fprintf(&b, "<output number=\"%d\">\n%s\n</output>\n\n", i+1, clip(out, maxOutputChars))
	}
	return b.String()
}

// attribute maps a claim to its output: the 1-based number the model gave
// when valid, else the output sharing the most words with the claim.
func attribute(number int, claim string, batch []string) int {
	if number >= 1 && number <= len(batch) {
		return number - 1
	}
	if len(batch) == 1 {
		return 0
	}

	words := strings.Fields(model.Normalize(claim))
	best, bestHits := -1, 0
	for i, out := range batch {
		norm := model.Normalize(out)
		hits := 0
		for _, w := range words {
			if len(w) > 2 && strings.Contains(norm, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	return best
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

// IsParseError reports whether err came from an unparseable model response.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}
