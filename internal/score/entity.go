package score

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
)

// Category is an entity class compared between claim and evidence.
type Category string

const (
	CategoryDates     Category = "dates"
	CategoryNumbers   Category = "numbers"
	CategoryPersons   Category = "persons"
	CategoryCompanies Category = "companies"
	CategoryProducts  Category = "products"
	CategoryLocations Category = "locations"
)

// Categories lists every compared category in a fixed order.
var Categories = []Category{
	CategoryDates, CategoryNumbers, CategoryPersons,
	CategoryCompanies, CategoryProducts, CategoryLocations,
}

// Entities holds extracted values per category.
type Entities map[Category][]string

// Count returns the number of values across categories.
func (e Entities) Count() int {
	n := 0
	for _, vals := range e {
		n += len(vals)
	}
	return n
}

// EntityMatch is the element-level comparison of a claim with its evidence.
// Supported + Conflicted + Unsupported == Total.
type EntityMatch struct {
	Total       int
	Supported   int
	Conflicted  int
	Unsupported int
	Conflicts   []string // category:value of conflicted elements
	Score       float64  // 0-1
}

// MatchEntities applies the entity scoring policy:
//
//   - no evidence text at all: 0
//   - any conflicted element: 0
//   - no checkable claim elements: 0.5
//   - every element supported: 1
//   - otherwise supported / total
//
// An element is supported when some evidence has an equal value (case
// insensitive) in the same category, conflicted when evidence has values in
// that category but none equal, and unsupported otherwise.
func MatchEntities(claim Entities, evidence []Entities, hasEvidenceText bool) EntityMatch {
	var m EntityMatch

	for _, cat := range Categories {
		for _, value := range claim[cat] {
			want := canonical(value)
			if want == "" {
				continue
			}
			m.Total++

			supported, categorySeen := false, false
			for _, ev := range evidence {
				vals := ev[cat]
				if len(vals) > 0 {
					categorySeen = true
				}
				for _, v := range vals {
					if canonical(v) == want {
						supported = true
						break
					}
				}
				if supported {
					break
				}
			}

			switch {
			case supported:
				m.Supported++
			case categorySeen:
				m.Conflicted++
				m.Conflicts = append(m.Conflicts, string(cat)+":"+value)
			default:
				m.Unsupported++
			}
		}
	}

	switch {
	case !hasEvidenceText:
		m.Score = 0
	case m.Conflicted > 0:
		m.Score = 0
	case m.Total == 0:
		m.Score = 0.5
	case m.Supported == m.Total:
		m.Score = 1
	default:
		m.Score = float64(m.Supported) / float64(m.Total)
	}
	return m
}

func canonical(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.Trim(v, ".,;:\"'()[]")
}

// EntityScorer scores claims by comparing extracted entities. Entity
// extraction uses the judge; the comparison itself is deterministic.
type EntityScorer struct {
	judge       llm.Judge
	opts        Options
	concurrency int
	logger      *slog.Logger
}

// NewEntityScorer creates an entity-matching scorer.
func NewEntityScorer(judge llm.Judge, opts Options) *EntityScorer {
	opts = opts.withDefaults()
	return &EntityScorer{
		judge:       judge,
		opts:        opts,
		concurrency: 4,
		logger:      opts.Logger.With("component", "entity_scorer"),
	}
}

func (s *EntityScorer) Name() string { return string(StrategyEntity) }

// Score implements ClaimScorer.
func (s *EntityScorer) Score(ctx context.Context, claim model.Claim, evidence []model.EvidenceItem) (model.ClaimVerdict, error) {
	// 1. No evidence text at all
	shown := withText(evidence)
	if len(shown) == 0 {
		return noEvidenceVerdict(claim, s.Name()), nil
	}
	if len(shown) > s.opts.MaxEvidence {
		shown = shown[:s.opts.MaxEvidence]
	}

	// 2. Claim entities; failure here fails the strategy
	claimEntities, err := s.ExtractEntities(ctx, claim.Text)
	if err != nil {
		return neutralVerdict(claim, shown, s.Name(), "Entity extraction failed; score undetermined",
			[]model.Signal{judgeFailure(s.Name(), "extraction_failed", err)}), err
	}

	// 3. Evidence entities; a failed item contributes no entities
	evidenceEntities := make([]Entities, len(shown))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range shown {
		i := i
		g.Go(func() error {
			ents, err := s.ExtractEntities(gctx, shown[i].Content)
			if err != nil {
				s.logger.Debug("Evidence entity extraction failed", "index", i, "error", err)
				return nil
			}
			evidenceEntities[i] = ents
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return neutralVerdict(claim, shown, s.Name(), "scoring canceled", nil), err
	}

	// 4. Deterministic comparison
	match := MatchEntities(claimEntities, evidenceEntities, true)
	score := clampScore(match.Score * 100)

	signals := []model.Signal{{
		Type:        model.SignalEntitySupport,
		Severity:    entitySeverity(match),
		Description: fmt.Sprintf("%d of %d claim elements supported by evidence", match.Supported, match.Total),
		Data: map[string]interface{}{
			"total":       match.Total,
			"supported":   match.Supported,
			"conflicted":  match.Conflicted,
			"unsupported": match.Unsupported,
			"score":       score,
			"formula":     "conflict -> 0; none checkable -> 50; else supported / total * 100",
		},
	}}
	if match.Conflicted > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalEntityConflict,
			Severity:    model.SeverityCritical,
			Description: "Evidence contradicts claim elements: " + strings.Join(match.Conflicts, ", "),
			Data: map[string]interface{}{
				"conflicts": match.Conflicts,
			},
		})
	}

	return model.ClaimVerdict{
		Claim:        claim,
		Score:        score,
		EvidenceUsed: shown,
		Reasoning:    entityReasoning(match),
		Verified:     true,
		Strategy:     s.Name(),
		Signals:      signals,
		VerifiedAt:   time.Now().UTC(),
	}, nil
}

// ExtractEntities asks the judge for the entities in text.
func (s *EntityScorer) ExtractEntities(ctx context.Context, text string) (Entities, error) {
	response, err := s.judge.AnalyzeText(ctx, entityPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("entity extraction call: %w", err)
	}
	return ParseEntities(response)
}

func entityPrompt(text string) string {
	return fmt.Sprintf(`Extract the key facts from the text below.

Text: %s

Answer with exactly these six lines, values separated by commas:
- Dates: [dates as YYYY-MM-DD, or YYYY-MM / YYYY when less precise]
- Numbers: [every numeric value, e.g. 100, 50.5]
- Persons: [people's names]
- Companies: [company or organization names]
- Products: [product or service names]
- Locations: [places or countries]

Write "none" when a line has no values.

Example:
- Dates: 2023-03-14
- Numbers: 100, 50.5
- Persons: Ada Lovelace
- Companies: OpenAI, Google
- Products: GPT-4, ChatGPT
- Locations: London, United States
`, text)
}

var categoryLabels = map[string]Category{
	"dates":         CategoryDates,
	"date":          CategoryDates,
	"numbers":       CategoryNumbers,
	"number":        CategoryNumbers,
	"persons":       CategoryPersons,
	"person":        CategoryPersons,
	"people":        CategoryPersons,
	"companies":     CategoryCompanies,
	"company":       CategoryCompanies,
	"organizations": CategoryCompanies,
	"products":      CategoryProducts,
	"product":       CategoryProducts,
	"locations":     CategoryLocations,
	"location":      CategoryLocations,
	"places":        CategoryLocations,
}

// ParseEntities reads "- Category: a, b" lines. A response with no
// recognizable line is a parse error.
func ParseEntities(response string) (Entities, error) {
	ents := make(Entities)
	recognized := 0

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		label, values, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		cat, ok := categoryLabels[strings.ToLower(strings.Trim(strings.TrimSpace(label), "*"))]
		if !ok {
			continue
		}
		recognized++

		values = strings.Trim(strings.TrimSpace(values), "[]")
		if isNone(values) {
			continue
		}
		for _, v := range strings.Split(values, ",") {
			v = strings.TrimSpace(v)
			if v != "" && !isNone(v) {
				ents[cat] = append(ents[cat], v)
			}
		}
	}

	if recognized == 0 {
		return nil, fmt.Errorf("%w: no entity lines", ErrParse)
	}
	return ents, nil
}

func isNone(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n/a", "na", "-", "null":
		return true
	}
	return false
}

func entitySeverity(m EntityMatch) model.SignalSeverity {
	switch {
	case m.Conflicted > 0:
		return model.SeverityCritical
	case m.Total > 0 && m.Supported == m.Total:
		return model.SeverityInfo
	default:
		return model.SeverityWarning
	}
}

func entityReasoning(m EntityMatch) string {
	switch {
	case m.Conflicted > 0:
		return fmt.Sprintf("Evidence conflicts with %d claim element(s): %s", m.Conflicted, strings.Join(m.Conflicts, ", "))
	case m.Total == 0:
		return "Claim has no checkable elements; score undetermined"
	case m.Supported == m.Total:
		return fmt.Sprintf("All %d claim elements are supported by evidence", m.Total)
	default:
		return fmt.Sprintf("%d of %d claim elements supported; %d without evidence", m.Supported, m.Total, m.Unsupported)
	}
}
