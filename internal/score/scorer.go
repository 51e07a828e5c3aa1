// Package score turns a claim and its placed evidence into a 0-100 verdict.
package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/metrics"
	"github.com/ppiankov/groundcheck/internal/model"
)

// ErrParse is returned when a judgment or entity response cannot be parsed.
var ErrParse = errors.New("unparseable scoring response")

// Strategy selects how claims are scored.
type Strategy string

const (
	// StrategyLLM asks the judge for a rubric score
	StrategyLLM Strategy = "llm"
	// StrategyEntity compares extracted entities deterministically
	StrategyEntity Strategy = "entity"
	// StrategyPreferred uses the judge and falls back to entities when the
	// judge fails
	StrategyPreferred Strategy = "preferred"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyLLM:
		return StrategyLLM, nil
	case StrategyEntity:
		return StrategyEntity, nil
	case StrategyPreferred, "":
		return StrategyPreferred, nil
	default:
		return "", fmt.Errorf("unknown scoring strategy %q (want llm, entity or preferred)", s)
	}
}

// ClaimScorer scores one claim against its placed evidence.
//
// Score always returns a usable verdict. When it also returns an error the
// verdict carries the strategy's documented default and Verified is false.
type ClaimScorer interface {
	Score(ctx context.Context, claim model.Claim, evidence []model.EvidenceItem) (model.ClaimVerdict, error)
	Name() string
}

// Options tunes the scorers.
type Options struct {
	MaxEvidence         int     // Items shown to the judge
	ThinEvidenceCount   int     // Below this many items the thin-evidence penalty applies
	ThinEvidencePenalty float64 // Multiplier applied to thin-evidence scores
	Logger              *slog.Logger
}

// DefaultOptions returns the standard rubric settings.
func DefaultOptions() Options {
	return Options{
		MaxEvidence:         10,
		ThinEvidenceCount:   3,
		ThinEvidencePenalty: 0.9,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxEvidence <= 0 {
		o.MaxEvidence = def.MaxEvidence
	}
	if o.ThinEvidenceCount <= 0 {
		o.ThinEvidenceCount = def.ThinEvidenceCount
	}
	if o.ThinEvidencePenalty <= 0 || o.ThinEvidencePenalty > 1 {
		o.ThinEvidencePenalty = def.ThinEvidencePenalty
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// New builds the scorer for strategy.
func New(strategy Strategy, judge llm.Judge, opts Options) (ClaimScorer, error) {
	if judge == nil {
		return nil, errors.New("scoring requires a judge")
	}
	opts = opts.withDefaults()

	switch strategy {
	case StrategyLLM:
		return NewLLMScorer(judge, opts), nil
	case StrategyEntity:
		return NewEntityScorer(judge, opts), nil
	case StrategyPreferred, "":
		return NewPreferred(NewLLMScorer(judge, opts), NewEntityScorer(judge, opts), opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", strategy)
	}
}

// Preferred trusts the LLM judgment and consults the entity scorer only
// when the judgment fails. If both fail the claim gets the neutral score.
type Preferred struct {
	primary  ClaimScorer
	fallback ClaimScorer
	logger   *slog.Logger
}

// NewPreferred combines a primary and a fallback scorer.
func NewPreferred(primary, fallback ClaimScorer, logger *slog.Logger) *Preferred {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preferred{primary: primary, fallback: fallback, logger: logger.With("component", "scorer")}
}

func (p *Preferred) Name() string { return string(StrategyPreferred) }

func (p *Preferred) Score(ctx context.Context, claim model.Claim, evidence []model.EvidenceItem) (model.ClaimVerdict, error) {
	// 1. Zero evidence text is decided without a model call
	if !anyText(evidence) {
		return noEvidenceVerdict(claim, p.Name()), nil
	}

	// 2. LLM judgment is authoritative when it succeeds
	verdict, err := p.primary.Score(ctx, claim, evidence)
	if err == nil {
		verdict.Strategy = p.Name() + "/" + p.primary.Name()
		return verdict, nil
	}
	if ctx.Err() != nil {
		return neutralVerdict(claim, evidence, p.Name(), "scoring canceled", verdict.Signals), ctx.Err()
	}
	p.logger.Info("Judgment failed, falling back to entity matching", "claim", claim.Text, "error", err)
	signals := verdict.Signals

	// 3. Entity matching
	fallback, ferr := p.fallback.Score(ctx, claim, evidence)
	if ferr == nil {
		fallback.Strategy = p.Name() + "/" + p.fallback.Name()
		fallback.Signals = append(signals, fallback.Signals...)
		return fallback, nil
	}

	// 4. Both failed
	signals = append(signals, fallback.Signals...)
	return neutralVerdict(claim, evidence, p.Name(), "Judgment and entity matching both failed; score undetermined", signals),
		errors.Join(err, ferr)
}

// neutralVerdict is the undetermined default.
func neutralVerdict(claim model.Claim, evidence []model.EvidenceItem, strategy, reason string, signals []model.Signal) model.ClaimVerdict {
	return model.ClaimVerdict{
		Claim:        claim,
		Score:        model.NeutralScore,
		EvidenceUsed: evidence,
		Reasoning:    reason,
		Verified:     false,
		Strategy:     strategy,
		Signals:      signals,
		VerifiedAt:   time.Now().UTC(),
	}
}

// noEvidenceVerdict scores 0: nothing external supports the claim.
func noEvidenceVerdict(claim model.Claim, strategy string) model.ClaimVerdict {
	return model.ClaimVerdict{
		Claim:      claim,
		Score:      0,
		Reasoning:  "No evidence found for this claim",
		Verified:   true,
		Strategy:   strategy,
		VerifiedAt: time.Now().UTC(),
		Signals: []model.Signal{{
			Type:        model.SignalNoEvidence,
			Severity:    model.SeverityCritical,
			Description: "No evidence text retrieved from any routed source",
			Data: map[string]interface{}{
				"evidence": 0,
				"formula":  "no evidence text -> 0",
			},
		}},
	}
}

func judgeFailure(strategy, reason string, err error) model.Signal {
	metrics.ScorerFailures.WithLabelValues(strategy, reason).Inc()
	return model.Signal{
		Type:        model.SignalJudgeFailure,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("%s scorer %s: %v", strategy, reason, err),
		Data: map[string]interface{}{
			"strategy": strategy,
			"reason":   reason,
		},
	}
}

func anyText(evidence []model.EvidenceItem) bool {
	for _, e := range evidence {
		if e.HasText() {
			return true
		}
	}
	return false
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
