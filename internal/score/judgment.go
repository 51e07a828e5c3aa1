package score

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
)

// LLMScorer asks the judge for a rubric score over the placed evidence.
type LLMScorer struct {
	judge  llm.Judge
	opts   Options
	logger *slog.Logger
}

// NewLLMScorer creates a judgment scorer.
func NewLLMScorer(judge llm.Judge, opts Options) *LLMScorer {
	opts = opts.withDefaults()
	return &LLMScorer{judge: judge, opts: opts, logger: opts.Logger.With("component", "llm_scorer")}
}

func (s *LLMScorer) Name() string { return string(StrategyLLM) }

// Score implements ClaimScorer. Without evidence text the judge is not
// called and the claim is undetermined (50).
func (s *LLMScorer) Score(ctx context.Context, claim model.Claim, evidence []model.EvidenceItem) (model.ClaimVerdict, error) {
	shown := withText(evidence)
	if len(shown) > s.opts.MaxEvidence {
		shown = shown[:s.opts.MaxEvidence]
	}

	if len(shown) == 0 {
		v := neutralVerdict(claim, nil, s.Name(), "No evidence available to judge; score undetermined", []model.Signal{{
			Type:        model.SignalNoEvidence,
			Severity:    model.SeverityWarning,
			Description: "No evidence text retrieved; judgment skipped",
			Data:        map[string]interface{}{"evidence": 0, "formula": "no evidence text -> 50"},
		}})
		return v, nil
	}

	response, err := s.judge.AnalyzeText(ctx, s.buildPrompt(claim, shown))
	if err != nil {
		return neutralVerdict(claim, shown, s.Name(), "Judgment call failed; score undetermined",
			[]model.Signal{judgeFailure(s.Name(), "call_failed", err)}), fmt.Errorf("judgment call: %w", err)
	}

	raw, reasoning, err := ParseJudgment(response)
	if err != nil {
		s.logger.Debug("Unparseable judgment", "claim", claim.Text, "response", truncateText(response, 200))
		return neutralVerdict(claim, shown, s.Name(), "Judgment response could not be parsed; score undetermined",
			[]model.Signal{judgeFailure(s.Name(), "parse_failed", err)}), err
	}

	score := clampScore(raw)
	var signals []model.Signal

	// Thin evidence lowers confidence, not direction
	if len(shown) < s.opts.ThinEvidenceCount {
		penalized := clampScore(score * s.opts.ThinEvidencePenalty)
		reasoning = strings.TrimSpace(reasoning) + fmt.Sprintf(
			" (Confidence reduced: only %d evidence item(s); score %.0f -> %.1f)", len(shown), score, penalized)
		signals = append(signals, model.Signal{
			Type:     model.SignalThinEvidence,
			Severity: model.SeverityWarning,
			Description: fmt.Sprintf("Only %d evidence item(s), fewer than %d",
				len(shown), s.opts.ThinEvidenceCount),
			Data: map[string]interface{}{
				"evidence":  len(shown),
				"threshold": s.opts.ThinEvidenceCount,
				"raw_score": score,
				"penalty":   s.opts.ThinEvidencePenalty,
				"formula":   "score * penalty when evidence < threshold",
			},
		})
		score = penalized
	}

	return model.ClaimVerdict{
		Claim:        claim,
		Score:        score,
		EvidenceUsed: shown,
		Reasoning:    strings.TrimSpace(reasoning),
		Verified:     true,
		Strategy:     s.Name(),
		Signals:      signals,
		VerifiedAt:   time.Now().UTC(),
	}, nil
}

func (s *LLMScorer) buildPrompt(claim model.Claim, evidence []model.EvidenceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim to verify: %s\n", claim.Text)
	if len(claim.Keywords) > 0 {
		fmt.Fprintf(&b, "Search keywords: %s\n", strings.Join(claim.Keywords, ", "))
	}
	b.WriteString("\nEvidence:\n")
	for i, e := range evidence {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, e.Title)
		if e.RerankScore > 0 {
			fmt.Fprintf(&b, " (relevance %.2f)", e.RerankScore)
		}
		if e.URL != "" {
			fmt.Fprintf(&b, "\nSource: %s", e.URL)
		}
		fmt.Fprintf(&b, "\n%s\n", e.Content)
	}
	b.WriteString(`
Score how well the evidence supports the claim, from 0 to 100:
- 100: the evidence explicitly and specifically confirms the claim
- 80-99: the evidence strongly supports the claim with minor gaps
- 60-79: the evidence partially supports the claim
- 40-59: the evidence is related but does not directly confirm the claim
- 20-39: the evidence conflicts with the claim
- 0-19: the evidence explicitly contradicts the claim

Answer in exactly this format:
Score: <number>
Reasoning: <one or two sentences>
`)
	return b.String()
}

var (
	scoreLine     = regexp.MustCompile(`(?i)\bscore\s*[:=]\s*\**\s*(\d{1,3}(?:\.\d+)?)`)
	reasoningLine = regexp.MustCompile(`(?is)\breasoning\s*[:=]\s*\**\s*(.+)`)
)

// ParseJudgment extracts the score and rationale from a judge response.
func ParseJudgment(response string) (float64, string, error) {
	m := scoreLine.FindStringSubmatch(response)
	if m == nil {
		return 0, "", fmt.Errorf("%w: no score line", ErrParse)
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	reasoning := ""
	if r := reasoningLine.FindStringSubmatch(response); r != nil {
		reasoning = strings.TrimSpace(r[1])
	}
	return score, reasoning, nil
}

func withText(evidence []model.EvidenceItem) []model.EvidenceItem {
	out := make([]model.EvidenceItem, 0, len(evidence))
	for _, e := range evidence {
		if e.HasText() {
			out = append(out, e)
		}
	}
	return out
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
