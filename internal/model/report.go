package model

import "time"

// Output is one generated text under evaluation. Input groups outputs that
// were produced for the same prompt input; it may be empty.
type Output struct {
	Input string `json:"input,omitempty" yaml:"input,omitempty"`
	Text  string `json:"text" yaml:"text"`
}

// ClaimVerdict is the scored result for one unique claim.
type ClaimVerdict struct {
	Claim        Claim          `json:"claim"`
	Score        float64        `json:"score"` // 0-100
	EvidenceUsed []EvidenceItem `json:"evidence_used,omitempty"`
	Reasoning    string         `json:"reasoning"`
	Verified     bool           `json:"verified"` // False when the score is a fallback default
	Strategy     string         `json:"strategy,omitempty"`
	Sources      []SourceKind   `json:"sources,omitempty"`
	RerankMethod string         `json:"rerank_method,omitempty"`
	Signals      []Signal       `json:"signals,omitempty"`
	VerifiedAt   time.Time      `json:"verified_at"`
}

// NeutralScore is assigned when neither grounded nor hallucinated can be claimed.
const NeutralScore = 50.0

// MetricScore is the grounding metric handed to the aggregation layer.
type MetricScore struct {
	Score   float64 `json:"score"` // 0-100
	Details Details `json:"details"`
	Error   string  `json:"error,omitempty"`
}

// Details breaks the metric down per claim and per output.
type Details struct {
	RunID             string            `json:"run_id"`
	ClaimsProcessed   int               `json:"claims_processed"` // Unique claims
	ClaimScores       []ClaimScore      `json:"claim_scores"`
	CacheHits         int               `json:"cache_hits"`
	CacheMisses       int               `json:"cache_misses"`
	NewVerifications  int               `json:"new_verifications"`
	Failures          int               `json:"failures"`
	RerankMethods     map[string]int    `json:"rerank_methods,omitempty"`
	ScoreDistribution ScoreDistribution `json:"score_distribution"`
	PerOutput         []OutputScore     `json:"per_output,omitempty"`
	PerInput          []InputScore      `json:"per_input,omitempty"`
	Duration          time.Duration     `json:"duration_ns"`
}

// ClaimScore summarises one claim's contribution to the metric.
type ClaimScore struct {
	Claim     string       `json:"claim"`
	Domain    Domain       `json:"domain"`
	Score     float64      `json:"score"`
	Cached    bool         `json:"cached"`
	Verified  bool         `json:"verified"`
	Sources   []SourceKind `json:"sources,omitempty"`
	Reasoning string       `json:"reasoning,omitempty"`
}

// ScoreDistribution counts claims by score band.
type ScoreDistribution struct {
	Perfect int `json:"perfect"` // score == 100
	Partial int `json:"partial"` // 0 < score < 100
	Zero    int `json:"zero"`    // score == 0
}

// OutputScore is the mean claim score of one output.
type OutputScore struct {
	Index  int      `json:"index"`
	Input  string   `json:"input,omitempty"`
	Claims []string `json:"claims"`
	Score  float64  `json:"score"`
}

// InputScore is the mean output score of one input.
type InputScore struct {
	Input   string  `json:"input"`
	Outputs int     `json:"outputs"`
	Score   float64 `json:"score"`
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"` // Formulas and inputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalNoEvidence     SignalType = "no_evidence"     // No evidence text retrieved
	SignalThinEvidence   SignalType = "thin_evidence"   // Fewer items than the confidence threshold
	SignalJudgeFailure   SignalType = "judge_failure"   // Judgment call failed or was unparseable
	SignalEntitySupport  SignalType = "entity_support"  // Entity match breakdown
	SignalEntityConflict SignalType = "entity_conflict" // Evidence contradicts a claim entity
	SignalTimeout        SignalType = "timeout"         // Branch exceeded its deadline
	SignalRerankFallback SignalType = "rerank_fallback" // Deterministic reranker used
	SignalSourceError    SignalType = "source_error"    // A routed source failed
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
