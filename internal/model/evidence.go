package model

import "strings"

// EvidenceItem is a single piece of external evidence returned by a source.
// The reranker fills RerankScore and RerankPosition, the placer fills Position.
type EvidenceItem struct {
	SourceID          SourceKind `json:"source_id"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	URL               string     `json:"url,omitempty"`
	BaseRelevance     float64    `json:"base_relevance"`     // Source-reported relevance (0-1)
	ReliabilityWeight float64    `json:"reliability_weight"` // Authority-derived weight (0-1)
	MatchType         MatchType  `json:"match_type"`
	SearchKeyword     string     `json:"search_keyword,omitempty"` // Keyword that produced the item

	RerankScore      float64 `json:"rerank_score,omitempty"`
	RerankPosition   int     `json:"rerank_position,omitempty"` // 1-based, 0 when not reranked
	OriginalPosition int     `json:"original_position,omitempty"`
	Position         int     `json:"position,omitempty"` // 1-based position after placement
}

// MatchType describes how directly an item matched the query.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
	MatchNone    MatchType = "none"
)

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not classified
	TierPrimary   AuthorityTier = 1 // Laws, statutes, academic papers, official documents
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, personal websites, forums
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// HasText reports whether the item carries any body text.
func (e EvidenceItem) HasText() bool {
	return strings.TrimSpace(e.Content) != ""
}
