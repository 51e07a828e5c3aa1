package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Claim represents a checkable factual assertion extracted from generated text.
// Identity is the normalized text; see Normalize.
type Claim struct {
	Text       string   `json:"text"`
	Domain     Domain   `json:"domain"`
	Keywords   []string `json:"keywords"`
	Confidence float64  `json:"confidence,omitempty"` // Extractor's self-reported confidence (0-1)
}

// Key returns the normalized identity of the claim.
func (c Claim) Key() string {
	return Normalize(c.Text)
}

// Domain is the topical class assigned to a claim by the extractor.
// It drives source routing.
type Domain string

const (
	DomainCurrentEvents   Domain = "current_events"
	DomainHistoryPeople   Domain = "history_people"
	DomainScienceResearch Domain = "science_research"
	DomainAcademicPaper   Domain = "academic_paper"
	DomainGeneralSearch   Domain = "general_search"
)

// Domains lists every valid domain.
var Domains = []Domain{
	DomainCurrentEvents,
	DomainHistoryPeople,
	DomainScienceResearch,
	DomainAcademicPaper,
	DomainGeneralSearch,
}

// ParseDomain validates free-text classifier output against the closed set.
// Unknown values map to DomainGeneralSearch and ok=false.
func ParseDomain(s string) (Domain, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, d := range Domains {
		if string(d) == norm {
			return d, true
		}
	}
	return DomainGeneralSearch, false
}

// SourceKind identifies an evidence source in the gateway.
type SourceKind string

const (
	SourceGeneralSearch SourceKind = "general_search" // Web search (Google CSE or Brave)
	SourceBroadSearch   SourceKind = "broad_search"   // Broad web search (Tavily)
	SourceEncyclopedic  SourceKind = "encyclopedic"   // Wikipedia
	SourceAcademic      SourceKind = "academic"       // arXiv
	SourcePageFetch     SourceKind = "page_fetch"     // Direct page content fetch
)

// SourceKinds lists every valid source kind.
var SourceKinds = []SourceKind{
	SourceGeneralSearch,
	SourceBroadSearch,
	SourceEncyclopedic,
	SourceAcademic,
	SourcePageFetch,
}

// ParseSourceKind validates a source identifier.
func ParseSourceKind(s string) (SourceKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, k := range SourceKinds {
		if string(k) == norm {
			return k, true
		}
	}
	return "", false
}

var punctuationStripper = strings.NewReplacer(
	".", "", ",", "", "!", "", "?", "", ";", "", ":", "", `"`, "", "'", "",
)

// Normalize case-folds, strips punctuation and collapses whitespace.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = punctuationStripper.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ClaimKey returns the store key for a claim's normalized text.
func ClaimKey(text string) string {
	hash := sha256.Sum256([]byte(Normalize(text)))
	return "groundcheck:claim:" + hex.EncodeToString(hash[:])
}
