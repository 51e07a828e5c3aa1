package cache

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/groundcheck/internal/model"
)

// RunCache holds best-effort per-(claim, source) evidence for a single
// evaluation run. It never expires entries and is dropped with the run.
// Verdicts need no run-level copy: dedup already gives each normalized
// claim exactly one branch.
type RunCache struct {
	evidence *gocache.Cache
}

// NewRunCache creates an empty run cache
func NewRunCache() *RunCache {
	return &RunCache{evidence: gocache.New(gocache.NoExpiration, 0)}
}

// Evidence returns evidence gathered for (claimText, source)
func (r *RunCache) Evidence(claimText string, source model.SourceKind) ([]model.EvidenceItem, bool) {
	if v, ok := r.evidence.Get(evidenceKey(claimText, source)); ok {
		return v.([]model.EvidenceItem), true
	}
	return nil, false
}

// PutEvidence records evidence gathered for (claimText, source)
func (r *RunCache) PutEvidence(claimText string, source model.SourceKind, items []model.EvidenceItem) {
	r.evidence.SetDefault(evidenceKey(claimText, source), items)
}

// Len returns the number of cached evidence lists
func (r *RunCache) Len() int {
	return r.evidence.ItemCount()
}

// Flush discards all run state
func (r *RunCache) Flush() {
	r.evidence.Flush()
}

func evidenceKey(claimText string, source model.SourceKind) string {
	return string(source) + "|" + model.Normalize(claimText)
}
