package validate

import (
	"testing"

	"github.com/ppiankov/groundcheck/internal/model"
)

func TestAuthorityClassifier_Defaults(t *testing.T) {
	classifier := NewAuthorityClassifier(nil)

	tests := []struct {
		url      string
		expected model.AuthorityTier
		desc     string
	}{
		{"https://arxiv.org/abs/2303.08774", model.TierPrimary, "arXiv abstract"},
		{"https://www.nature.com/articles/x", model.TierPrimary, "subdomain of primary"},
		{"https://en.wikipedia.org/wiki/GPT-4", model.TierSecondary, "Wikipedia"},
		{"https://www.reuters.com/technology/", model.TierSecondary, "news agency"},
		{"https://someone.medium.com/post", model.TierTertiary, "blog platform"},
		{"https://example.org/blog/launch", model.TierTertiary, "blog path"},
		{"https://cs.stanford.edu/people", model.TierPrimary, ".edu TLD"},
		{"https://example.com/about", model.TierUnknown, "unlisted"},
		{"", model.TierUnknown, "empty"},
		{"not a url", model.TierUnknown, "no host"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := classifier.Classify(tt.url); got != tt.expected {
				t.Errorf("Classify(%q) = %v, expected %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestAuthorityClassifier_DomainMapOverrides(t *testing.T) {
	classifier := NewAuthorityClassifier(&AuthorityConfig{
		SecondaryDomains: []string{"wikipedia.org"},
		DomainMap:        map[string]string{"en.wikipedia.org": "tertiary"},
	})

	if got := classifier.Classify("https://en.wikipedia.org/wiki/X"); got != model.TierTertiary {
		t.Errorf("expected domain map to win, got %v", got)
	}
	if got := classifier.Classify("https://de.wikipedia.org/wiki/X"); got != model.TierSecondary {
		t.Errorf("expected secondary for other subdomain, got %v", got)
	}
}

func TestAuthorityClassifier_Annotate(t *testing.T) {
	classifier := NewAuthorityClassifier(nil)
	items := []model.EvidenceItem{
		{URL: "https://arxiv.org/abs/1706.03762"},
		{URL: "https://example.com", ReliabilityWeight: 0.9},
		{URL: ""},
	}

	classifier.Annotate(items)

	if items[0].ReliabilityWeight != 1.0 {
		t.Errorf("expected 1.0 for primary, got %v", items[0].ReliabilityWeight)
	}
	if items[1].ReliabilityWeight != 0.9 {
		t.Errorf("expected existing weight to be kept, got %v", items[1].ReliabilityWeight)
	}
	if items[2].ReliabilityWeight != 0.5 {
		t.Errorf("expected 0.5 for unknown, got %v", items[2].ReliabilityWeight)
	}
}

func TestParseTier(t *testing.T) {
	cases := map[string]model.AuthorityTier{
		"primary":   model.TierPrimary,
		"2":         model.TierSecondary,
		"Tertiary":  model.TierTertiary,
		"something": model.TierUnknown,
	}
	for in, want := range cases {
		if got := ParseTier(in); got != want {
			t.Errorf("ParseTier(%q) = %v, expected %v", in, got, want)
		}
	}
}
