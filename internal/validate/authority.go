package validate

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

// AuthorityConfig controls how evidence URLs are mapped to authority tiers.
type AuthorityConfig struct {
	PrimaryDomains   []string          `mapstructure:"primary_domains" yaml:"primary_domains"`
	SecondaryDomains []string          `mapstructure:"secondary_domains" yaml:"secondary_domains"`
	TertiaryDomains  []string          `mapstructure:"tertiary_domains" yaml:"tertiary_domains"`
	DomainMap        map[string]string `mapstructure:"domain_map" yaml:"domain_map,omitempty"` // host -> tier
	PathPatterns     []PathPattern     `mapstructure:"path_patterns" yaml:"path_patterns,omitempty"`
}

// PathPattern assigns a tier to URLs whose path matches Pattern.
type PathPattern struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Tier    string `mapstructure:"tier" yaml:"tier"`
}

// DefaultAuthorityConfig returns the built-in domain lists.
func DefaultAuthorityConfig() AuthorityConfig {
	return AuthorityConfig{
		PrimaryDomains: []string{
			"arxiv.org", "doi.org", "nature.com", "science.org", "nih.gov",
			"who.int", "europa.eu", "sec.gov", "acm.org", "ieee.org",
		},
		SecondaryDomains: []string{
			"wikipedia.org", "britannica.com", "reuters.com", "apnews.com",
			"bbc.co.uk", "bbc.com", "nytimes.com", "theguardian.com", "bloomberg.com",
		},
		TertiaryDomains: []string{
			"medium.com", "reddit.com", "quora.com", "blogspot.com", "substack.com",
		},
		PathPatterns: []PathPattern{
			{Pattern: `^/(abs|pdf)/\d{4}\.\d{4,5}`, Tier: "primary"},
			{Pattern: `^/(blog|blogs|forum|forums)/`, Tier: "tertiary"},
		},
	}
}

// AuthorityClassifier classifies sources into authority tiers
type AuthorityClassifier struct {
	domainMap    map[string]model.AuthorityTier
	suffixes     []domainTier
	pathPatterns []*compiledPattern
}

type domainTier struct {
	domain string
	tier   model.AuthorityTier
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
}

// NewAuthorityClassifier creates a new authority classifier. A nil config
// uses DefaultAuthorityConfig.
func NewAuthorityClassifier(config *AuthorityConfig) *AuthorityClassifier {
	if config == nil {
		def := DefaultAuthorityConfig()
		config = &def
	}

	classifier := &AuthorityClassifier{
		domainMap: make(map[string]model.AuthorityTier),
	}

	for host, tier := range config.DomainMap {
		classifier.domainMap[strings.ToLower(host)] = ParseTier(tier)
	}

	// Order matters: earlier lists win on overlapping suffixes
	for _, list := range []struct {
		domains []string
		tier    model.AuthorityTier
	}{
		{config.PrimaryDomains, model.TierPrimary},
		{config.SecondaryDomains, model.TierSecondary},
		{config.TertiaryDomains, model.TierTertiary},
	} {
		for _, d := range list.domains {
			classifier.suffixes = append(classifier.suffixes, domainTier{domain: strings.ToLower(d), tier: list.tier})
		}
	}

	for _, pp := range config.PathPatterns {
		if re, err := regexp.Compile(pp.Pattern); err == nil {
			classifier.pathPatterns = append(classifier.pathPatterns, &compiledPattern{
				pattern: re,
				tier:    ParseTier(pp.Tier),
			})
		}
	}

	return classifier
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	if rawURL == "" {
		return model.TierUnknown
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.TierUnknown
	}

	host := strings.ToLower(parsed.Hostname())

	if tier, ok := a.domainMap[host]; ok {
		return tier
	}

	// foo.bar.gov.uk matches gov.uk
	for _, dt := range a.suffixes {
		if host == dt.domain || strings.HasSuffix(host, "."+dt.domain) {
			return dt.tier
		}
	}

	for _, cp := range a.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.tier
		}
	}

	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return model.TierPrimary
	}

	return model.TierUnknown
}

// Weight maps a tier to the reliability weight carried on evidence items.
func Weight(tier model.AuthorityTier) float64 {
	switch tier {
	case model.TierPrimary:
		return 1.0
	case model.TierSecondary:
		return 0.8
	case model.TierTertiary:
		return 0.6
	default:
		return 0.5
	}
}

// ReliabilityWeight classifies rawURL and returns its weight.
func (a *AuthorityClassifier) ReliabilityWeight(rawURL string) float64 {
	return Weight(a.Classify(rawURL))
}

// Annotate fills ReliabilityWeight on items that do not carry one yet.
func (a *AuthorityClassifier) Annotate(items []model.EvidenceItem) {
	for i := range items {
		if items[i].ReliabilityWeight == 0 {
			items[i].ReliabilityWeight = a.ReliabilityWeight(items[i].URL)
		}
	}
}

// ParseTier converts a tier string to AuthorityTier
func ParseTier(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	case "tertiary", "3":
		return model.TierTertiary
	default:
		return model.TierUnknown
	}
}
