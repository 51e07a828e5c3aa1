package extract

import (
	"regexp"
	"strings"
)

// boilerplatePattern matches conversational openers as whole words, so
// "Thanksgiving" or "Heyerdahl" are not mistaken for "thanks" or "hey".
var boilerplatePattern = regexp.MustCompile(`^(hello|hi|hey|sure|certainly|of course|absolutely|` +
	`thank you|thanks|great question|here is|here's|here are|` +
	`i hope|i'd be happy|i would be happy|let me|feel free|` +
	`as an ai|in conclusion|in summary|to summarize)\b`)

// rejectReason explains why a candidate claim is dropped, or returns "".
func (e *Extractor) rejectReason(text string) string {
	switch {
	case len(text) <= e.minLength:
		return "too short"
	case strings.Contains(text, "{{") && strings.Contains(text, "}}"):
		return "template artifact"
	case isBoilerplate(text):
		return "boilerplate"
	}
	return ""
}

func isBoilerplate(text string) bool {
	return boilerplatePattern.MatchString(strings.ToLower(strings.TrimSpace(text)))
}

var (
	namePattern    = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
	yearPattern    = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)
	capTermPattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*(?:-[A-Za-z0-9]+)*`)
	quotedPattern  = regexp.MustCompile(`["“]([^"”]{2,40})["”]`)
)

// FallbackKeywords derives search keywords from the claim text alone:
// two-word names, a year, capitalized terms and quoted phrases, in that
// order. The result is never empty for non-empty text.
func FallbackKeywords(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(k string) {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] || len(out) >= maxKeywords {
			return
		}
		seen[key] = true
		out = append(out, k)
	}

	for _, m := range namePattern.FindAllString(text, 2) {
		add(m)
	}
	if m := yearPattern.FindString(text); m != "" {
		add(m)
	}
	caps := 0
	for _, m := range capTermPattern.FindAllString(text, -1) {
		if caps >= 2 || len(m) < 2 || coveredBy(m, out) {
			continue
		}
		before := len(out)
		add(m)
		if len(out) > before {
			caps++
		}
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	if len(out) == 0 {
		add(clip(text, 30))
	}
	return out
}

// completeKeywords keeps the model's keywords and tops them up from the
// fallback so every claim carries between 2 and 4 when possible.
func completeKeywords(given []string, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range given {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		out = append(out, k)
		if len(out) == maxKeywords {
			return out
		}
	}
	if len(out) >= minKeywords {
		return out
	}

	for _, k := range FallbackKeywords(text) {
		if len(out) >= maxKeywords {
			break
		}
		if !seen[strings.ToLower(k)] {
			seen[strings.ToLower(k)] = true
			out = append(out, k)
		}
	}
	return out
}

func coveredBy(term string, existing []string) bool {
	for _, e := range existing {
		if strings.Contains(e, term) {
			return true
		}
	}
	return false
}
