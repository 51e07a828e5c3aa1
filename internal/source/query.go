package source

import (
	"regexp"
	"strings"
)

var (
	// "1969: ...", "1950s: ...", "In 1969, ..."
	leadingYear     = regexp.MustCompile(`^(?:[Ii]n\s+)?\d{4}s?\s*[:,]\s*`)
	properName      = regexp.MustCompile(`[A-Z][a-z]+\s+[A-Z][a-z]+`)
	capitalizedRun  = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`)
	capitalizedTerm = regexp.MustCompile(`[A-Z][A-Za-z0-9-]+`)
)

// EncyclopedicQuery reduces a claim keyword or sentence to a likely article
// title: the first two-word proper name, else the first capitalized run,
// else the first three words, else the first 30 characters.
func EncyclopedicQuery(query string) string {
	q := leadingYear.ReplaceAllString(strings.TrimSpace(query), "")

	if name := properName.FindString(q); name != "" {
		return name
	}
	if run := capitalizedRun.FindString(q); run != "" {
		return run
	}
	words := strings.Fields(q)
	if len(words) > 3 {
		return strings.Join(words[:3], " ")
	}
	return prefix(q, 30)
}

// AcademicQuery keeps up to three capitalized terms, else the first 30
// characters.
func AcademicQuery(query string) string {
	q := leadingYear.ReplaceAllString(strings.TrimSpace(query), "")

	terms := capitalizedTerm.FindAllString(q, 3)
	if len(terms) > 0 {
		return strings.Join(terms, " ")
	}
	return prefix(q, 30)
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(r[:n]))
}
