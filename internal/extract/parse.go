package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is returned when a model response holds no usable claim array.
var ErrParse = errors.New("unparseable extraction response")

// RawClaim is one element of the model's claim array.
type RawClaim struct {
	Output     outputNumber `json:"output"`
	Claim      string       `json:"claim"`
	Keywords   []string     `json:"keywords"`
	Domain     string       `json:"domain"`
	Confidence float64      `json:"confidence"`
}

// outputNumber accepts 3 or "3".
type outputNumber int

func (o *outputNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*o = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*o = 0
		return nil
	}
	*o = outputNumber(n)
	return nil
}

// ParseClaims recovers the claim array from a model response. It tolerates
// code fences, prose around the JSON and a {"claims": [...]} wrapper.
func ParseClaims(response string) ([]RawClaim, error) {
	text := stripFences(strings.TrimSpace(response))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}

	var claims []RawClaim
	if err := json.Unmarshal([]byte(text), &claims); err == nil {
		return claims, nil
	}

	var wrapped struct {
		Claims []RawClaim `json:"claims"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Claims != nil {
		return wrapped.Claims, nil
	}

	if arr := findArray(text); arr != "" {
		if err := json.Unmarshal([]byte(arr), &claims); err == nil {
			return claims, nil
		}
	}

	if strings.EqualFold(text, "none") {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: no JSON claim array in %d-byte response", ErrParse, len(response))
}

func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	start := strings.Index(s, "```")
	rest := s[start+3:]
	// Drop the language tag line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// findArray returns the first balanced [...] span, ignoring brackets inside
// JSON strings.
func findArray(s string) string {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
