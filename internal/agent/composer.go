package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultObservationMaxChars caps a single observation's rendered size in
// prompts; anything beyond is cut and flagged.
const DefaultObservationMaxChars = 8000

var literalPattern = regexp.MustCompile(`(?is)\b(?:return|output)\s+exactly(?:\s+the\s+string)?\s*:\s*(.+)`)

// LiteralRequest detects requests of the shape "return/output exactly
// (the string): X" and extracts X. Such requests are answered verbatim,
// deterministically, with zero backend calls.
func LiteralRequest(input string) (string, bool) {
	m := literalPattern.FindStringSubmatch(input)
	if m == nil {
		return "", false
	}
	literal := strings.TrimSpace(m[1])
	// Strip one layer of symmetric quoting around the literal.
	if len(literal) >= 2 {
		first, last := literal[0], literal[len(literal)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			literal = literal[1 : len(literal)-1]
		}
	}
	if literal == "" {
		return "", false
	}
	return literal, true
}

// FormatObservations renders an observation map as compact text, one entry
// per step id in sorted order, truncating any single value beyond maxChars.
func FormatObservations(observations map[string]any, maxChars int) string {
	if len(observations) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = DefaultObservationMaxChars
	}
	ids := make([]string, 0, len(observations))
	for id := range observations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		rendered := renderValue(observations[id])
		if len(rendered) > maxChars {
			rendered = truncateRunes(rendered, maxChars) + "...(truncated)"
		}
		fmt.Fprintf(&b, "%s: %s\n", id, rendered)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateRunes cuts s to at most maxBytes without splitting a rune.
func truncateRunes(s string, maxBytes int) string {
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// fallbackAnswer is the fixed, locally-constructed terminal answer. It always
// mentions that the request failed and echoes the original request so the
// user can see what was attempted; composition never loops back into
// replanning.
func fallbackAnswer(userInput, failure, observations string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I'm sorry, but your request failed: %q\n", userInput)
	if failure != "" {
		fmt.Fprintf(&b, "\nWhat went wrong: %s\n", failure)
	}
	if observations != "" {
		fmt.Fprintf(&b, "\nPartial results gathered before the failure:\n%s\n", observations)
	}
	b.WriteString("\nYou could rephrase the request or try again later.")
	return b.String()
}
