package plan

import "strings"

// sanitizeReplacer fixes deterministic corruption patterns seen in backend
// output before JSON parsing. Applying it twice yields the same result, so
// it is safe to run before and after every repair round.
var sanitizeReplacer = strings.NewReplacer(
	// Scheme prefixes accidentally re-quoted by the model.
	`"https"://`, `https://`,
	`"http"://`, `http://`,
	// Smart quotes break JSON string delimiters.
	"“", `"`,
	"”", `"`,
	"‘", `'`,
	"’", `'`,
)

// Sanitize applies deterministic, idempotent string repairs for common
// almost-JSON corruption patterns.
func Sanitize(text string) string {
	return sanitizeReplacer.Replace(text)
}

// StripCodeFences removes a surrounding Markdown code fence, if present.
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 16 && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ExtractJSONObject returns the first balanced top-level JSON object in text.
// Braces inside string literals are ignored. Returns ok=false when no
// balanced object exists.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
