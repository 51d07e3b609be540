package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Decode parses raw backend text into an unvalidated Plan. It sanitizes the
// text, strips code fences, and salvages the first balanced JSON object when
// the whole text is not valid JSON. The result still needs Normalize before
// execution. Failures return a *ParseError carrying the raw text.
func Decode(text string) (*Plan, error) {
	cleaned := Sanitize(StripCodeFences(text))

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		obj, ok := ExtractJSONObject(cleaned)
		if !ok {
			return nil, &ParseError{Msg: "no JSON object found in backend output", Raw: text}
		}
		if err := json.Unmarshal([]byte(obj), &raw); err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("invalid JSON: %v", err), Raw: text}
		}
	}
	return fromRaw(raw, text)
}

// fromRaw builds a Plan from a decoded JSON object, coercing loosely-typed
// fields the way backends tend to emit them (numeric ids, null tools).
func fromRaw(raw map[string]any, origText string) (*Plan, error) {
	p := &Plan{}
	if g, ok := raw["goal"].(string); ok {
		p.Goal = g
	}

	rawSteps, ok := raw["steps"].([]any)
	if !ok {
		return nil, &ParseError{Msg: `"steps" is missing or not an array`, Raw: origText}
	}

	for i, rs := range rawSteps {
		m, ok := rs.(map[string]any)
		if !ok {
			return nil, &ParseError{Msg: fmt.Sprintf("step %d is not an object", i), Raw: origText}
		}
		step := &Step{ID: coerceID(m["id"], i)}
		if d, ok := m["description"].(string); ok {
			step.Description = d
		}
		switch t := m["tool"].(type) {
		case string:
			step.Tool = t
		case nil:
			// tool-less step
		default:
			return nil, &ParseError{Msg: fmt.Sprintf("step %q: tool is not a string", step.ID), Raw: origText}
		}
		switch a := m["args"].(type) {
		case map[string]any:
			step.Args = a
		case nil:
			// defaulted by the normalizer
		default:
			return nil, &ParseError{Msg: fmt.Sprintf("step %q: args is not an object", step.ID), Raw: origText}
		}
		if reqs, ok := m["requires"].([]any); ok {
			for _, r := range reqs {
				step.Requires = append(step.Requires, coerceID(r, -1))
			}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// coerceID stringifies ids the backend may emit as numbers. A missing id
// falls back to the step's position.
func coerceID(v any, pos int) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		if pos >= 0 {
			return strconv.Itoa(pos)
		}
		return ""
	}
}
