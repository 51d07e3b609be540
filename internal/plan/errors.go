package plan

import "fmt"

// ParseError reports that raw plan text could not be coerced into a
// structurally valid Plan. Raw carries the last text seen so operators can
// diagnose what the backend actually produced.
type ParseError struct {
	Msg string
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("plan parse: %s", e.Msg)
}

// ValidationError reports a plan that parsed but violates the plan contract
// (unknown tool post-coercion, non-map args, symbolic arg references).
type ValidationError struct {
	StepID string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("plan validation: %s", e.Msg)
	}
	return fmt.Sprintf("plan validation: step %q: %s", e.StepID, e.Msg)
}
