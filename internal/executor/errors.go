// Package executor runs the tool-bound steps of a normalized plan in
// dependency order, classifying each outcome as success, soft failure
// (structured payload), or hard failure (the tool call errored). The
// classification is carried in typed errors rather than one overloaded
// channel so the replanning controller can branch on errors.As.
package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPlanTooLarge is returned before any execution when a plan's step count
// exceeds the configured ceiling.
var ErrPlanTooLarge = errors.New("plan exceeds step ceiling")

// SoftFailureError reports a tool that returned a structured failure payload
// instead of erroring. The original payload is carried so the controller can
// read its retryable flag.
type SoftFailureError struct {
	StepID  string
	Tool    string
	Reason  string
	Payload map[string]any
}

func (e *SoftFailureError) Error() string {
	return fmt.Sprintf("step %q: tool %q reported failure: %s", e.StepID, e.Tool, e.Reason)
}

// Retryable reports whether the payload explicitly marked itself retryable.
// Absence of the field means not retryable, the conservative default.
func (e *SoftFailureError) Retryable() bool {
	v, ok := e.Payload["retryable"].(bool)
	return ok && v
}

// HardFailureError reports a tool invocation that errored.
type HardFailureError struct {
	StepID string
	Tool   string
	Err    error
}

func (e *HardFailureError) Error() string {
	return fmt.Sprintf("step %q: tool %q failed: %v", e.StepID, e.Tool, e.Err)
}

func (e *HardFailureError) Unwrap() error { return e.Err }

// CycleError reports that the requires graph over tool steps could not be
// fully ordered. Always fatal; a malformed plan is a contract violation, not
// a transient condition.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among steps: %s", strings.Join(e.Remaining, ", "))
}
