// Package failing provides tools that fail on purpose. They are registered
// only under test and demo configurations to exercise the replan path.
package failing

import (
	"context"
	"errors"

	"github.com/jkaninda/busara/internal/tools"
)

// AlwaysFail returns an error from every execution.
type AlwaysFail struct{}

func (AlwaysFail) Name() string                  { return "always_fail" }
func (AlwaysFail) Description() string           { return "Always fails with an error. For testing only." }
func (AlwaysFail) InputSchema() map[string]any   { return map[string]any{"type": "object"} }
func (AlwaysFail) Validate(map[string]any) error { return nil }

func (AlwaysFail) Execute(context.Context, map[string]any) (any, error) {
	return nil, errors.New("this tool always fails")
}

// SoftFail returns a structured failure payload from every execution. The
// retryable flag is echoed from its arguments.
type SoftFail struct{}

func (SoftFail) Name() string                  { return "soft_fail" }
func (SoftFail) Description() string           { return "Always returns a failure payload. For testing only." }
func (SoftFail) InputSchema() map[string]any   { return map[string]any{"type": "object"} }
func (SoftFail) Validate(map[string]any) error { return nil }

func (SoftFail) Execute(_ context.Context, args map[string]any) (any, error) {
	retryable, _ := args["retryable"].(bool)
	return map[string]any{
		"ok":        false,
		"reason":    "soft_fail tool invoked",
		"retryable": retryable,
	}, nil
}

var (
	_ tools.Tool = AlwaysFail{}
	_ tools.Tool = SoftFail{}
)
