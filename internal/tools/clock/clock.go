// Package clock implements the clock.now tool.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/jkaninda/busara/internal/tools"
)

// Tool reports the current time, optionally in a named timezone.
type Tool struct {
	now func() time.Time
}

// NewTool creates a clock tool reading the system clock.
func NewTool() *Tool {
	return &Tool{now: time.Now}
}

// WithNow overrides the clock source. Used by tests.
func (t *Tool) WithNow(fn func() time.Time) *Tool {
	t.now = fn
	return t
}

func (t *Tool) Name() string { return "clock.now" }

func (t *Tool) Description() string {
	return "Get the current date and time. Accepts an optional IANA timezone name such as Europe/Paris; defaults to UTC."
}

func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{"type": "string", "description": "IANA timezone name. Defaults to UTC"},
		},
	}
}

func (t *Tool) Validate(args map[string]any) error {
	if v, ok := args["timezone"]; ok {
		if _, ok := v.(string); !ok {
			return fmt.Errorf("parameter timezone must be a string, got %T", v)
		}
	}
	return nil
}

func (t *Tool) Execute(_ context.Context, args map[string]any) (any, error) {
	name := "UTC"
	if v, ok := args["timezone"].(string); ok && v != "" {
		name = v
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	now := t.now().In(loc)
	return map[string]any{
		"ok":       true,
		"time":     now.Format(time.RFC3339),
		"timezone": loc.String(),
		"unix":     now.Unix(),
	}, nil
}

var _ tools.Tool = (*Tool)(nil)
