package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jkaninda/busara/internal/plan"
	"github.com/jkaninda/busara/internal/tools"
)

// DefaultMaxSteps is the ceiling on steps in a single plan, guarding against
// runaway plans before any execution begins.
const DefaultMaxSteps = 25

// StepExecutor runs the tool steps of a normalized plan.
type StepExecutor struct {
	registry *tools.Registry
	maxSteps int
	logger   *slog.Logger
}

// New creates a StepExecutor over the given tool registry.
func New(registry *tools.Registry, logger *slog.Logger) *StepExecutor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StepExecutor{
		registry: registry,
		maxSteps: DefaultMaxSteps,
		logger:   logger,
	}
}

// WithMaxSteps overrides the plan step ceiling.
func (e *StepExecutor) WithMaxSteps(n int) *StepExecutor {
	if n > 0 {
		e.maxSteps = n
	}
	return e
}

// Execute runs every tool step of p exactly once, in dependency order,
// skipping ids already present in observations (carried forward across
// replans). Successful results are recorded into observations in place.
// Returns the ids executed by this call.
//
// Error classification: *CycleError and unknown-tool errors are structural
// and returned before or instead of tool calls; *SoftFailureError and
// *HardFailureError identify the failing step and tool for the controller.
func (e *StepExecutor) Execute(ctx context.Context, p *plan.Plan, observations map[string]any) ([]string, error) {
	if len(p.Steps) > e.maxSteps {
		return nil, fmt.Errorf("%w: %d steps, limit %d", ErrPlanTooLarge, len(p.Steps), e.maxSteps)
	}

	order, err := topoOrder(p.Steps)
	if err != nil {
		return nil, err
	}

	var executed []string
	for _, id := range order {
		if _, done := observations[id]; done {
			e.logger.DebugContext(ctx, "step already observed, skipping", slog.String("step", id))
			continue
		}
		step := p.Step(id)

		tool := e.registry.Get(step.Tool)
		if tool == nil {
			// Unreachable after normalization; checked because execution trusts it.
			return executed, fmt.Errorf("step %q names unregistered tool %q", step.ID, step.Tool)
		}

		if err := tool.Validate(step.Args); err != nil {
			return executed, &HardFailureError{StepID: step.ID, Tool: step.Tool, Err: err}
		}

		e.logger.InfoContext(ctx, "executing step",
			slog.String("step", step.ID),
			slog.String("tool", step.Tool),
		)
		result, err := tool.Execute(ctx, step.Args)
		if err != nil {
			return executed, &HardFailureError{StepID: step.ID, Tool: step.Tool, Err: err}
		}

		if reason, payload, failed := classifyPayload(result); failed {
			return executed, &SoftFailureError{
				StepID:  step.ID,
				Tool:    step.Tool,
				Reason:  reason,
				Payload: payload,
			}
		}

		observations[step.ID] = result
		executed = append(executed, step.ID)
	}
	return executed, nil
}

// classifyPayload detects the soft-failure shape: a map with ok=false or a
// status of error/failed/failure. The human-readable reason is read
// best-effort from reason, error, or message.
func classifyPayload(result any) (reason string, payload map[string]any, failed bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return "", nil, false
	}

	if okVal, present := m["ok"].(bool); present && !okVal {
		failed = true
	}
	if status, present := m["status"].(string); present {
		switch strings.ToLower(status) {
		case "error", "failed", "failure":
			failed = true
		}
	}
	if !failed {
		return "", nil, false
	}

	for _, key := range []string{"reason", "error", "message"} {
		if v, ok := m[key].(string); ok && v != "" {
			reason = v
			break
		}
	}
	if reason == "" {
		reason = "tool reported failure without a reason"
	}
	return reason, m, true
}
