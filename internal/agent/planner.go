package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/plan"
	"github.com/jkaninda/busara/internal/tools"
)

// DefaultMaxRepairAttempts bounds the re-prompt loop for malformed plan JSON.
const DefaultMaxRepairAttempts = 2

// PlanRequest carries everything the plan source needs for one generation
// attempt. ForbiddenTools is sorted by the caller for prompt determinism.
type PlanRequest struct {
	UserInput          string
	Observations       string
	FailureDescription string
	IsReplan           bool
	ForbiddenTools     []string
}

// PlanSource produces a normalized Plan for a request. The production
// implementation is Planner; tests substitute fakes.
type PlanSource interface {
	Generate(ctx context.Context, req PlanRequest) (*plan.Plan, error)
}

// Planner generates plans via the text backend, with bounded repair of
// malformed output and mechanical enforcement of the forbidden-tool set.
type Planner struct {
	backend    llm.Client
	registry   *tools.Registry
	normalizer *plan.Normalizer
	maxRepair  int
	logger     *slog.Logger
}

// NewPlanner creates a Planner over the given backend and tool registry.
func NewPlanner(backend llm.Client, registry *tools.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Planner{
		backend:    backend,
		registry:   registry,
		normalizer: plan.NewNormalizer(registry.List()),
		maxRepair:  DefaultMaxRepairAttempts,
		logger:     logger,
	}
}

// WithMaxRepairAttempts overrides the repair-round bound.
func (p *Planner) WithMaxRepairAttempts(n int) *Planner {
	if n >= 0 {
		p.maxRepair = n
	}
	return p
}

// Generate produces a normalized plan for the request. Local shortcuts
// (memory store/recall, verbatim literal requests) return a compose-only
// plan without touching the backend.
func (p *Planner) Generate(ctx context.Context, req PlanRequest) (*plan.Plan, error) {
	if !req.IsReplan && composeOnlyShortcut(req.UserInput) {
		p.logger.DebugContext(ctx, "planner shortcut, compose-only plan")
		return plan.ComposeOnlyPlan(req.UserInput), nil
	}

	prompt := buildPlannerPrompt(p.registry.Describe(), req)
	text, err := p.backend.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	parsed, err := p.decodeWithRepair(ctx, text)
	if err != nil {
		return nil, err
	}
	normalized, err := p.normalizer.Normalize(parsed)
	if err != nil {
		return nil, fmt.Errorf("plan rejected: %w", err)
	}
	if normalized.Goal == "" {
		normalized.Goal = req.UserInput
	}

	return enforceForbidden(normalized, req, p.logger), nil
}

// decodeWithRepair parses raw plan text, re-prompting the backend up to
// maxRepair times on malformed output. Exhaustion returns the last
// *plan.ParseError carrying the raw text.
func (p *Planner) decodeWithRepair(ctx context.Context, text string) (*plan.Plan, error) {
	parsed, err := plan.Decode(text)
	if err == nil {
		return parsed, nil
	}

	var perr *plan.ParseError
	for attempt := 1; attempt <= p.maxRepair; attempt++ {
		if !errors.As(err, &perr) {
			return nil, err
		}
		p.logger.WarnContext(ctx, "plan output malformed, requesting repair",
			slog.Int("attempt", attempt),
			slog.Int("max", p.maxRepair),
		)
		repaired, cerr := p.backend.Complete(ctx, buildRepairPrompt(perr.Raw))
		if cerr != nil {
			return nil, fmt.Errorf("plan repair request: %w", cerr)
		}
		parsed, err = plan.Decode(repaired)
		if err == nil {
			return parsed, nil
		}
	}
	return nil, err
}

// enforceForbidden replaces any plan that still calls a forbidden tool with
// the deterministic compose-only fallback. The misbehaving backend is never
// re-asked for this cause; the turn must terminate.
func enforceForbidden(pl *plan.Plan, req PlanRequest, logger *slog.Logger) *plan.Plan {
	if len(req.ForbiddenTools) == 0 {
		return pl
	}
	forbidden := make(map[string]struct{}, len(req.ForbiddenTools))
	for _, name := range req.ForbiddenTools {
		forbidden[name] = struct{}{}
	}
	for _, s := range pl.ToolSteps() {
		if _, bad := forbidden[s.Tool]; bad {
			logger.Warn("plan called forbidden tool, substituting compose-only fallback",
				slog.String("tool", s.Tool),
				slog.String("step", s.ID),
			)
			return plan.ComposeOnlyPlan(req.UserInput)
		}
	}
	return pl
}

// composeOnlyShortcut detects requests the planner can answer without tools:
// memory store/recall phrasing and verbatim literal requests.
func composeOnlyShortcut(input string) bool {
	if _, ok := LiteralRequest(input); ok {
		return true
	}
	lower := strings.ToLower(input)
	for _, marker := range []string{
		"remember that",
		"remember this",
		"what do you remember",
		"what did i tell you",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Compile-time check.
var _ PlanSource = (*Planner)(nil)
