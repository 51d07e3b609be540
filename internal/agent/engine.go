// Package agent implements the plan/execute/replan control loop: a Planner
// that turns requests into normalized plans, an Engine that drives execution
// across bounded replanning attempts, and the answer composition that ends
// every turn with a string for the user.
package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/busara/internal/executor"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/plan"
)

// DefaultMaxReplans bounds replanning rounds within one user turn.
const DefaultMaxReplans = 2

// defaultRecallMarkers re-enable memory context after a failure when the
// user is explicitly asking about past exchanges. The exact phrases are a
// heuristic and configurable, not load-bearing.
var defaultRecallMarkers = []string{
	"remember",
	"last time",
	"previously",
	"earlier you",
	"what did you",
}

// EpisodicMemory is the conversation-log collaborator consumed by the
// composer. It is an opaque side channel with no ordering dependency on
// plan execution.
type EpisodicMemory interface {
	BuildContext(query string) string
	Append(userText, assistantText string) error
}

// SemanticMemory is the vector-recall collaborator. Failures are degradable
// and must never fail a turn, so the interface returns only text.
type SemanticMemory interface {
	BuildContext(ctx context.Context, query string) string
}

// Engine drives one control loop: plan, execute, replan on failure within a
// bounded budget, then compose exactly one answer. Its outermost contract is
// that the user always receives a string; only context cancellation is
// surfaced as an error so orchestration timeouts propagate.
type Engine struct {
	source   PlanSource
	exec     *executor.StepExecutor
	backend  llm.Client
	episodic EpisodicMemory
	semantic SemanticMemory
	obs      *observability.Observability
	logger   *slog.Logger

	maxReplans    int
	obsMaxChars   int
	recallMarkers []string
}

// NewEngine creates an Engine over a plan source, a step executor, and the
// composition backend.
func NewEngine(source PlanSource, exec *executor.StepExecutor, backend llm.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		source:        source,
		exec:          exec,
		backend:       backend,
		logger:        logger,
		maxReplans:    DefaultMaxReplans,
		obsMaxChars:   DefaultObservationMaxChars,
		recallMarkers: defaultRecallMarkers,
	}
}

// WithEpisodicMemory attaches the conversation log.
func (e *Engine) WithEpisodicMemory(m EpisodicMemory) *Engine {
	e.episodic = m
	return e
}

// WithSemanticMemory attaches vector recall.
func (e *Engine) WithSemanticMemory(m SemanticMemory) *Engine {
	e.semantic = m
	return e
}

// WithObservability attaches metrics and tracing.
func (e *Engine) WithObservability(obs *observability.Observability) *Engine {
	e.obs = obs
	return e
}

// WithMaxReplans overrides the replan budget.
func (e *Engine) WithMaxReplans(n int) *Engine {
	if n >= 0 {
		e.maxReplans = n
	}
	return e
}

// WithObservationMaxChars overrides the per-observation render cap.
func (e *Engine) WithObservationMaxChars(n int) *Engine {
	if n > 0 {
		e.obsMaxChars = n
	}
	return e
}

// WithRecallMarkers overrides the phrases that re-enable memory context
// after a failure.
func (e *Engine) WithRecallMarkers(markers []string) *Engine {
	if len(markers) > 0 {
		e.recallMarkers = markers
	}
	return e
}

// Run processes one user turn and returns the answer. All plan, tool, and
// composition failures degrade to explanatory strings; the returned error is
// non-nil only when ctx was cancelled or timed out.
func (e *Engine) Run(ctx context.Context, userInput string) (string, error) {
	ctx, span := e.startSpan(ctx, "agent.turn")
	defer span.End()

	observations := make(map[string]any)
	forbidden := make(map[string]struct{})
	replans := 0
	var failureDesc string

	current, genErr := e.generate(ctx, PlanRequest{UserInput: userInput})

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if genErr == nil {
			execErr := e.execute(ctx, current, observations)
			if execErr == nil {
				// Recovered turns show no failure text, but memory stays
				// suppressed so old failures cannot contaminate the answer.
				answer := e.compose(ctx, userInput, current, observations, "", failureDesc != "")
				e.finishTurn(ctx, userInput, answer, "success")
				return answer, nil
			}
			if err := ctx.Err(); err != nil {
				return "", err
			}
			var structural bool
			failureDesc, structural = e.classifyFailure(execErr, forbidden)
			if structural {
				answer := fallbackAnswer(userInput, failureDesc, FormatObservations(observations, e.obsMaxChars))
				e.finishTurn(ctx, userInput, answer, "failed")
				return answer, nil
			}
		} else {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			failureDesc = "planning failed: " + genErr.Error()
			e.logger.WarnContext(ctx, "plan generation failed", slog.String("error", genErr.Error()))
		}

		if replans >= e.maxReplans {
			e.logger.WarnContext(ctx, "replan budget exhausted",
				slog.Int("replans", replans),
				slog.String("failure", failureDesc),
			)
			answer := fallbackAnswer(userInput, failureDesc, FormatObservations(observations, e.obsMaxChars))
			e.finishTurn(ctx, userInput, answer, "failed")
			return answer, nil
		}
		replans++
		e.obs.MetricsOrNil().RecordReplan()

		current, genErr = e.generate(ctx, PlanRequest{
			UserInput:          userInput,
			Observations:       FormatObservations(observations, e.obsMaxChars),
			FailureDescription: failureDesc,
			IsReplan:           true,
			ForbiddenTools:     sortedNames(forbidden),
		})
	}
}

// generate asks the plan source for a plan, then applies numeric-id
// normalization and a final mechanical forbidden check; a violating plan is
// replaced by the deterministic compose-only fallback, never re-requested.
func (e *Engine) generate(ctx context.Context, req PlanRequest) (*plan.Plan, error) {
	p, err := e.source.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	p = plan.NormalizeStepIDs(p)
	return enforceForbidden(p, req, e.logger), nil
}

func (e *Engine) execute(ctx context.Context, p *plan.Plan, observations map[string]any) error {
	executed, err := e.exec.Execute(ctx, p, observations)
	for _, id := range executed {
		if step := p.Step(id); step != nil {
			e.obs.MetricsOrNil().RecordToolExecution(step.Tool, "success")
		}
	}
	return err
}

// classifyFailure converts an execution error into a failure description,
// updates the forbidden-tool set per the retryability policy, and reports
// whether the fault is structural (never replanned).
func (e *Engine) classifyFailure(err error, forbidden map[string]struct{}) (string, bool) {
	var serr *executor.SoftFailureError
	var herr *executor.HardFailureError
	var cerr *executor.CycleError

	switch {
	case errors.As(err, &serr):
		if !serr.Retryable() {
			forbidden[serr.Tool] = struct{}{}
		}
		e.obs.MetricsOrNil().RecordToolExecution(serr.Tool, "soft_failure")
		return serr.Error(), false

	case errors.As(err, &herr):
		forbidden[herr.Tool] = struct{}{}
		e.obs.MetricsOrNil().RecordToolExecution(herr.Tool, "hard_failure")
		return herr.Error(), false

	case errors.As(err, &cerr):
		return cerr.Error(), true

	case errors.Is(err, executor.ErrPlanTooLarge):
		// Runaway plan: worth one replan, no tool at fault.
		return err.Error(), false

	default:
		// Unknown tool post-normalization and other contract violations.
		return err.Error(), true
	}
}

// compose builds the final answer. Literal requests bypass the backend
// entirely; composition errors degrade to the fixed fallback; memory context
// is included only when this turn had no failure, unless the user explicitly
// asked about past exchanges.
func (e *Engine) compose(ctx context.Context, userInput string, p *plan.Plan, observations map[string]any, failureDesc string, failureOccurred bool) string {
	if literal, ok := LiteralRequest(userInput); ok && p.ComposeOnly() && len(observations) == 0 && failureDesc == "" {
		e.logger.DebugContext(ctx, "literal passthrough, skipping backend")
		return literal
	}

	memoryContext := ""
	if (failureDesc == "" && !failureOccurred) || e.asksAboutPast(userInput) {
		memoryContext = e.memoryContext(ctx, userInput)
	}

	formatted := FormatObservations(observations, e.obsMaxChars)
	prompt := buildComposePrompt(userInput, formatted, failureDesc, memoryContext)

	answer, err := e.backend.Complete(ctx, prompt)
	if err != nil {
		e.logger.WarnContext(ctx, "composition failed, using fallback",
			slog.String("error", err.Error()),
		)
		if failureDesc == "" {
			failureDesc = "composing the answer failed: " + err.Error()
		}
		return fallbackAnswer(userInput, failureDesc, formatted)
	}
	return strings.TrimSpace(answer)
}

func (e *Engine) memoryContext(ctx context.Context, query string) string {
	var parts []string
	if e.episodic != nil {
		if c := e.episodic.BuildContext(query); c != "" {
			parts = append(parts, c)
		}
	}
	if e.semantic != nil {
		if c := e.semantic.BuildContext(ctx, query); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}

func (e *Engine) asksAboutPast(input string) bool {
	lower := strings.ToLower(input)
	for _, marker := range e.recallMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// finishTurn records the exchange and turn metrics. Memory write failures
// are logged, never surfaced.
func (e *Engine) finishTurn(ctx context.Context, userInput, answer, status string) {
	e.obs.MetricsOrNil().RecordTurn(status)
	if e.episodic != nil {
		if err := e.episodic.Append(userInput, answer); err != nil {
			e.logger.WarnContext(ctx, "memory append failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := e.obs.TracerOrNil().Tracer()
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.Int("agent.max_replans", e.maxReplans))
	return ctx, span
}

func sortedNames(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
