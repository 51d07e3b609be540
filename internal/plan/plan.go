// Package plan defines the plan model produced by the text backend and the
// normalizer that turns raw, untrusted plan data into a structurally valid
// Plan. The normalizer is the single choke point: no downstream component
// ever sees unvalidated plan data.
package plan

import (
	"sort"
)

// ComposeStepID is the fixed id of the mandatory terminal compose step.
const ComposeStepID = "compose_answer"

// Step is one unit of a plan, optionally bound to a tool call.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Requires    []string       `json:"requires"`

	// CoercedFrom records the unknown tool name a step originally requested
	// before normalization cleared it. Non-empty means the source model tried
	// to invent a capability; the step is kept visible but never executed.
	CoercedFrom string `json:"-"`
}

// IsToolStep reports whether the step is bound to a tool call.
func (s *Step) IsToolStep() bool {
	return s.Tool != ""
}

// IsCompose reports whether the step is the terminal compose step.
func (s *Step) IsCompose() bool {
	return s.ID == ComposeStepID
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	cp := &Step{
		ID:          s.ID,
		Description: s.Description,
		Tool:        s.Tool,
		CoercedFrom: s.CoercedFrom,
	}
	if s.Args != nil {
		cp.Args = make(map[string]any, len(s.Args))
		for k, v := range s.Args {
			cp.Args[k] = v
		}
	}
	if s.Requires != nil {
		cp.Requires = append([]string(nil), s.Requires...)
	}
	return cp
}

// Plan is a goal plus an ordered list of steps ending in the compose step.
// A Plan is created once per attempt and never mutated in place; a replan
// produces a wholly new Plan value.
type Plan struct {
	Goal  string  `json:"goal"`
	Steps []*Step `json:"steps"`
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	cp := &Plan{Goal: p.Goal, Steps: make([]*Step, len(p.Steps))}
	for i, s := range p.Steps {
		cp.Steps[i] = s.Clone()
	}
	return cp
}

// ToolSteps returns the steps bound to tool calls, in plan order.
func (p *Plan) ToolSteps() []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if s.IsToolStep() {
			out = append(out, s)
		}
	}
	return out
}

// ToolStepIDs returns the sorted ids of all tool steps.
func (p *Plan) ToolStepIDs() []string {
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.IsToolStep() {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ComposeStep returns the compose step, or nil if the plan has none.
func (p *Plan) ComposeStep() *Step {
	for _, s := range p.Steps {
		if s.IsCompose() {
			return s
		}
	}
	return nil
}

// ComposeOnly reports whether the plan consists solely of the compose step.
func (p *Plan) ComposeOnly() bool {
	return len(p.Steps) == 1 && p.Steps[0].IsCompose()
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id string) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ComposeOnlyPlan builds the deterministic fallback plan containing only the
// compose step. Used when a replan cannot be trusted (e.g. the source kept
// calling a forbidden tool) so the turn always terminates.
func ComposeOnlyPlan(goal string) *Plan {
	return &Plan{
		Goal: goal,
		Steps: []*Step{{
			ID:          ComposeStepID,
			Description: "Compose the final answer from available observations",
			Requires:    []string{},
		}},
	}
}
