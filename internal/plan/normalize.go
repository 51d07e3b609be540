package plan

import (
	"fmt"
	"strings"
)

// Normalizer repairs and validates raw plans against a fixed tool-name set.
// Normalization is idempotent: normalizing an already-normalized plan yields
// an identical structure.
type Normalizer struct {
	known map[string]struct{}
}

// NewNormalizer creates a Normalizer for the given registered tool names.
func NewNormalizer(toolNames []string) *Normalizer {
	known := make(map[string]struct{}, len(toolNames))
	for _, n := range toolNames {
		known[n] = struct{}{}
	}
	return &Normalizer{known: known}
}

// Normalize applies the full repair pipeline in fixed order and returns a new
// structurally valid Plan. The input plan is not mutated.
func (n *Normalizer) Normalize(p *Plan) (*Plan, error) {
	out := p.Clone()

	n.completeFields(out)
	n.coerceUnknownTools(out)
	n.enforceComposeStep(out)
	n.pruneSteps(out)
	n.sanitizeRequires(out)
	if err := n.validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// completeFields defaults description, requires, and args coherently with the
// step's tool binding, and drops steps whose id duplicates an earlier one.
func (n *Normalizer) completeFields(p *Plan) {
	seen := make(map[string]struct{}, len(p.Steps))
	steps := p.Steps[:0]
	for _, s := range p.Steps {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}

		if s.Description == "" {
			s.Description = "Step " + s.ID
		}
		if s.Requires == nil {
			s.Requires = []string{}
		}
		if s.Tool == "" {
			s.Args = nil
		} else if s.Args == nil {
			s.Args = map[string]any{}
		}
		steps = append(steps, s)
	}
	p.Steps = steps
}

// coerceUnknownTools clears the tool binding of steps naming unregistered
// tools. The step is kept, flagged, so diagnostics can distinguish
// "legitimately no tool" from "invented tool we refused to call".
func (n *Normalizer) coerceUnknownTools(p *Plan) {
	for _, s := range p.Steps {
		if s.Tool == "" || s.IsCompose() {
			continue
		}
		if _, ok := n.known[s.Tool]; ok {
			continue
		}
		s.CoercedFrom = s.Tool
		s.Tool = ""
		s.Args = nil
		marker := fmt.Sprintf(" [requested unknown tool %q]", s.CoercedFrom)
		if !strings.Contains(s.Description, marker) {
			s.Description += marker
		}
	}
}

// enforceComposeStep guarantees a terminal compose step with tool and args
// absent, appending one when the source omitted it.
func (n *Normalizer) enforceComposeStep(p *Plan) {
	compose := p.ComposeStep()
	if compose == nil {
		compose = &Step{
			ID:          ComposeStepID,
			Description: "Compose the final answer from observations",
			Requires:    []string{},
		}
		p.Steps = append(p.Steps, compose)
		return
	}
	compose.Tool = ""
	compose.Args = nil
	compose.CoercedFrom = ""
}

// pruneSteps drops non-tool steps other than the compose step and coerced
// unknown-tool steps, preserving original relative order with the compose
// step moved last.
func (n *Normalizer) pruneSteps(p *Plan) {
	var kept []*Step
	var compose *Step
	for _, s := range p.Steps {
		switch {
		case s.IsCompose():
			compose = s
		case s.IsToolStep() || s.CoercedFrom != "":
			kept = append(kept, s)
		}
	}
	p.Steps = append(kept, compose)
}

// sanitizeRequires drops requires entries that do not name a real, distinct
// step, then forces the compose step's requires to exactly the tool-step ids.
func (n *Normalizer) sanitizeRequires(p *Plan) {
	ids := make(map[string]struct{}, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = struct{}{}
	}
	for _, s := range p.Steps {
		if s.IsCompose() {
			s.Requires = p.ToolStepIDs()
			if s.Requires == nil {
				s.Requires = []string{}
			}
			continue
		}
		reqs := s.Requires[:0]
		seen := make(map[string]struct{}, len(s.Requires))
		for _, r := range s.Requires {
			if r == s.ID {
				continue
			}
			if _, ok := ids[r]; !ok {
				continue
			}
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			reqs = append(reqs, r)
		}
		s.Requires = reqs
	}
}

// validate rejects plans that survived repair but still violate the plan
// contract. Unknown tools should be unreachable after coercion; the check
// stays because execution trusts it.
func (n *Normalizer) validate(p *Plan) error {
	for _, s := range p.Steps {
		if s.IsCompose() {
			continue
		}
		if s.Tool == "" {
			continue
		}
		if _, ok := n.known[s.Tool]; !ok {
			return &ValidationError{StepID: s.ID, Msg: fmt.Sprintf("unknown tool %q", s.Tool)}
		}
		if ref, found := findSymbolicRef(s.Args); found {
			return &ValidationError{
				StepID: s.ID,
				Msg:    fmt.Sprintf("args contain symbolic reference %q; plans must carry concrete values", ref),
			}
		}
	}
	return nil
}

// findSymbolicRef walks an args value looking for cross-step result
// placeholders ("$step_1.output", "{{step_1}}", {"$ref": ...}). Plans must be
// fully concretized before execution; no lazy bindings.
func findSymbolicRef(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "$") {
			return val, true
		}
		if strings.Contains(val, "{{") && strings.Contains(val, "}}") {
			return val, true
		}
	case map[string]any:
		for k, inner := range val {
			if strings.HasPrefix(k, "$") {
				return k, true
			}
			if ref, found := findSymbolicRef(inner); found {
				return ref, true
			}
		}
	case []any:
		for _, inner := range val {
			if ref, found := findSymbolicRef(inner); found {
				return ref, true
			}
		}
	}
	return "", false
}
