package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Builtin role names.
const (
	RoleGeneralist = "generalist"
	RoleResearcher = "researcher"
	RoleReviewer   = "reviewer"
)

// Runner executes one work item's input to completion and returns its
// textual output.
type Runner interface {
	Run(ctx context.Context, input string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, input string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// RoleRegistry maps role names to runners. The capability set is fixed at
// startup; registration happens during wiring, resolution at run time.
type RoleRegistry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRoleRegistry creates an empty role registry.
func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{runners: make(map[string]Runner)}
}

// Register adds a role. Registering a duplicate name panics; it is a wiring
// bug that must surface at startup.
func (r *RoleRegistry) Register(name string, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[name]; exists {
		panic(fmt.Sprintf("role %q registered twice", name))
	}
	r.runners[name] = runner
}

// Resolve returns the runner for a role name.
func (r *RoleRegistry) Resolve(name string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[name]
	return runner, ok
}

// Has reports whether the role is registered.
func (r *RoleRegistry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Names returns all registered role names, sorted.
func (r *RoleRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoleAgent runs work items through an agent engine with a role-specific
// system prefix prepended to every input.
type RoleAgent struct {
	role   string
	prefix string
	engine Runner
}

// NewRoleAgent wraps an engine for the given role.
func NewRoleAgent(role string, engine Runner) *RoleAgent {
	return &RoleAgent{role: role, prefix: RolePrompt(role), engine: engine}
}

// Role returns the agent's role name.
func (r *RoleAgent) Role() string { return r.role }

func (r *RoleAgent) Run(ctx context.Context, input string) (string, error) {
	var b strings.Builder
	b.WriteString(r.prefix)
	b.WriteString("\n\n")
	b.WriteString(input)

	out, err := r.engine.Run(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("role %s: %w", r.role, err)
	}
	return out, nil
}

// BuiltinRoles returns a registry with the three builtin roles, all backed
// by the same engine but each with its own system prefix.
func BuiltinRoles(engine Runner) *RoleRegistry {
	reg := NewRoleRegistry()
	for _, role := range []string{RoleGeneralist, RoleResearcher, RoleReviewer} {
		reg.Register(role, NewRoleAgent(role, engine))
	}
	return reg
}

var _ Runner = (*RoleAgent)(nil)
