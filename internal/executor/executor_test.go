package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/jkaninda/busara/internal/plan"
	"github.com/jkaninda/busara/internal/tools"
)

// fakeTool records invocations and returns a canned result or error.
type fakeTool struct {
	name   string
	result any
	err    error

	mu    sync.Mutex
	calls []map[string]any
}

func (f *fakeTool) Name() string                          { return f.name }
func (f *fakeTool) Description() string                   { return "fake " + f.name }
func (f *fakeTool) InputSchema() map[string]any           { return map[string]any{"type": "object"} }
func (f *fakeTool) Validate(args map[string]any) error    { return nil }
func (f *fakeTool) Execute(_ context.Context, args map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeTool) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func registryWith(ts ...*fakeTool) *tools.Registry {
	reg := tools.NewRegistry()
	for _, t := range ts {
		reg.Register(t)
	}
	return reg
}

func toolStep(id, tool string, requires ...string) *plan.Step {
	if requires == nil {
		requires = []string{}
	}
	return &plan.Step{ID: id, Description: id, Tool: tool, Args: map[string]any{}, Requires: requires}
}

func TestExecuteTopologicalOrder(t *testing.T) {
	var order []string
	reg := tools.NewRegistry()
	for _, name := range []string{"t_a", "t_b", "t_c", "t_d"} {
		name := name
		reg.Register(&recordingTool{name: name, order: &order})
	}

	// d depends on b and c; b and c depend on a.
	p := &plan.Plan{Steps: []*plan.Step{
		{ID: "d", Tool: "t_d", Requires: []string{"b", "c"}},
		{ID: "c", Tool: "t_c", Requires: []string{"a"}},
		{ID: "b", Tool: "t_b", Requires: []string{"a"}},
		{ID: "a", Tool: "t_a", Requires: []string{}},
	}}

	obs := map[string]any{}
	executed, err := New(reg, nil).Execute(context.Background(), p, obs)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"a", "b", "c", "d"} // lexicographic tie-break between b and c
	if !reflect.DeepEqual(executed, want) {
		t.Errorf("executed = %v, want %v", executed, want)
	}
	if len(obs) != 4 {
		t.Errorf("observations = %v", obs)
	}
}

// recordingTool appends its step execution to a shared order slice.
type recordingTool struct {
	name  string
	order *[]string
}

func (r *recordingTool) Name() string                       { return r.name }
func (r *recordingTool) Description() string                { return r.name }
func (r *recordingTool) InputSchema() map[string]any        { return nil }
func (r *recordingTool) Validate(map[string]any) error      { return nil }
func (r *recordingTool) Execute(_ context.Context, _ map[string]any) (any, error) {
	*r.order = append(*r.order, r.name)
	return "ok", nil
}

func TestExecuteCycleCallsNoTool(t *testing.T) {
	ft := &fakeTool{name: "t", result: "ok"}
	p := &plan.Plan{Steps: []*plan.Step{
		{ID: "a", Tool: "t", Requires: []string{"b"}},
		{ID: "b", Tool: "t", Requires: []string{"a"}},
	}}

	_, err := New(registryWith(ft), nil).Execute(context.Background(), p, map[string]any{})
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("want CycleError, got %v", err)
	}
	if ft.callCount() != 0 {
		t.Errorf("cycle must abort before any tool call, got %d calls", ft.callCount())
	}
}

func TestExecuteSkipsObservedSteps(t *testing.T) {
	ft := &fakeTool{name: "t", result: "fresh"}
	p := &plan.Plan{Steps: []*plan.Step{
		toolStep("step_1", "t"),
		toolStep("step_2", "t", "step_1"),
	}}

	obs := map[string]any{"step_1": "carried forward"}
	executed, err := New(registryWith(ft), nil).Execute(context.Background(), p, obs)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !reflect.DeepEqual(executed, []string{"step_2"}) {
		t.Errorf("executed = %v, want only step_2", executed)
	}
	if obs["step_1"] != "carried forward" {
		t.Errorf("prior observation overwritten: %v", obs["step_1"])
	}
}

func TestExecuteSoftFailure(t *testing.T) {
	ft := &fakeTool{name: "flaky", result: map[string]any{
		"ok":        false,
		"reason":    "upstream unavailable",
		"retryable": true,
	}}
	p := &plan.Plan{Steps: []*plan.Step{toolStep("step_1", "flaky")}}

	_, err := New(registryWith(ft), nil).Execute(context.Background(), p, map[string]any{})
	var serr *SoftFailureError
	if !errors.As(err, &serr) {
		t.Fatalf("want SoftFailureError, got %v", err)
	}
	if serr.StepID != "step_1" || serr.Tool != "flaky" {
		t.Errorf("context missing: %+v", serr)
	}
	if serr.Reason != "upstream unavailable" {
		t.Errorf("reason = %q", serr.Reason)
	}
	if !serr.Retryable() {
		t.Error("payload marked retryable=true")
	}
}

func TestSoftFailureRetryableDefaultsFalse(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"status error", map[string]any{"status": "error", "message": "boom"}},
		{"status failed", map[string]any{"status": "Failed"}},
		{"ok false no flag", map[string]any{"ok": false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := &fakeTool{name: "t", result: tc.payload}
			p := &plan.Plan{Steps: []*plan.Step{toolStep("s", "t")}}
			_, err := New(registryWith(ft), nil).Execute(context.Background(), p, map[string]any{})
			var serr *SoftFailureError
			if !errors.As(err, &serr) {
				t.Fatalf("want SoftFailureError, got %v", err)
			}
			if serr.Retryable() {
				t.Error("retryable must default to false")
			}
		})
	}
}

func TestExecuteHardFailure(t *testing.T) {
	ft := &fakeTool{name: "bomb", err: fmt.Errorf("exploded")}
	p := &plan.Plan{Steps: []*plan.Step{toolStep("s", "bomb")}}

	_, err := New(registryWith(ft), nil).Execute(context.Background(), p, map[string]any{})
	var herr *HardFailureError
	if !errors.As(err, &herr) {
		t.Fatalf("want HardFailureError, got %v", err)
	}
	if herr.StepID != "s" || herr.Tool != "bomb" {
		t.Errorf("context missing: %+v", herr)
	}
}

func TestExecuteStepCeiling(t *testing.T) {
	ft := &fakeTool{name: "t", result: "ok"}
	var steps []*plan.Step
	for i := 0; i < 5; i++ {
		steps = append(steps, toolStep(fmt.Sprintf("s%d", i), "t"))
	}
	p := &plan.Plan{Steps: steps}

	_, err := New(registryWith(ft), nil).WithMaxSteps(3).Execute(context.Background(), p, map[string]any{})
	if !errors.Is(err, ErrPlanTooLarge) {
		t.Fatalf("want ErrPlanTooLarge, got %v", err)
	}
	if ft.callCount() != 0 {
		t.Error("ceiling must reject before any execution")
	}
}

func TestExecuteSuccessPayloadNotMisclassified(t *testing.T) {
	ft := &fakeTool{name: "t", result: map[string]any{"ok": true, "status": "success", "data": 42}}
	p := &plan.Plan{Steps: []*plan.Step{toolStep("s", "t")}}
	obs := map[string]any{}
	if _, err := New(registryWith(ft), nil).Execute(context.Background(), p, obs); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := obs["s"]; !ok {
		t.Error("successful payload not recorded")
	}
}
