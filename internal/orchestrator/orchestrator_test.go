package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// sleepyRunner waits, then echoes a fixed output. It records every input it
// receives so tests can assert on context injection.
type sleepyRunner struct {
	delay  time.Duration
	output string
	err    error

	mu     sync.Mutex
	inputs []string
}

func (r *sleepyRunner) Run(ctx context.Context, input string) (string, error) {
	r.mu.Lock()
	r.inputs = append(r.inputs, input)
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.output, r.err
}

func (r *sleepyRunner) lastInput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inputs) == 0 {
		return ""
	}
	return r.inputs[len(r.inputs)-1]
}

func registryWith(t *testing.T, runners map[string]Runner) *RoleRegistry {
	t.Helper()
	reg := NewRoleRegistry()
	for name, r := range runners {
		reg.Register(name, r)
	}
	return reg
}

func TestSingleItemParity(t *testing.T) {
	reg := registryWith(t, map[string]Runner{
		"solo": &sleepyRunner{output: "  raw output with whitespace  "},
	})
	o := New(reg, nil)

	got, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "only", Role: "solo", Goal: "do it"},
	})
	if err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}
	if got != "  raw output with whitespace  " {
		t.Errorf("single-item run must return the raw output unchanged, got %q", got)
	}
}

func TestMultiItemMergeIsDeterministic(t *testing.T) {
	reg := registryWith(t, map[string]Runner{
		"a": &sleepyRunner{output: "alpha out"},
		"b": &sleepyRunner{output: "beta out"},
	})
	o := New(reg, nil)

	items := []WorkItem{
		{ID: "first", Role: "a", Goal: "goal one"},
		{ID: "second", Role: "b", Goal: "goal two"},
	}
	got, err := o.RunWorkItems(context.Background(), items)
	if err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}

	want := "## first (a)\nGoal: goal one\n\nalpha out\n\n## second (b)\nGoal: goal two\n\nbeta out"
	if got != want {
		t.Errorf("merge mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestDependencyInjectionIsSelective(t *testing.T) {
	producer := &sleepyRunner{output: "SECRET-FINDINGS"}
	consumer := &sleepyRunner{output: "consumed"}
	bystander := &sleepyRunner{output: "independent"}
	reg := registryWith(t, map[string]Runner{
		"producer": producer, "consumer": consumer, "bystander": bystander,
	})
	o := New(reg, nil)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "research", Role: "producer", Goal: "dig"},
		{ID: "report", Role: "consumer", Goal: "write", DependsOn: []string{"research.output"}},
		{ID: "other", Role: "bystander", Goal: "unrelated", DependsOn: nil},
	})
	if err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}

	if !strings.Contains(consumer.lastInput(), "SECRET-FINDINGS") {
		t.Error("declared dependency output missing from consumer input")
	}
	if !strings.Contains(consumer.lastInput(), "research.output") {
		t.Error("consumer input should name the upstream artifact key")
	}
	if strings.Contains(bystander.lastInput(), "SECRET-FINDINGS") {
		t.Error("item without dependencies must not see another item's output")
	}
}

func TestRawInputsRendered(t *testing.T) {
	runner := &sleepyRunner{output: "done"}
	reg := registryWith(t, map[string]Runner{"r": runner})
	o := New(reg, nil)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "x", Role: "r", Goal: "go", Inputs: map[string]any{"lang": "sw", "count": 3}},
	})
	if err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}
	in := runner.lastInput()
	if !strings.Contains(in, "- count: 3") || !strings.Contains(in, "- lang: sw") {
		t.Errorf("raw inputs missing from item input:\n%s", in)
	}
}

func TestParallelWaveSpeedup(t *testing.T) {
	const delay = 50 * time.Millisecond
	reg := registryWith(t, map[string]Runner{
		"slow": &sleepyRunner{delay: delay, output: "done"},
	})
	o := New(reg, nil).WithMaxConcurrency(2)

	items := []WorkItem{
		{ID: "a", Role: "slow", Goal: "one"},
		{ID: "b", Role: "slow", Goal: "two"},
	}

	start := time.Now()
	if _, err := o.RunWorkItems(context.Background(), items); err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}
	independent := time.Since(start)

	if independent >= 2*delay {
		t.Errorf("independent items took %v, want near %v (parallel)", independent, delay)
	}

	// Same two items, but forced into sequence by a dependency.
	chained := []WorkItem{
		{ID: "a", Role: "slow", Goal: "one"},
		{ID: "b", Role: "slow", Goal: "two", DependsOn: []string{"a.output"}},
	}
	start = time.Now()
	if _, err := o.RunWorkItems(context.Background(), chained); err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}
	sequenced := time.Since(start)

	if sequenced < 2*delay {
		t.Errorf("dependent items took %v, want at least %v (sequenced)", sequenced, 2*delay)
	}
	if sequenced <= independent {
		t.Errorf("dependency must cost time: sequenced %v <= independent %v", sequenced, independent)
	}
}

func TestDisableParallelRunsSequentially(t *testing.T) {
	const delay = 30 * time.Millisecond
	reg := registryWith(t, map[string]Runner{
		"slow": &sleepyRunner{delay: delay, output: "done"},
	})
	o := New(reg, nil).WithParallel(false)

	start := time.Now()
	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "a", Role: "slow", Goal: "one"},
		{ID: "b", Role: "slow", Goal: "two"},
	})
	if err != nil {
		t.Fatalf("RunWorkItems: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("sequential mode finished in %v, want at least %v", elapsed, 2*delay)
	}
}

func TestMissingArtifactFault(t *testing.T) {
	reg := registryWith(t, map[string]Runner{"r": &sleepyRunner{output: "x"}})
	o := New(reg, nil)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "waiting", Role: "r", Goal: "g", DependsOn: []string{"nonexistent.output"}},
	})
	var merr *MissingArtifactsError
	if !errors.As(err, &merr) {
		t.Fatalf("want MissingArtifactsError, got %v", err)
	}
	if got := merr.Missing["waiting"]; len(got) != 1 || got[0] != "nonexistent.output" {
		t.Errorf("missing keys = %v, want [nonexistent.output]", got)
	}
	if !strings.Contains(err.Error(), "nonexistent.output") {
		t.Errorf("fault must name the missing key: %v", err)
	}
}

func TestCycleFault(t *testing.T) {
	reg := registryWith(t, map[string]Runner{"r": &sleepyRunner{output: "x"}})
	o := New(reg, nil)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "a", Role: "r", Goal: "g", DependsOn: []string{"b.output"}},
		{ID: "b", Role: "r", Goal: "g", DependsOn: []string{"a.output"}},
	})
	if !errors.Is(err, ErrNoRunnable) {
		t.Fatalf("want ErrNoRunnable for a cycle, got %v", err)
	}
}

func TestUnknownRoleRejectedUpFront(t *testing.T) {
	executed := false
	reg := registryWith(t, map[string]Runner{
		"known": RunnerFunc(func(context.Context, string) (string, error) {
			executed = true
			return "out", nil
		}),
	})
	o := New(reg, nil)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "ok", Role: "known", Goal: "g"},
		{ID: "bad", Role: "ghost", Goal: "g"},
	})
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("want unknown-role error, got %v", err)
	}
	if executed {
		t.Error("nothing may execute when validation fails")
	}
}

func TestWorkItemLimit(t *testing.T) {
	reg := registryWith(t, map[string]Runner{"r": &sleepyRunner{output: "x"}})
	o := New(reg, nil).WithMaxWorkItems(2)

	items := []WorkItem{
		{ID: "a", Role: "r", Goal: "g"},
		{ID: "b", Role: "r", Goal: "g"},
		{ID: "c", Role: "r", Goal: "g"},
	}
	if _, err := o.RunWorkItems(context.Background(), items); err == nil {
		t.Fatal("want error when the item limit is exceeded")
	}
}

func TestDuplicateItemID(t *testing.T) {
	reg := registryWith(t, map[string]Runner{"r": &sleepyRunner{output: "x"}})
	o := New(reg, nil)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "same", Role: "r", Goal: "g"},
		{ID: "same", Role: "r", Goal: "g"},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("want duplicate-id error, got %v", err)
	}
}

func TestPerItemTimeoutIsItemFault(t *testing.T) {
	reg := registryWith(t, map[string]Runner{
		"stuck": &sleepyRunner{delay: 500 * time.Millisecond, output: "never"},
	})
	o := New(reg, nil).WithPerItemTimeout(30 * time.Millisecond)

	_, err := o.RunWorkItems(context.Background(), []WorkItem{
		{ID: "hang", Role: "stuck", Goal: "g"},
	})
	if err == nil || !strings.Contains(err.Error(), "hang") {
		t.Fatalf("timeout must be reported as the item's fault, got %v", err)
	}
}

func TestRunTemplate(t *testing.T) {
	designer := &sleepyRunner{output: "the design"}
	review := &sleepyRunner{output: "looks good"}
	reg := registryWith(t, map[string]Runner{
		RoleResearcher: &sleepyRunner{output: "the requirements"},
		RoleGeneralist: designer,
		RoleReviewer:   review,
	})
	o := New(reg, nil)

	got, err := o.RunTemplate(context.Background(), TemplateDesignReview, "build a cache",
		map[string]any{"audience": "sre"})
	if err != nil {
		t.Fatalf("RunTemplate: %v", err)
	}
	for _, section := range []string{
		"## research (researcher)",
		"## design (generalist)",
		"## review (reviewer)",
	} {
		if !strings.Contains(got, section) {
			t.Errorf("merged output missing section %q:\n%s", section, got)
		}
	}
	if !strings.Contains(designer.lastInput(), "the requirements") {
		t.Error("designer must receive the research artifact")
	}
	if !strings.Contains(review.lastInput(), "the design") || !strings.Contains(review.lastInput(), "the requirements") {
		t.Error("reviewer must receive both upstream artifacts")
	}
	if !strings.Contains(review.lastInput(), "- audience: sre") {
		t.Error("reviewer must receive the caller's context inputs")
	}
}

func TestRunContextDuplicateArtifact(t *testing.T) {
	rc := NewRunContext()
	if err := rc.AddArtifact(Artifact{Key: "x.output", Value: "1", Producer: "x"}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := rc.AddArtifact(Artifact{Key: "x.output", Value: "2", Producer: "y"}); err == nil {
		t.Fatal("duplicate artifact key must be rejected")
	}
	a, _ := rc.Get("x.output")
	if a.Value != "1" {
		t.Error("original artifact must not be overwritten")
	}
}

func TestSnapshotKeysNamesEveryMissingKey(t *testing.T) {
	rc := NewRunContext()
	_ = rc.AddArtifact(Artifact{Key: "a.output", Value: "v", Producer: "a"})

	_, err := rc.SnapshotKeys([]string{"a.output", "b.output", "c.output"})
	if err == nil {
		t.Fatal("want error for missing keys")
	}
	if !strings.Contains(err.Error(), "b.output") || !strings.Contains(err.Error(), "c.output") {
		t.Errorf("error must name every missing key: %v", err)
	}
}

func TestRoleRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate role registration must panic")
		}
	}()
	reg := NewRoleRegistry()
	reg.Register("x", &sleepyRunner{})
	reg.Register("x", &sleepyRunner{})
}

func TestBuildWorkItems(t *testing.T) {
	items, err := BuildWorkItems(TemplateDraftReviewRevise, "write a poem", nil)
	if err != nil {
		t.Fatalf("BuildWorkItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	if items[2].ID != "revise" || len(items[2].DependsOn) != 2 {
		t.Errorf("revise item = %+v", items[2])
	}

	if _, err := BuildWorkItems("bogus", "g", nil); err == nil {
		t.Fatal("want error for unknown template")
	}
}

func TestBuildWorkItemsThreadsContext(t *testing.T) {
	context := map[string]any{"style": "haiku"}

	items, err := BuildWorkItems(TemplateDesignReview, "g", context)
	if err != nil {
		t.Fatalf("BuildWorkItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	wantRoles := []string{RoleResearcher, RoleGeneralist, RoleReviewer}
	for i, item := range items {
		if item.Role != wantRoles[i] {
			t.Errorf("item %d role = %q, want %q", i, item.Role, wantRoles[i])
		}
		if item.Inputs["style"] != "haiku" {
			t.Errorf("item %q missing context input, got %v", item.ID, item.Inputs)
		}
	}

	// The draft starts from the request; review and revise work purely
	// from upstream artifacts.
	items, err = BuildWorkItems(TemplateDraftReviewRevise, "g", context)
	if err != nil {
		t.Fatalf("BuildWorkItems: %v", err)
	}
	if items[0].Inputs["style"] != "haiku" {
		t.Errorf("draft missing context input, got %v", items[0].Inputs)
	}
	for _, item := range items[1:] {
		if len(item.Inputs) != 0 {
			t.Errorf("item %q should have no raw inputs, got %v", item.ID, item.Inputs)
		}
	}
}

func TestDescribeTemplate(t *testing.T) {
	desc, err := DescribeTemplate(TemplateDesignReview)
	if err != nil {
		t.Fatalf("DescribeTemplate: %v", err)
	}
	for _, want := range []string{"research", "design", "review", RoleResearcher, RoleReviewer,
		"after: research.output", "after: research.output, design.output"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}

	if _, err := DescribeTemplate("bogus"); err == nil {
		t.Fatal("want error for unknown template")
	}
}
