package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jkaninda/busara/internal/observability"
)

// Defaults for the wave engine.
const (
	DefaultMaxWorkItems   = 10
	DefaultMaxConcurrency = 4
	DefaultPerItemTimeout = 15 * time.Second
)

// Orchestrator executes a DAG of work items in dependency waves and merges
// their outputs into one deterministic response.
type Orchestrator struct {
	roles  *RoleRegistry
	obs    *observability.Observability
	logger *slog.Logger

	maxWorkItems   int
	maxConcurrency int
	perItemTimeout time.Duration
	parallel       bool
}

// New creates an orchestrator over the given role registry.
func New(roles *RoleRegistry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		roles:          roles,
		logger:         logger,
		maxWorkItems:   DefaultMaxWorkItems,
		maxConcurrency: DefaultMaxConcurrency,
		perItemTimeout: DefaultPerItemTimeout,
		parallel:       true,
	}
}

// WithObservability attaches metrics and tracing.
func (o *Orchestrator) WithObservability(obs *observability.Observability) *Orchestrator {
	o.obs = obs
	return o
}

// WithMaxWorkItems overrides the work-item ceiling.
func (o *Orchestrator) WithMaxWorkItems(n int) *Orchestrator {
	if n > 0 {
		o.maxWorkItems = n
	}
	return o
}

// WithMaxConcurrency overrides the per-wave concurrency bound.
func (o *Orchestrator) WithMaxConcurrency(n int) *Orchestrator {
	if n > 0 {
		o.maxConcurrency = n
	}
	return o
}

// WithPerItemTimeout overrides the per-item execution timeout.
func (o *Orchestrator) WithPerItemTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.perItemTimeout = d
	}
	return o
}

// WithParallel enables or disables concurrent wave execution.
func (o *Orchestrator) WithParallel(enabled bool) *Orchestrator {
	o.parallel = enabled
	return o
}

// RunTemplate expands a routing template and runs the resulting work items.
// The context map is handed to the template as the items' raw inputs.
func (o *Orchestrator) RunTemplate(ctx context.Context, template, goal string, context map[string]any) (string, error) {
	items, err := BuildWorkItems(template, goal, context)
	if err != nil {
		return "", err
	}
	return o.RunWorkItems(ctx, items)
}

// RunWorkItems executes the items to completion and returns the merged
// output. The item set must be acyclic by depends_on; faults are classified
// as missing-artifact (wiring bug) or no-runnable (cycle).
func (o *Orchestrator) RunWorkItems(ctx context.Context, items []WorkItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("no work items")
	}
	if len(items) > o.maxWorkItems {
		return "", fmt.Errorf("%d work items exceed the limit of %d", len(items), o.maxWorkItems)
	}
	if err := o.validate(items); err != nil {
		return "", err
	}

	rc := NewRunContext()
	remaining := append([]WorkItem(nil), items...)

	// Every key any item in this run could ever produce.
	producible := make(map[string]struct{}, len(items))
	for _, item := range items {
		producible[item.OutputKey()] = struct{}{}
	}

	wave := 0
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ready, blocked := partitionReady(remaining, rc)
		if len(ready) == 0 {
			if merr := diagnoseMissing(blocked, rc, producible); merr != nil {
				return "", merr
			}
			return "", fmt.Errorf("%d item(s) blocked: %w", len(blocked), ErrNoRunnable)
		}

		wave++
		o.logger.InfoContext(ctx, "executing wave",
			slog.Int("wave", wave),
			slog.Int("items", len(ready)),
			slog.Int("remaining", len(blocked)),
		)

		outputs, err := o.runWave(ctx, ready, rc)
		if err != nil {
			return "", err
		}

		// Record artifacts in input order, only after the whole wave settled.
		for i, item := range ready {
			if err := rc.AddArtifact(Artifact{
				Key:      item.OutputKey(),
				Value:    outputs[i],
				Producer: item.ID,
			}); err != nil {
				return "", err
			}
		}
		remaining = blocked
	}

	return merge(items, rc), nil
}

// validate rejects duplicate ids and unknown roles before anything runs.
func (o *Orchestrator) validate(items []WorkItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ID == "" {
			return errors.New("work item with empty id")
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("duplicate work item id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
		if !o.roles.Has(item.Role) {
			return fmt.Errorf("work item %q: unknown role %q (known: %s)",
				item.ID, item.Role, strings.Join(o.roles.Names(), ", "))
		}
	}
	return nil
}

// partitionReady splits remaining items into those whose dependencies are
// all recorded and those still blocked, preserving input order.
func partitionReady(remaining []WorkItem, rc *RunContext) (ready, blocked []WorkItem) {
	for _, item := range remaining {
		satisfied := true
		for _, dep := range item.DependsOn {
			if !rc.Has(dep) {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, item)
		} else {
			blocked = append(blocked, item)
		}
	}
	return ready, blocked
}

// diagnoseMissing returns a MissingArtifactsError when any blocked item
// waits on a key that no item in the run can produce. A nil return means
// every unmet dependency is still producible, i.e. the block is a cycle.
func diagnoseMissing(blocked []WorkItem, rc *RunContext, producible map[string]struct{}) error {
	missing := make(map[string][]string)
	for _, item := range blocked {
		for _, dep := range item.DependsOn {
			if rc.Has(dep) {
				continue
			}
			if _, ok := producible[dep]; !ok {
				missing[item.ID] = append(missing[item.ID], dep)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingArtifactsError{Missing: missing}
}

// runWave executes one wave and returns outputs positionally aligned with
// ready. Sequential when parallelism is off or the wave has one item;
// otherwise bounded by a counting semaphore. A failed item fails the wave
// without corrupting siblings.
func (o *Orchestrator) runWave(ctx context.Context, ready []WorkItem, rc *RunContext) ([]string, error) {
	start := time.Now()
	defer func() {
		o.obs.MetricsOrNil().RecordWave(time.Since(start))
	}()

	outputs := make([]string, len(ready))

	if !o.parallel || len(ready) == 1 {
		for i, item := range ready {
			out, err := o.runItem(ctx, item, rc)
			if err != nil {
				return nil, err
			}
			outputs[i] = out
		}
		return outputs, nil
	}

	errs := make([]error, len(ready))
	sem := make(chan struct{}, o.maxConcurrency)
	var wg sync.WaitGroup

	for i := range ready {
		wg.Add(1)
		go func(idx int, item WorkItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outputs[idx], errs[idx] = o.runItem(ctx, item, rc)
		}(i, ready[i])
	}
	wg.Wait()

	// Report the first failure in input order for determinism.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

// runItem resolves the role, assembles the item input from its declared
// upstream artifacts only, and executes under the per-item timeout.
func (o *Orchestrator) runItem(ctx context.Context, item WorkItem, rc *RunContext) (string, error) {
	runner, ok := o.roles.Resolve(item.Role)
	if !ok {
		return "", fmt.Errorf("work item %q: unknown role %q", item.ID, item.Role)
	}

	upstream, err := rc.SnapshotKeys(item.DependsOn)
	if err != nil {
		return "", fmt.Errorf("work item %q: %w", item.ID, err)
	}

	if m := o.obs.MetricsOrNil(); m != nil {
		m.ActiveWorkItems.Inc()
		defer m.ActiveWorkItems.Dec()
	}

	itemCtx, cancel := context.WithTimeout(ctx, o.perItemTimeout)
	defer cancel()

	out, err := runner.Run(itemCtx, buildItemInput(item, upstream))
	if err != nil {
		o.obs.MetricsOrNil().RecordWorkItem(item.Role, "failed")
		if errors.Is(itemCtx.Err(), context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("work item %q timed out after %v", item.ID, o.perItemTimeout)
		}
		return "", fmt.Errorf("work item %q: %w", item.ID, err)
	}

	o.obs.MetricsOrNil().RecordWorkItem(item.Role, "completed")
	return out, nil
}

// buildItemInput concatenates the item's goal, its raw inputs, and a
// snapshot of exactly its declared upstream artifacts. Nothing else from
// the run context leaks in.
func buildItemInput(item WorkItem, upstream map[string]Artifact) string {
	var b strings.Builder
	b.WriteString(item.Goal)

	if len(item.Inputs) > 0 {
		b.WriteString("\n\nInputs:\n")
		keys := make([]string, 0, len(item.Inputs))
		for k := range item.Inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, item.Inputs[k])
		}
	}

	if len(item.DependsOn) > 0 {
		b.WriteString("\n\nUpstream results:\n")
		for _, dep := range item.DependsOn {
			a := upstream[dep]
			fmt.Fprintf(&b, "### %s (from %s)\n%s\n\n", a.Key, a.Producer, strings.TrimSpace(a.Value))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// merge renders the final response. One item returns its raw output
// unchanged; several produce deterministic sections in input order.
func merge(items []WorkItem, rc *RunContext) string {
	if len(items) == 1 {
		a, _ := rc.Get(items[0].OutputKey())
		return a.Value
	}

	var b strings.Builder
	for _, item := range items {
		a, _ := rc.Get(item.OutputKey())
		fmt.Fprintf(&b, "## %s (%s)\n", item.ID, item.Role)
		fmt.Fprintf(&b, "Goal: %s\n\n", strings.TrimSpace(item.Goal))
		b.WriteString(strings.TrimSpace(a.Value))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
