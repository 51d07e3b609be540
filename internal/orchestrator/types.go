// Package orchestrator implements multi-role orchestration for Busara.
// A routing template decomposes a goal into a DAG of work items, each bound
// to a role; the orchestrator executes dependency-ready waves with bounded
// parallelism and threads upstream artifacts into downstream inputs.
package orchestrator

// WorkItem is one unit of orchestrated work, bound to a role. Items are
// immutable once constructed by a routing template.
type WorkItem struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Goal      string         `json:"goal"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"` // Artifact keys, e.g. "design.output".
}

// OutputKey returns the artifact key this item's output is recorded under.
func (w WorkItem) OutputKey() string {
	return w.ID + ".output"
}

// Artifact is the immutable, uniquely-keyed output of a completed work item.
type Artifact struct {
	Key      string         `json:"key"`
	Value    string         `json:"value"`
	Producer string         `json:"producer"` // Work-item id that produced it.
	Metadata map[string]any `json:"metadata,omitempty"`
}
