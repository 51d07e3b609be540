package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoRunnable is returned when remaining work items block each other:
// every dependency key could still be produced, but no item is ready. That
// is a dependency cycle in the item graph.
var ErrNoRunnable = errors.New("no runnable work items: dependency cycle")

// MissingArtifactsError is returned when a work item declares a dependency
// key that no item in the run will ever produce. It is a wiring bug,
// distinguished from the structural cycle reported by ErrNoRunnable.
type MissingArtifactsError struct {
	// Missing maps work-item id to the dependency keys that can never
	// materialize.
	Missing map[string][]string
}

func (e *MissingArtifactsError) Error() string {
	ids := make([]string, 0, len(e.Missing))
	for id := range e.Missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var parts []string
	for _, id := range ids {
		keys := append([]string(nil), e.Missing[id]...)
		sort.Strings(keys)
		parts = append(parts, fmt.Sprintf("%s waits for %s", id, strings.Join(keys, ", ")))
	}
	return "missing artifacts: " + strings.Join(parts, "; ")
}
