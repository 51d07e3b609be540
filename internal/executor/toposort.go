package executor

import (
	"sort"

	"github.com/jkaninda/busara/internal/plan"
)

// topoOrder computes a Kahn topological order over the plan's tool steps,
// using requires entries as edges restricted to tool-step ids. Ties are
// broken by lexicographic id order so execution is deterministic. A residual
// non-empty dependency set means a cycle and returns a *CycleError.
func topoOrder(steps []*plan.Step) ([]string, error) {
	toolStep := make(map[string]*plan.Step, len(steps))
	for _, s := range steps {
		if s.IsToolStep() {
			toolStep[s.ID] = s
		}
	}

	indegree := make(map[string]int, len(toolStep))
	dependents := make(map[string][]string, len(toolStep))
	for id, s := range toolStep {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, req := range s.Requires {
			if _, ok := toolStep[req]; !ok {
				continue
			}
			indegree[id]++
			dependents[req] = append(dependents[req], id)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(toolStep))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := false
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(toolStep) {
		var remaining []string
		for id := range toolStep {
			if indegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}
	return order, nil
}
