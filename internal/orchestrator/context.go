package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RunContext owns the artifact map for one orchestration run. It is
// append-only: a key is written exactly once, after its producer fully
// completes, and never overwritten.
type RunContext struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

// NewRunContext creates an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{artifacts: make(map[string]Artifact)}
}

// AddArtifact records a completed item's output. Adding a duplicate key is a
// contract violation and returns an error; nothing is overwritten.
func (c *RunContext) AddArtifact(a Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.artifacts[a.Key]; exists {
		return fmt.Errorf("artifact %q already recorded (produced by %q)", a.Key, c.artifacts[a.Key].Producer)
	}
	c.artifacts[a.Key] = a
	return nil
}

// Has reports whether the key has been recorded.
func (c *RunContext) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.artifacts[key]
	return ok
}

// Get returns the artifact for a key.
func (c *RunContext) Get(key string) (Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.artifacts[key]
	return a, ok
}

// Len returns the number of recorded artifacts.
func (c *RunContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.artifacts)
}

// Snapshot returns a copy of all recorded artifacts.
func (c *RunContext) Snapshot() map[string]Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Artifact, len(c.artifacts))
	for k, v := range c.artifacts {
		out[k] = v
	}
	return out
}

// SnapshotKeys returns copies of exactly the named artifacts. Any absent key
// is an error naming every missing key; readiness checking is the caller's
// precondition, so a miss here indicates a scheduling bug, not "not yet".
func (c *RunContext) SnapshotKeys(keys []string) (map[string]Artifact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Artifact, len(keys))
	var missing []string
	for _, k := range keys {
		a, ok := c.artifacts[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		out[k] = a
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("artifacts not recorded: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
