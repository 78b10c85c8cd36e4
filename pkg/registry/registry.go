// Package registry provides a ready-to-use, in-memory task.Registry so the
// engine is runnable without a cluster watch or config loader wired in.
// Grounded on the teacher's in-process task-definition lookups in
// cmd/workflow-runner (definitions held in a plain map, guarded by a mutex,
// no external store) rather than its Postgres-backed registries, since this
// engine's Non-goals exclude persistent storage of compiled plans.
package registry

import (
	"fmt"
	"sync"

	"github.com/lyzr/workflowengine/pkg/task"
)

// Memory is a concurrency-safe, in-process task.Registry.
type Memory struct {
	mu    sync.RWMutex
	defs  map[string]*task.Definition
}

// New returns an empty Memory registry.
func New() *Memory {
	return &Memory{defs: make(map[string]*task.Definition)}
}

func key(name, namespace string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// Register adds or replaces a task definition. It is safe to call
// concurrently with Lookup.
func (m *Memory) Register(def *task.Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("registry: task definition must have a name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[key(def.Name, def.Namespace)] = def
	return nil
}

// Lookup implements task.Registry.
func (m *Memory) Lookup(name, namespace string) (*task.Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[key(name, namespace)]
	return def, ok
}

// Names returns every registered (namespace, name) pair's key; order is not
// guaranteed. Intended for diagnostics and tests.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.defs))
	for k := range m.defs {
		names = append(names, k)
	}
	return names
}

// TaskNames returns the plain task names registered under namespace, used by
// the workflow validator to build "did you mean" suggestions for an
// unresolvable taskRef. Implements workflow.NameLister.
func (m *Memory) TaskNames(namespace string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.defs))
	for _, def := range m.defs {
		if def.Namespace == namespace {
			names = append(names, def.Name)
		}
	}
	return names
}
