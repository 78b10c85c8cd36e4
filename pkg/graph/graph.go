// Package graph builds the execution graph of a workflow from each
// invocation's template-derived dependencies, detects cycles, and partitions
// the graph into parallel-execution waves.
//
// The DFS cycle detection below is grounded on the teacher's
// cmd/workflow-runner/compiler/ir.go validate()/hasCycle — generalized from
// its dependents-walk (with a loop-node carve-out this engine doesn't need,
// since loop constructs are out of scope) into a plain, always-enforced
// acyclicity check, plus a longest-path wave assignment that the teacher's
// IR (which only tracked a WaitForAll flag) did not need because it executed
// node-by-node rather than in bulk parallel waves.
package graph

import (
	"fmt"
	"sort"

	"github.com/lyzr/workflowengine/pkg/wferrors"
)

// Graph is the dependency graph of a compiled workflow: invocation id to the
// set of invocation ids it directly depends on.
type Graph struct {
	nodes map[string][]string
}

// New builds a Graph from a dependency map. Every id referenced as a
// dependency must also be present as a key; the workflow validator is
// responsible for raising unknown-task-ref before calling New.
func New(dependencies map[string][]string) *Graph {
	nodes := make(map[string][]string, len(dependencies))
	for id, deps := range dependencies {
		sorted := append([]string(nil), deps...)
		sort.Strings(sorted)
		nodes[id] = sorted
	}
	return &Graph{nodes: nodes}
}

// Waves partitions the graph into the maximum-parallelism schedule: wave[i]
// contains every invocation whose longest dependency chain has length i,
// i.e. the earliest wave it could possibly run in ("as soon as possible"
// scheduling). Returns a *wferrors.CycleDetected if the graph is cyclic.
func (g *Graph) Waves() ([][]string, error) {
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(g.nodes))
	var computeDepth func(id string) int
	computeDepth = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		max := -1
		for _, dep := range g.nodes[id] {
			if d := computeDepth(dep); d > max {
				max = d
			}
		}
		d := max + 1
		depth[id] = d
		return d
	}

	maxDepth := -1
	ids := g.sortedIDs()
	for _, id := range ids {
		if d := computeDepth(id); d > maxDepth {
			maxDepth = d
		}
	}

	waves := make([][]string, maxDepth+1)
	for _, id := range ids {
		d := depth[id]
		waves[d] = append(waves[d], id)
	}
	for i := range waves {
		sort.Strings(waves[i])
	}
	return waves, nil
}

// checkAcyclic runs DFS with a recursion stack, mirroring the teacher's
// hasCycle, and renders the offending path for the CycleDetected error.
func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, dep := range g.nodes[id] {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				cyclePath := append(append([]string(nil), path...), dep)
				return &wferrors.CycleDetected{Path: cyclePath}
			case black:
				// already fully explored, no cycle through here
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.sortedIDs() {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependents returns, for each invocation id, the set of ids that directly
// depend on it — the inverse of the dependency map. The orchestrator does
// not call it; a failure there cancels the whole execution instead.
func (g *Graph) Dependents() map[string][]string {
	out := make(map[string][]string, len(g.nodes))
	for id, deps := range g.nodes {
		for _, dep := range deps {
			out[dep] = append(out[dep], id)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}

// Validate confirms every dependency referenced actually exists as a node,
// returning a descriptive error if not (the caller is expected to have
// already raised unknown-task-ref with suggestions; this is a cheap sanity
// net for direct Graph users such as tests).
func (g *Graph) Validate() error {
	for id, deps := range g.nodes {
		for _, dep := range deps {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("invocation %q depends on unknown invocation %q", id, dep)
			}
		}
	}
	return nil
}
