// Package template implements the `{{root.segment...}}` expression language
// used to bind invocation inputs and project final workflow outputs. It is
// grounded on the teacher's resolver.go ($nodes.<id>.<path> and
// ${...} interpolation), generalized to this engine's roots
// (input/env/tasks) and given a real parser instead of prefix/regex
// sniffing, so parse failures can be reported with a position.
package template

import (
	"fmt"

	"github.com/lyzr/workflowengine/pkg/schema"
)

// Root identifies which part of the execution context a Path reads from.
type Root string

const (
	RootInput Root = "input"
	RootEnv   Root = "env"
	RootTasks Root = "tasks"
)

// Segment is one `.name` or `[index]` step of a Path.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return fmt.Sprintf("[%d]", s.Index)
	}
	return s.Name
}

// Path is a parsed `root.segment.segment...` expression.
type Path struct {
	Root     Root
	Segments []Segment
}

func (p Path) String() string {
	out := string(p.Root)
	for _, seg := range p.Segments {
		if seg.IsIndex {
			out += seg.String()
		} else {
			out += "." + seg.Name
		}
	}
	return out
}

// TaskID returns the referenced invocation id for a Path rooted at tasks;
// only meaningful when Root == RootTasks.
func (p Path) TaskID() string { return p.Segments[0].Name }

// OutputSteps returns the schema path steps into the referenced task's
// output, skipping the `<id>.output` prefix; only meaningful when
// Root == RootTasks.
func (p Path) OutputSteps() []schema.PathStep {
	return SchemaSteps(p.Segments[2:])
}

// InputSteps returns the schema path steps into the workflow input or task
// input; only meaningful when Root == RootInput.
func (p Path) InputSteps() []schema.PathStep {
	return SchemaSteps(p.Segments)
}

// Piece is one constituent of a parsed Template: either literal text or a
// Path reference.
type Piece interface{ isPiece() }

// LiteralPiece is verbatim text copied into the output of a mixed template.
type LiteralPiece string

func (LiteralPiece) isPiece() {}

// PathPiece is a `{{...}}` reference embedded in a template.
type PathPiece struct {
	Path Path
}

func (PathPiece) isPiece() {}

// Template is a parsed expression: either a single, pure Path reference
// (Pure == true, preserving the resolved value's native JSON type) or a
// mixed string made of literal text and interpolated references
// (stringified and concatenated).
type Template struct {
	Raw    string
	Pieces []Piece
	Pure   bool
}

// SchemaSteps converts segments (typically Path.Segments, or a sub-slice of
// it skipping a root-specific prefix like the `tasks.<id>.output` marker)
// into schema.PathStep for structural-schema derivation.
func SchemaSteps(segments []Segment) []schema.PathStep {
	steps := make([]schema.PathStep, len(segments))
	for i, seg := range segments {
		steps[i] = schema.PathStep{Name: seg.Name, Index: seg.Index, IsIndex: seg.IsIndex}
	}
	return steps
}

// Dependencies returns the set of invocation ids t's tasks-rooted references
// depend on, used by the execution-graph builder to derive edges.
func (t *Template) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, piece := range t.Pieces {
		p, ok := piece.(PathPiece)
		if !ok || p.Path.Root != RootTasks {
			continue
		}
		id := p.Path.Segments[0].Name
		if !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	return deps
}
