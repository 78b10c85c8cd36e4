// Package workflow defines the Workflow/Invocation source model and the
// compile-time validator (§4.5) that turns one into a CompiledPlan: a
// registry-resolved, type-checked, dependency-ordered artifact the
// orchestrator can execute without re-deriving any of this at request time.
package workflow

import (
	"time"

	"github.com/lyzr/workflowengine/pkg/retry"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/template"
)

// Invocation is one use of a task within a workflow source definition. Input
// values are either template-expression strings (parsed at validation time)
// or JSON literals; the distinction is made by JSON type: every string is
// parsed as a template (one with no `{{...}}` reference parses to a single
// literal piece), and every non-string value is a literal.
type Invocation struct {
	ID      string
	TaskRef string
	Input   map[string]interface{}
	Timeout time.Duration // zero means inherit the task's default
	Retry   *retry.Policy // nil means inherit the task's default
}

// Definition is a source Workflow resource, prior to validation.
type Definition struct {
	Name        string
	Namespace   string
	InputSchema *schema.Schema
	Tasks       []Invocation
	Output      map[string]string // name -> template expression
}

// Binding is a pre-parsed, resolved form of one invocation input property:
// exactly one of Template or Literal is meaningful, selected once at
// compile time so the orchestrator never re-parses or re-branches on raw
// JSON shape during execution.
type Binding struct {
	Template *template.Template
	Literal  interface{}
	HasValue bool // false only for unbound optional properties, which can't occur post-validation
}

// Resolve evaluates the binding against a live execution context.
func (b Binding) Resolve(ctx *template.Context) (interface{}, error) {
	if b.Template != nil {
		return b.Template.Resolve(ctx)
	}
	return b.Literal, nil
}

// ResolvedInvocation is the compiled form of an Invocation: its task
// definition resolved by reference, every input binding pre-parsed, and
// timeout/retry merged with the task's defaults.
type ResolvedInvocation struct {
	ID      string
	Task    *task.Definition
	Input   map[string]Binding
	Timeout time.Duration
	Retry   retry.Policy
}

// CompiledPlan is the immutable artifact produced by a successful Validate,
// per §3. It is safe to share read-only across concurrent executions.
type CompiledPlan struct {
	WorkflowName     string
	InputSchema      *schema.Schema
	Invocations      map[string]*ResolvedInvocation
	Waves            [][]string
	OutputProjection map[string]*template.Template
}
