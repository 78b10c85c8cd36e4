// Package orchestrator implements §4.7: executing a CompiledPlan's waves in
// strict sequence, each wave's invocations in parallel under a concurrency
// cap, threading resolved outputs from one wave into the templates of the
// next and finally resolving the workflow's output projection.
//
// The wave-sequential/intra-wave-parallel shape is grounded on the teacher's
// cmd/workflow-runner (coordinator dispatching a ready set of nodes at a
// time) generalized from its per-node Redis-stream dispatch into a direct
// in-process errgroup+semaphore fan-out, following the pack's
// sarlalian-ritual internal/executor/executor.go executeLayerParallel
// pattern (semaphore-bounded goroutines over one dependency layer, first
// error wins) for the concurrency-cap shape.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lyzr/workflowengine/common/telemetry"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/template"
	"github.com/lyzr/workflowengine/pkg/wferrors"
	"github.com/lyzr/workflowengine/pkg/workflow"
)

// Options configures one Execute call, per §6's Orchestrator entry point.
type Options struct {
	MaxConcurrency int           // bounds total in-flight HTTP calls across the execution; default 8
	Deadline       time.Duration // optional overall execution timeout; zero means no additional deadline
}

// Orchestrator executes compiled plans against an HTTP task executor.
type Orchestrator struct {
	Executor  *task.Executor
	Telemetry *telemetry.Telemetry // optional; nil disables per-wave metrics
}

// New builds an Orchestrator bound to executor.
func New(executor *task.Executor) *Orchestrator {
	return &Orchestrator{Executor: executor}
}

// Execute runs plan against input and env, honoring ctx's cancellation and
// opts, per §4.7. Returns the final projected output object, or a
// structured error and no outputs on any failure.
func (o *Orchestrator) Execute(ctx context.Context, plan *workflow.CompiledPlan, input map[string]interface{}, env map[string]string, opts Options) (map[string]interface{}, error) {
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = 8
	}
	if maxConcurrency < 0 {
		return nil, &wferrors.ConfigurationInvalid{Field: "maxConcurrency", Reason: "must be positive"}
	}

	if violations := schema.Validate(input, plan.InputSchema); len(violations) > 0 {
		return nil, &wferrors.InputInvalid{Scope: "workflow:" + plan.WorkflowName, Violations: violations}
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	execID := uuid.NewString()
	ectx := newExecContext(input, env)
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	for waveIdx, wave := range plan.Waves {
		if err := ctx.Err(); err != nil {
			return nil, cancelledFrom(err)
		}

		if o.Telemetry != nil {
			o.Telemetry.WaveWidth.Observe(float64(len(wave)))
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range wave {
			id := id
			inv := plan.Invocations[id]
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return cancelledFrom(gctx.Err())
				}
				defer sem.Release(1)

				resolvedInput, err := resolveInput(inv, ectx)
				if err != nil {
					return fmt.Errorf("resolving invocation %s input: %w", id, err)
				}

				def := *inv.Task
				def.Retry = inv.Retry
				def.Timeout = inv.Timeout
				out, err := o.Executor.Execute(gctx, fmt.Sprintf("%s/%s", execID, id), waveIdx, &def, resolvedInput, env)
				if err != nil {
					return err
				}

				ectx.setOutput(id, out)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	projected, err := resolveProjection(plan, ectx)
	if err != nil {
		return nil, err
	}
	return projected, nil
}

// execContext holds the mutable per-execution state: each invocation writes
// its output as soon as it completes, under mu, and the next wave's template
// resolution only starts after the wave join in Execute, so it always sees
// a fully-settled prior wave, matching §5's ordering guarantees.
type execContext struct {
	input map[string]interface{}
	env   map[string]string

	mu      sync.RWMutex
	outputs map[string]interface{}
}

func newExecContext(input map[string]interface{}, env map[string]string) *execContext {
	return &execContext{input: input, env: env, outputs: make(map[string]interface{})}
}

func (e *execContext) setOutput(id string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[id] = value
}

func (e *execContext) templateContext() *template.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tasks := make(map[string]interface{}, len(e.outputs))
	for id, v := range e.outputs {
		tasks[id] = v
	}
	return &template.Context{Input: e.input, Env: e.env, Tasks: tasks}
}

func resolveInput(inv *workflow.ResolvedInvocation, ectx *execContext) (map[string]interface{}, error) {
	tctx := ectx.templateContext()
	resolved := make(map[string]interface{}, len(inv.Input))
	for key, binding := range inv.Input {
		v, err := binding.Resolve(tctx)
		if err != nil {
			return nil, err
		}
		resolved[key] = v
	}
	return resolved, nil
}

func resolveProjection(plan *workflow.CompiledPlan, ectx *execContext) (map[string]interface{}, error) {
	tctx := ectx.templateContext()
	out := make(map[string]interface{}, len(plan.OutputProjection))
	for name, tmpl := range plan.OutputProjection {
		v, err := tmpl.Resolve(tctx)
		if err != nil {
			return nil, &wferrors.OutputProjectionFailed{Name: name, Reason: err.Error()}
		}
		out[name] = v
	}
	return out, nil
}

func cancelledFrom(err error) error {
	if err == context.DeadlineExceeded {
		return &wferrors.Cancelled{Source: wferrors.CancelDeadline}
	}
	return &wferrors.Cancelled{Source: wferrors.CancelCaller}
}
