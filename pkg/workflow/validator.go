package workflow

import (
	"fmt"
	"strings"

	"github.com/lyzr/workflowengine/pkg/compat"
	"github.com/lyzr/workflowengine/pkg/graph"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/template"
	"github.com/lyzr/workflowengine/pkg/wferrors"
)

// NameLister is an optional capability a task.Registry may implement to
// supply the candidate pool for unknown-task-ref "did you mean" suggestions.
// Registries that don't implement it simply get no suggestions.
type NameLister interface {
	TaskNames(namespace string) []string
}

// Validate runs the ordered, gating compile-time checks of §4.5 against def
// and registry, returning a CompiledPlan on success or a *wferrors.Aggregate
// collecting every failure found. Validate is pure with respect to the
// registry snapshot observed during the call.
func Validate(def *Definition, registry task.Registry) (*CompiledPlan, error) {
	return compile(def, registry, nil)
}

// ValidateWithWaves behaves like Validate but reuses a wave partition
// already computed and cached for this (workflow, version) pair — by this
// process or a fleet peer via RedisPlanCache — skipping stage 5's graph
// build and cycle detection. Every other stage still runs: a cached wave
// partition says nothing about whether the definition's schemas, templates,
// or bindings are still compatible, only about task dependency ordering.
func ValidateWithWaves(def *Definition, registry task.Registry, waves [][]string) (*CompiledPlan, error) {
	return compile(def, registry, waves)
}

func compile(def *Definition, registry task.Registry, precomputedWaves [][]string) (*CompiledPlan, error) {
	agg := &wferrors.Aggregate{}

	// Stage 1: structural — id uniqueness, non-empty taskRef, resolvable in registry.
	resolved := stage1Structural(def, registry, agg)
	if agg.HasErrors() {
		return nil, agg.AsError()
	}

	// Stage 2: input-binding coverage.
	stage2Bindings(def, resolved, agg)
	if agg.HasErrors() {
		return nil, agg.AsError()
	}

	// Stage 3: template parsing for every binding and every output entry.
	bindings, outputTemplates := stage3Templates(def, agg)
	if agg.HasErrors() {
		return nil, agg.AsError()
	}

	// Stage 4: type compatibility.
	stage4Compatibility(def, resolved, bindings, agg)
	if agg.HasErrors() {
		return nil, agg.AsError()
	}

	// Stage 5: graph build + cycle detection, unless a caller already has a
	// wave partition for this exact definition version.
	waves := precomputedWaves
	if waves == nil {
		w, err := stage5Graph(def, bindings)
		if err != nil {
			agg.Add(err)
			return nil, agg.AsError()
		}
		waves = w
	}

	// Stage 6: output projection resolves in principle.
	stage6OutputProjection(def, resolved, outputTemplates, agg)
	if agg.HasErrors() {
		return nil, agg.AsError()
	}

	invocations := make(map[string]*ResolvedInvocation, len(def.Tasks))
	for _, inv := range def.Tasks {
		td := resolved[inv.ID]
		timeout := td.Timeout
		if inv.Timeout > 0 {
			timeout = inv.Timeout
		}
		policy := td.Retry
		if inv.Retry != nil {
			policy = *inv.Retry
		}
		invocations[inv.ID] = &ResolvedInvocation{
			ID:      inv.ID,
			Task:    td,
			Input:   bindings[inv.ID],
			Timeout: timeout,
			Retry:   policy,
		}
	}

	return &CompiledPlan{
		WorkflowName:     def.Name,
		InputSchema:      def.InputSchema,
		Invocations:      invocations,
		Waves:            waves,
		OutputProjection: outputTemplates,
	}, nil
}

func stage1Structural(def *Definition, registry task.Registry, agg *wferrors.Aggregate) map[string]*task.Definition {
	seen := make(map[string]int, len(def.Tasks))
	for _, inv := range def.Tasks {
		seen[inv.ID]++
	}
	for id, count := range seen {
		if count > 1 {
			agg.Add(&wferrors.DuplicateInvocationID{ID: id, Occurrences: count})
		}
	}

	var lister NameLister
	if l, ok := registry.(NameLister); ok {
		lister = l
	}

	resolved := make(map[string]*task.Definition, len(def.Tasks))
	for _, inv := range def.Tasks {
		if inv.TaskRef == "" {
			agg.Add(&wferrors.UnknownTaskRef{InvocationID: inv.ID, TaskRef: ""})
			continue
		}
		td, ok := registry.Lookup(inv.TaskRef, def.Namespace)
		if !ok {
			var suggestions []string
			if lister != nil {
				suggestions = wferrors.SuggestNames(inv.TaskRef, lister.TaskNames(def.Namespace), 3)
			}
			agg.Add(&wferrors.UnknownTaskRef{InvocationID: inv.ID, TaskRef: inv.TaskRef, Suggestions: suggestions})
			continue
		}
		resolved[inv.ID] = td
	}
	return resolved
}

func stage2Bindings(def *Definition, resolved map[string]*task.Definition, agg *wferrors.Aggregate) {
	for _, inv := range def.Tasks {
		td, ok := resolved[inv.ID]
		if !ok {
			continue
		}
		for key := range inv.Input {
			if _, declared := td.InputSchema.Properties[key]; !declared {
				agg.Add(&wferrors.BindingMismatch{
					InvocationID: inv.ID, Property: key,
					ExpectedSchema: "declared property of task " + td.Name,
					GotSchema:      "undeclared property",
				})
			}
		}
		for _, required := range td.InputSchema.Required {
			if _, bound := inv.Input[required]; !bound {
				agg.Add(&wferrors.MissingRequiredBinding{InvocationID: inv.ID, Property: required})
			}
		}
	}
}

func stage3Templates(def *Definition, agg *wferrors.Aggregate) (map[string]map[string]Binding, map[string]*template.Template) {
	bindings := make(map[string]map[string]Binding, len(def.Tasks))
	for _, inv := range def.Tasks {
		invBindings := make(map[string]Binding, len(inv.Input))
		for key, raw := range inv.Input {
			b, err := parseBinding(raw)
			if err != nil {
				agg.Add(&wferrors.TemplateParseFailed{Template: fmt.Sprintf("%v", raw), Reason: fmt.Sprintf("%s.%s: %v", inv.ID, key, err)})
				continue
			}
			invBindings[key] = b
		}
		bindings[inv.ID] = invBindings
	}

	outputTemplates := make(map[string]*template.Template, len(def.Output))
	for name, expr := range def.Output {
		tmpl, err := template.Parse(expr)
		if err != nil {
			agg.Add(err)
			continue
		}
		outputTemplates[name] = tmpl
	}
	return bindings, outputTemplates
}

// parseBinding decides, per §3, whether raw is a template expression or a
// JSON literal: only strings are ever parsed as templates (a plain string
// with no `{{` is still syntactically valid template input — it parses to a
// single literal piece — so every string binding is driven through the
// template resolver uniformly). Non-string JSON values are always literals.
func parseBinding(raw interface{}) (Binding, error) {
	s, ok := raw.(string)
	if !ok {
		return Binding{Literal: raw, HasValue: true}, nil
	}
	tmpl, err := template.Parse(s)
	if err != nil {
		return Binding{}, err
	}
	return Binding{Template: tmpl, HasValue: true}, nil
}

func stage4Compatibility(def *Definition, resolved map[string]*task.Definition, bindings map[string]map[string]Binding, agg *wferrors.Aggregate) {
	for _, inv := range def.Tasks {
		td := resolved[inv.ID]
		for key, b := range bindings[inv.ID] {
			consumerSchema, ok := td.InputSchema.Properties[key]
			if !ok {
				continue // already reported in stage 2
			}
			checkBindingCompatibility(def, resolved, inv.ID, key, b, consumerSchema, agg)
		}
	}
}

func checkBindingCompatibility(def *Definition, resolved map[string]*task.Definition, invID, property string, b Binding, consumerSchema *schema.Schema, agg *wferrors.Aggregate) {
	if b.Template == nil {
		violations := schema.Validate(b.Literal, consumerSchema)
		for _, v := range violations {
			agg.Add(&wferrors.BindingMismatch{
				InvocationID: invID, Property: property,
				ExpectedSchema: string(consumerSchema.Kind), GotSchema: fmt.Sprintf("literal (%s)", v.Kind),
				Path: v.Path,
			})
		}
		return
	}

	if !b.Template.Pure {
		// A mixed template always stringifies to string at runtime.
		if consumerSchema.Kind != schema.KindString && consumerSchema.Kind != schema.KindAny {
			agg.Add(&wferrors.BindingMismatch{
				InvocationID: invID, Property: property,
				ExpectedSchema: string(consumerSchema.Kind), GotSchema: "string (mixed template)",
			})
		}
		return
	}

	piece := b.Template.Pieces[0].(template.PathPiece)
	path := piece.Path

	switch path.Root {
	case template.RootTasks:
		producerInv := path.TaskID()
		producerTask, ok := resolved[producerInv]
		if !ok {
			agg.Add(&wferrors.UnknownTaskRef{InvocationID: invID, TaskRef: producerInv})
			return
		}
		producerSchema, err := schema.DeriveAt(producerTask.OutputSchema, path.OutputSteps())
		if err != nil {
			agg.Add(&wferrors.BindingMismatch{
				InvocationID: invID, Property: property,
				ExpectedSchema: string(consumerSchema.Kind), GotSchema: "unresolvable path: " + err.Error(),
				Path: path.String(),
			})
			return
		}
		reportIncompatibilities(invID, property, path.String(), producerSchema, consumerSchema, agg)
	case template.RootInput:
		producerSchema, err := schema.DeriveAt(def.InputSchema, path.InputSteps())
		if err != nil {
			agg.Add(&wferrors.BindingMismatch{
				InvocationID: invID, Property: property,
				ExpectedSchema: string(consumerSchema.Kind), GotSchema: "unresolvable path: " + err.Error(),
				Path: path.String(),
			})
			return
		}
		reportIncompatibilities(invID, property, path.String(), producerSchema, consumerSchema, agg)
	case template.RootEnv:
		if consumerSchema.Kind != schema.KindString && consumerSchema.Kind != schema.KindAny {
			agg.Add(&wferrors.BindingMismatch{
				InvocationID: invID, Property: property,
				ExpectedSchema: string(consumerSchema.Kind), GotSchema: "string (env var)", Path: path.String(),
			})
		}
	}
}

func reportIncompatibilities(invID, property, path string, producer, consumer *schema.Schema, agg *wferrors.Aggregate) {
	for _, inc := range compat.Check(producer, consumer) {
		agg.Add(&wferrors.BindingMismatch{
			InvocationID: invID, Property: property,
			ExpectedSchema: string(consumer.Kind), GotSchema: string(producer.Kind),
			Path: path + strings.TrimPrefix(inc.Path, "$"),
		})
	}
}

func stage5Graph(def *Definition, bindings map[string]map[string]Binding) ([][]string, error) {
	deps := make(map[string][]string, len(def.Tasks))
	for _, inv := range def.Tasks {
		deps[inv.ID] = nil
	}
	for _, inv := range def.Tasks {
		seen := make(map[string]bool)
		for _, b := range bindings[inv.ID] {
			if b.Template == nil {
				continue
			}
			for _, id := range b.Template.Dependencies() {
				if _, exists := deps[id]; !exists {
					return nil, &wferrors.UnknownTaskRef{InvocationID: inv.ID, TaskRef: id}
				}
				if !seen[id] {
					seen[id] = true
					deps[inv.ID] = append(deps[inv.ID], id)
				}
			}
		}
	}

	g := graph.New(deps)
	return g.Waves()
}

func stage6OutputProjection(def *Definition, resolved map[string]*task.Definition, outputTemplates map[string]*template.Template, agg *wferrors.Aggregate) {
	for name, tmpl := range outputTemplates {
		for _, piece := range tmpl.Pieces {
			p, ok := piece.(template.PathPiece)
			if !ok {
				continue
			}
			switch p.Path.Root {
			case template.RootTasks:
				producerInv := p.Path.TaskID()
				td, ok := resolved[producerInv]
				if !ok {
					agg.Add(&wferrors.OutputProjectionFailed{Name: name, Reason: fmt.Sprintf("references unknown invocation %q", producerInv)})
					continue
				}
				if _, err := schema.DeriveAt(td.OutputSchema, p.Path.OutputSteps()); err != nil {
					agg.Add(&wferrors.OutputProjectionFailed{Name: name, Reason: err.Error()})
				}
			case template.RootInput:
				if _, err := schema.DeriveAt(def.InputSchema, p.Path.InputSteps()); err != nil {
					agg.Add(&wferrors.OutputProjectionFailed{Name: name, Reason: err.Error()})
				}
			}
		}
	}
}
