// Package wferrors defines the closed error taxonomy of the workflow engine.
//
// Every failure the engine can produce is one of the kinds below. Compile-time
// checks aggregate every violation they find; runtime checks short-circuit on
// the first failure, per the propagation policy in the specification.
package wferrors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ViolationKind enumerates the ways a value can fail schema validation.
type ViolationKind string

const (
	ViolationTypeMismatch    ViolationKind = "type-mismatch"
	ViolationMissingRequired ViolationKind = "missing-required"
	ViolationOutOfRange      ViolationKind = "out-of-range"
	ViolationEnumMismatch    ViolationKind = "enum-mismatch"
	ViolationFormatMismatch  ViolationKind = "format-mismatch"
	ViolationExtraProperty   ViolationKind = "extra-property-in-strict"
)

// Violation is a single schema-validation failure at a field path.
type Violation struct {
	Path   string
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Path, v.Detail, v.Kind)
}

// SchemaInvalid wraps the full set of violations found validating a value.
type SchemaInvalid struct {
	Scope      string // "input", "task-input:<id>", etc.
	Violations []Violation
}

func (e *SchemaInvalid) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("schema-invalid[%s]: %s", e.Scope, strings.Join(parts, "; "))
}

// TemplateParseFailed reports a template that failed to parse.
type TemplateParseFailed struct {
	Template string
	Position int
	Reason   string
}

func (e *TemplateParseFailed) Error() string {
	return fmt.Sprintf("template-parse-failed: %q at position %d: %s", e.Template, e.Position, e.Reason)
}

// BindingMismatch reports a type-incompatible invocation input binding.
type BindingMismatch struct {
	InvocationID   string
	Property       string
	ExpectedSchema string
	GotSchema      string
	Path           string
}

func (e *BindingMismatch) Error() string {
	return fmt.Sprintf("binding-mismatch[%s.%s]: expected %s, got %s (at %s)",
		e.InvocationID, e.Property, e.ExpectedSchema, e.GotSchema, e.Path)
}

// UnknownTaskRef reports an invocation referencing an unresolvable task.
type UnknownTaskRef struct {
	InvocationID string
	TaskRef      string
	Suggestions  []string
}

func (e *UnknownTaskRef) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown-task-ref[%s]: %q not found", e.InvocationID, e.TaskRef)
	}
	return fmt.Sprintf("unknown-task-ref[%s]: %q not found, did you mean: %s?",
		e.InvocationID, e.TaskRef, strings.Join(e.Suggestions, ", "))
}

// SuggestNames returns up to `limit` candidates from `known` closest to `want`
// by Levenshtein edit distance, ascending distance then lexical order.
func SuggestNames(want string, known []string, limit int) []string {
	type scored struct {
		name string
		dist int
	}
	scoredNames := make([]scored, 0, len(known))
	for _, name := range known {
		scoredNames = append(scoredNames, scored{name, levenshtein.ComputeDistance(want, name)})
	}
	sort.Slice(scoredNames, func(i, j int) bool {
		if scoredNames[i].dist != scoredNames[j].dist {
			return scoredNames[i].dist < scoredNames[j].dist
		}
		return scoredNames[i].name < scoredNames[j].name
	})
	if limit > len(scoredNames) {
		limit = len(scoredNames)
	}
	out := make([]string, 0, limit)
	for _, s := range scoredNames[:limit] {
		out = append(out, s.name)
	}
	return out
}

// DuplicateInvocationID reports a repeated invocation id within a workflow.
type DuplicateInvocationID struct {
	ID          string
	Occurrences int
}

func (e *DuplicateInvocationID) Error() string {
	return fmt.Sprintf("duplicate-invocation-id: %q appears %d times", e.ID, e.Occurrences)
}

// MissingRequiredBinding reports a task-required input property left unbound.
type MissingRequiredBinding struct {
	InvocationID string
	Property     string
}

func (e *MissingRequiredBinding) Error() string {
	return fmt.Sprintf("missing-required-binding[%s]: %q", e.InvocationID, e.Property)
}

// CycleDetected reports a dependency cycle among invocations.
type CycleDetected struct {
	Path []string
}

func (e *CycleDetected) Error() string {
	return fmt.Sprintf("cycle-detected: %s", strings.Join(e.Path, " -> "))
}

// InputInvalid is the runtime counterpart of SchemaInvalid.
type InputInvalid struct {
	Scope      string
	Violations []Violation
}

func (e *InputInvalid) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("input-invalid[%s]: %s", e.Scope, strings.Join(parts, "; "))
}

// TaskFailed reports an invocation's HTTP task exhausting retries or failing fatally.
type TaskFailed struct {
	InvocationID string
	Wave         int
	Attempts     int
	LastStatus   int
	LastBody     string
	Cause        error
}

func (e *TaskFailed) Error() string {
	return fmt.Sprintf("task-failed[%s@wave %d]: %d attempts, last_status=%d: %v",
		e.InvocationID, e.Wave, e.Attempts, e.LastStatus, e.Cause)
}

func (e *TaskFailed) Unwrap() error { return e.Cause }

// OutputInvalid reports a task response that failed output-schema validation.
type OutputInvalid struct {
	InvocationID string
	Violations   []Violation
}

func (e *OutputInvalid) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("output-invalid[%s]: %s", e.InvocationID, strings.Join(parts, "; "))
}

// OutputProjectionFailed reports a final output expression that failed to resolve.
type OutputProjectionFailed struct {
	Name   string
	Reason string
}

func (e *OutputProjectionFailed) Error() string {
	return fmt.Sprintf("output-projection-failed[%s]: %s", e.Name, e.Reason)
}

// CancelSource identifies why an execution was cancelled.
type CancelSource string

const (
	CancelCaller       CancelSource = "caller"
	CancelDeadline     CancelSource = "deadline"
	CancelPeerFailure  CancelSource = "peer-failure"
)

// Cancelled reports a cancelled execution.
type Cancelled struct {
	Source CancelSource
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("cancelled: source=%s", e.Source)
}

// ConfigurationInvalid reports an invalid construction-time option.
type ConfigurationInvalid struct {
	Field  string
	Reason string
}

func (e *ConfigurationInvalid) Error() string {
	return fmt.Sprintf("configuration-invalid[%s]: %s", e.Field, e.Reason)
}

// Aggregate collects multiple independent errors raised during a single
// compile-time pass (schema, binding, template, etc.) and reports them
// together, per the propagation policy: "all failures of a stage are
// collected and returned together".
type Aggregate struct {
	Errors []error
}

func (a *Aggregate) Error() string {
	parts := make([]string, 0, len(a.Errors))
	for _, err := range a.Errors {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "\n")
}

func (a *Aggregate) Add(err error) {
	if err != nil {
		a.Errors = append(a.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is/errors.As, so callers can
// test an Aggregate for a specific underlying kind without type-switching on
// Aggregate itself first.
func (a *Aggregate) Unwrap() []error { return a.Errors }

func (a *Aggregate) HasErrors() bool { return len(a.Errors) > 0 }

// AsError returns nil if no errors were collected, else itself.
func (a *Aggregate) AsError() error {
	if a == nil || !a.HasErrors() {
		return nil
	}
	return a
}
