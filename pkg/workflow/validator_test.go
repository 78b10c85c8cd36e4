package workflow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowengine/pkg/registry"
	"github.com/lyzr/workflowengine/pkg/retry"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/wferrors"
	"github.com/lyzr/workflowengine/pkg/workflow"
)

func mustSchema(t *testing.T, raw string) *schema.Schema {
	t.Helper()
	var decoded interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	s, err := schema.Parse(decoded)
	require.NoError(t, err)
	return s
}

func defTask(t *testing.T, name, inputSchema, outputSchema string) *task.Definition {
	return &task.Definition{
		Name:         name,
		InputSchema:  mustSchema(t, inputSchema),
		OutputSchema: mustSchema(t, outputSchema),
		Retry:        retry.DefaultPolicy(),
	}
}

func TestValidate_LinearTwoTask(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`, `{"type":"object","properties":{"y":{"type":"string"}},"required":["y"]}`)))
	require.NoError(t, reg.Register(defTask(t, "B", `{"type":"object","properties":{"s":{"type":"string"}},"required":["s"]}`, `{"type":"object","properties":{"ok":{"type":"boolean"}},"required":["ok"]}`)))

	def := &workflow.Definition{
		Name:        "linear",
		InputSchema: mustSchema(t, `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{"x": "{{input.n}}"}},
			{ID: "b", TaskRef: "B", Input: map[string]interface{}{"s": "{{tasks.a.output.y}}"}},
		},
		Output: map[string]string{"result": "{{tasks.b.output.ok}}"},
	}

	plan, err := workflow.Validate(def, reg)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, plan.Waves)
	assert.Len(t, plan.Invocations, 2)
	assert.Contains(t, plan.OutputProjection, "result")
}

func TestValidateWithWaves_ReusesGivenPartition(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`, `{"type":"object","properties":{"y":{"type":"string"}},"required":["y"]}`)))
	require.NoError(t, reg.Register(defTask(t, "B", `{"type":"object","properties":{"s":{"type":"string"}},"required":["s"]}`, `{"type":"object","properties":{"ok":{"type":"boolean"}},"required":["ok"]}`)))

	def := &workflow.Definition{
		Name:        "linear",
		InputSchema: mustSchema(t, `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{"x": "{{input.n}}"}},
			{ID: "b", TaskRef: "B", Input: map[string]interface{}{"s": "{{tasks.a.output.y}}"}},
		},
		Output: map[string]string{"result": "{{tasks.b.output.ok}}"},
	}

	cachedWaves := [][]string{{"a"}, {"b"}}
	plan, err := workflow.ValidateWithWaves(def, reg, cachedWaves)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, cachedWaves, plan.Waves)
	assert.Len(t, plan.Invocations, 2)
}

func TestValidateWithWaves_StillCatchesBindingErrors(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`, `{"type":"object"}`)))

	def := &workflow.Definition{
		Name:        "badbinding",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{}},
		},
	}

	_, err := workflow.ValidateWithWaves(def, reg, [][]string{{"a"}})
	require.Error(t, err)
	var missing *wferrors.MissingRequiredBinding
	assert.ErrorAs(t, err, &missing)
}

func TestValidate_DiamondShape(t *testing.T) {
	reg := registry.New()
	intSchema := `{"type":"object","properties":{"v":{"type":"integer"}},"required":["v"]}`
	for _, name := range []string{"P", "A", "B", "J"} {
		require.NoError(t, reg.Register(defTask(t, name, intSchema, intSchema)))
	}

	def := &workflow.Definition{
		Name:        "diamond",
		InputSchema: mustSchema(t, `{"type":"object","properties":{"v":{"type":"integer"}},"required":["v"]}`),
		Tasks: []workflow.Invocation{
			{ID: "p", TaskRef: "P", Input: map[string]interface{}{"v": "{{input.v}}"}},
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{"v": "{{tasks.p.output.v}}"}},
			{ID: "b", TaskRef: "B", Input: map[string]interface{}{"v": "{{tasks.p.output.v}}"}},
			{ID: "j", TaskRef: "J", Input: map[string]interface{}{"v": "{{tasks.a.output.v}}"}},
		},
	}

	plan, err := workflow.Validate(def, reg)
	require.NoError(t, err)
	require.Len(t, plan.Waves, 3)
	assert.Equal(t, []string{"p"}, plan.Waves[0])
	assert.ElementsMatch(t, []string{"a", "b"}, plan.Waves[1])
	assert.Equal(t, []string{"j"}, plan.Waves[2])
}

func TestValidate_CycleRejected(t *testing.T) {
	reg := registry.New()
	s := `{"type":"object","properties":{"x":{"type":"string"}},"required":["x"]}`
	require.NoError(t, reg.Register(defTask(t, "A", s, s)))
	require.NoError(t, reg.Register(defTask(t, "B", s, s)))

	def := &workflow.Definition{
		Name:        "cyclic",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{"x": "{{tasks.b.output.x}}"}},
			{ID: "b", TaskRef: "B", Input: map[string]interface{}{"x": "{{tasks.a.output.x}}"}},
		},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var cycle *wferrors.CycleDetected
	assert.ErrorAs(t, err, &cycle)
}

func TestValidate_TypeMismatch(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object"}`, `{"type":"object","properties":{"y":{"type":"string"}},"required":["y"]}`)))
	require.NoError(t, reg.Register(defTask(t, "B", `{"type":"object","properties":{"s":{"type":"integer"}},"required":["s"]}`, `{"type":"object"}`)))

	def := &workflow.Definition{
		Name:        "mismatch",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{}},
			{ID: "b", TaskRef: "B", Input: map[string]interface{}{"s": "{{tasks.a.output.y}}"}},
		},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var mismatch *wferrors.BindingMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "b", mismatch.InvocationID)
	assert.Equal(t, "s", mismatch.Property)
}

func TestValidate_UnknownTaskRefSuggestsClosestName(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "fetch-user", `{"type":"object"}`, `{"type":"object"}`)))

	def := &workflow.Definition{
		Name:        "typo",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "fetch-usr", Input: map[string]interface{}{}},
		},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var unknown *wferrors.UnknownTaskRef
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, unknown.Suggestions, "fetch-user")
}

func TestValidate_DuplicateInvocationID(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object"}`, `{"type":"object"}`)))

	def := &workflow.Definition{
		Name:        "dup",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{}},
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{}},
		},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var dup *wferrors.DuplicateInvocationID
	assert.ErrorAs(t, err, &dup)
}

func TestValidate_MissingRequiredBinding(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`, `{"type":"object"}`)))

	def := &workflow.Definition{
		Name:        "missing",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{}},
		},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var missing *wferrors.MissingRequiredBinding
	assert.ErrorAs(t, err, &missing)
}

func TestValidate_LiteralBindingCheckedDirectly(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`, `{"type":"object"}`)))

	def := &workflow.Definition{
		Name:        "literal",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{"x": "not-a-number"}},
		},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var mismatch *wferrors.BindingMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestValidate_OutputProjectionUnresolvablePath(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(defTask(t, "A", `{"type":"object"}`, `{"type":"object","properties":{"y":{"type":"string"}},"required":["y"]}`)))

	def := &workflow.Definition{
		Name:        "badprojection",
		InputSchema: mustSchema(t, `{"type":"object"}`),
		Tasks: []workflow.Invocation{
			{ID: "a", TaskRef: "A", Input: map[string]interface{}{}},
		},
		Output: map[string]string{"result": "{{tasks.a.output.nonexistent}}"},
	}

	_, err := workflow.Validate(def, reg)
	require.Error(t, err)
	var failed *wferrors.OutputProjectionFailed
	assert.ErrorAs(t, err, &failed)
}
