package task_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowengine/pkg/retry"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/template"
	"github.com/lyzr/workflowengine/pkg/wferrors"
)

type stubClient struct {
	responses []*task.Response
	errs      []error
	calls     int32
}

func (s *stubClient) Send(ctx context.Context, req *task.Request) (*task.Response, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func mustSchema(t *testing.T, raw string) *schema.Schema {
	t.Helper()
	var decoded interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	s, err := schema.Parse(decoded)
	require.NoError(t, err)
	return s
}

func mustTemplate(t *testing.T, raw string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse(raw)
	require.NoError(t, err)
	return tmpl
}

func simpleDef(t *testing.T, url string) *task.Definition {
	return &task.Definition{
		Name:         "echo",
		InputSchema:  mustSchema(t, `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
		OutputSchema: mustSchema(t, `{"type":"object","properties":{"y":{"type":"string"}},"required":["y"]}`),
		HTTP: task.HTTPSpec{
			Method: "POST",
			URL:    mustTemplate(t, url),
		},
		Timeout: 2 * time.Second,
		Retry:   retry.DefaultPolicy(),
	}
}

func TestExecute_SuccessOnFirstAttempt(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 200, Header: http.Header{}, Body: []byte(`{"y":"ok"}`)},
	}}
	exec := task.NewExecutor(client)
	exec.URLValidator = nil // test stub hosts aren't real; SSRF checks tested separately
	out, err := exec.Execute(context.Background(), "inv1", 0, simpleDef(t, "http://example.test/run"), map[string]interface{}{"n": float64(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.(map[string]interface{})["y"])
	assert.EqualValues(t, 1, client.calls)
}

func TestExecute_InputInvalidShortCircuits(t *testing.T) {
	client := &stubClient{responses: []*task.Response{{Status: 200}}}
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	_, err := exec.Execute(context.Background(), "inv1", 0, simpleDef(t, "http://example.test/run"), map[string]interface{}{}, nil)
	require.Error(t, err)
	var invalid *wferrors.InputInvalid
	assert.ErrorAs(t, err, &invalid)
	assert.EqualValues(t, 0, client.calls)
}

func TestExecute_RetriesOnRetryableStatusThenSucceeds(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 503, Header: http.Header{}, Body: []byte(`{}`)},
		{Status: 503, Header: http.Header{}, Body: []byte(`{}`)},
		{Status: 200, Header: http.Header{}, Body: []byte(`{"y":"ok"}`)},
	}}
	def := simpleDef(t, "http://example.test/run")
	def.Retry.BaseDelay = time.Millisecond
	def.Retry.Cap = 5 * time.Millisecond
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	out, err := exec.Execute(context.Background(), "inv1", 0, def, map[string]interface{}{"n": float64(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.(map[string]interface{})["y"])
	assert.EqualValues(t, 3, client.calls)
}

func TestExecute_ArrayOutputIsNotWrapped(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 200, Header: http.Header{}, Body: []byte(`[1,2,3]`)},
	}}
	def := simpleDef(t, "http://example.test/run")
	def.OutputSchema = mustSchema(t, `{"type":"array"}`)
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	out, err := exec.Execute(context.Background(), "inv1", 0, def, map[string]interface{}{"n": float64(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, out)
}

func TestExecute_FatalStatusDoesNotRetry(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 400, Header: http.Header{}, Body: []byte(`{"error":"bad"}`)},
	}}
	def := simpleDef(t, "http://example.test/run")
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	_, err := exec.Execute(context.Background(), "inv1", 0, def, map[string]interface{}{"n": float64(1)}, nil)
	require.Error(t, err)
	var failed *wferrors.TaskFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 1, failed.Attempts)
	assert.EqualValues(t, 1, client.calls)
}

func TestExecute_ExhaustsRetriesAndFails(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 503, Header: http.Header{}, Body: []byte(`{}`)},
		{Status: 503, Header: http.Header{}, Body: []byte(`{}`)},
		{Status: 503, Header: http.Header{}, Body: []byte(`{}`)},
	}}
	def := simpleDef(t, "http://example.test/run")
	def.Retry.MaxAttempts = 3
	def.Retry.BaseDelay = time.Millisecond
	def.Retry.Cap = 5 * time.Millisecond
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	_, err := exec.Execute(context.Background(), "inv1", 2, def, map[string]interface{}{"n": float64(1)}, nil)
	require.Error(t, err)
	var failed *wferrors.TaskFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, 2, failed.Wave)
	assert.EqualValues(t, 3, client.calls)
}

func TestExecute_OutputInvalidIsNotRetried(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 200, Header: http.Header{}, Body: []byte(`{"y":123}`)}, // wrong type
	}}
	def := simpleDef(t, "http://example.test/run")
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	_, err := exec.Execute(context.Background(), "inv1", 0, def, map[string]interface{}{"n": float64(1)}, nil)
	require.Error(t, err)
	var invalid *wferrors.OutputInvalid
	assert.ErrorAs(t, err, &invalid)
	assert.EqualValues(t, 1, client.calls)
}

func TestExecute_CancellationStopsRetryLoop(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 503, Header: http.Header{}, Body: []byte(`{}`)},
	}}
	def := simpleDef(t, "http://example.test/run")
	def.Retry.BaseDelay = 50 * time.Millisecond
	def.Retry.Cap = 50 * time.Millisecond
	def.Retry.MaxAttempts = 5

	ctx, cancel := context.WithCancel(context.Background())
	exec := task.NewExecutor(client)
	exec.URLValidator = nil

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, "inv1", 0, def, map[string]interface{}{"n": float64(1)}, nil)
	require.Error(t, err)
	var cancelled *wferrors.Cancelled
	assert.ErrorAs(t, err, &cancelled)
}

func TestExecute_URLTemplateUsesInputAndEnv(t *testing.T) {
	client := &stubClient{responses: []*task.Response{
		{Status: 200, Header: http.Header{}, Body: []byte(`{"y":"ok"}`)},
	}}
	def := simpleDef(t, "http://example.test/items/{{input.n}}?key={{env.API_KEY}}")
	exec := task.NewExecutor(client)
	exec.URLValidator = nil
	_, err := exec.Execute(context.Background(), "inv1", 0, def, map[string]interface{}{"n": float64(7)}, map[string]string{"API_KEY": "secret"})
	require.NoError(t, err)
}
