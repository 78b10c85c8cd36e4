package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowengine/pkg/httpclient"
	"github.com/lyzr/workflowengine/pkg/task"
)

func TestClient_SendRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bar", r.Header.Get("X-Foo"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := httpclient.New()
	resp, err := c.Send(context.Background(), &task.Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"X-Foo": []string{"bar"}},
		Body:   []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestClient_SendHonorsContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := httpclient.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, &task.Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
}
