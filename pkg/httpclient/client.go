// Package httpclient provides the default task.HttpClient implementation,
// a thin adapter over a github.com/go-resty/resty/v2 client. The executor
// owns retries and timeouts (§4.6); this adapter performs exactly one
// attempt per Send call and must not retry internally.
package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lyzr/workflowengine/pkg/task"
)

// Client adapts *resty.Client to task.HttpClient.
type Client struct {
	resty *resty.Client
}

// Option configures a Client at construction time.
type Option func(*resty.Client)

// WithTimeout sets resty's own dial/response timeout, independent of the
// per-attempt context deadline the executor already applies; this guards
// against a transport that ignores context cancellation.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithUserAgent overrides the client's default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *resty.Client) { c.SetHeader("User-Agent", ua) }
}

// New builds a Client with resty's connection reuse and no built-in retry
// (resty's own retry mechanism is left disabled; retry is the executor's
// responsibility alone).
func New(opts ...Option) *Client {
	c := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", "workflowengine/1")
	for _, opt := range opts {
		opt(c)
	}
	return &Client{resty: c}
}

// Send issues req and returns the raw response, performing no retries and
// no status-based error classification of its own — that is the executor's
// job via pkg/retry.
func (c *Client) Send(ctx context.Context, req *task.Request) (*task.Response, error) {
	r := c.resty.R().SetContext(ctx)
	for name, values := range req.Header {
		for _, v := range values {
			r.SetHeader(name, v)
		}
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}

	return &task.Response{
		Status: resp.StatusCode(),
		Header: resp.Header(),
		Body:   resp.Body(),
	}, nil
}
