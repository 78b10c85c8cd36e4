package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/lyzr/workflowengine/common/telemetry"
	"github.com/lyzr/workflowengine/pkg/retry"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task/security"
	"github.com/lyzr/workflowengine/pkg/template"
	"github.com/lyzr/workflowengine/pkg/wferrors"
)

// excerptLimit bounds how much of a failing response body is retained in a
// TaskFailed diagnostic.
const excerptLimit = 2048

// Executor runs a single task invocation's HTTP call end to end: input
// validation, request materialization, SSRF hardening, the retry-bounded
// attempt loop, and output validation. Grounded on the teacher's
// cmd/workflow-runner/worker/http_worker.go executeHTTPRequest for the
// request-build/response-parse shape, generalized from its Redis-stream
// consumption into a direct, synchronous call.
type Executor struct {
	Client       HttpClient
	URLValidator *security.URLValidator
	Limiters     *Limiters
	Telemetry    *telemetry.Telemetry // optional; nil disables per-invocation metrics
}

// NewExecutor builds an Executor with the default SSRF validator (no
// allow-listed hosts) and no outbound rate limiting.
func NewExecutor(client HttpClient) *Executor {
	return &Executor{
		Client:       client,
		URLValidator: security.NewURLValidator(),
	}
}

// Execute runs def against input/env, identified by invocationID/wave for
// diagnostic purposes. ctx supplies the overall cancellation/deadline; the
// per-attempt deadline is min(remaining ctx deadline, def.Timeout). The
// attempt loop is driven by def.Retry.Backoff(), a goretry.Backoff built
// from the policy's exponential-with-full-jitter parameters; a 429's
// Retry-After header overrides exactly the next sleep via retryAfterBackoff.
func (e *Executor) Execute(ctx context.Context, invocationID string, wave int, def *Definition, input map[string]interface{}, env map[string]string) (interface{}, error) {
	if violations := schema.Validate(input, def.InputSchema); len(violations) > 0 {
		return nil, &wferrors.InputInvalid{Scope: "task:" + def.Name, Violations: violations}
	}

	req, err := e.materialize(def, input, env)
	if err != nil {
		return nil, fmt.Errorf("materializing request for invocation %s: %w", invocationID, err)
	}

	if e.URLValidator != nil {
		if err := e.URLValidator.Validate(req.URL); err != nil {
			return nil, fmt.Errorf("invocation %s: request URL rejected: %w", invocationID, err)
		}
	}

	if e.Limiters != nil {
		if err := e.Limiters.Wait(ctx, def.Name); err != nil {
			return nil, &wferrors.Cancelled{Source: wferrors.CancelCaller}
		}
	}

	policy := def.Retry
	backoff := &retryAfterBackoff{inner: policy.Backoff()}
	start := time.Now()

	var (
		attempt    int
		lastStatus int
		lastBody   []byte
		lastErr    error
		output     interface{}
		outputErr  error
	)

	runErr := goretry.Do(ctx, backoff, func(loopCtx context.Context) error {
		attempt++
		if err := loopCtx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := attemptContext(loopCtx, def.Timeout)
		resp, sendErr := e.Client.Send(attemptCtx, req)
		cancel()

		if sendErr != nil {
			if loopCtx.Err() != nil {
				return loopCtx.Err()
			}
			lastErr = sendErr
			if retry.ClassifyTransportError(sendErr) == retry.OutcomeRetryable {
				return goretry.RetryableError(sendErr)
			}
			return sendErr
		}

		lastStatus = resp.Status
		lastBody = resp.Body
		lastErr = nil

		switch policy.ClassifyStatus(resp.Status) {
		case retry.OutcomeSuccess:
			out, err := parseOutput(invocationID, def, resp.Body)
			if err != nil {
				outputErr = err
				return err
			}
			output = out
			return nil
		case retry.OutcomeRetryable:
			if resp.Status == http.StatusTooManyRequests {
				if hinted, ok := policy.RetryAfter(resp.Header.Get("Retry-After")); ok {
					backoff.override = &hinted
				}
			}
			return goretry.RetryableError(fatalCause(nil, resp.Status))
		default:
			return fatalCause(nil, resp.Status)
		}
	})

	var result interface{}
	var outErr error
	switch {
	case outputErr != nil:
		outErr = outputErr
	case runErr == nil:
		result = output
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		outErr = cancelledFrom(runErr)
	default:
		outErr = &wferrors.TaskFailed{
			InvocationID: invocationID, Wave: wave, Attempts: attempt,
			LastStatus: lastStatus, LastBody: excerpt(lastBody), Cause: fatalCause(lastErr, lastStatus),
		}
	}

	if e.Telemetry != nil {
		e.Telemetry.TaskDuration.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())
		outcome := "success"
		if outErr != nil {
			outcome = "failure"
		}
		e.Telemetry.InvocationsTotal.WithLabelValues(def.Name, outcome).Inc()
		if attempt > 1 {
			e.Telemetry.RetriesTotal.WithLabelValues(def.Name).Add(float64(attempt - 1))
		}
	}

	return result, outErr
}

// retryAfterBackoff wraps a goretry.Backoff, letting one failed attempt pin
// the next sleep to a server Retry-After hint; otherwise it uses the
// wrapped exponential-with-jitter backoff. The wrapped backoff is stepped
// either way, so its retry limit still applies. Implements goretry.Backoff.
type retryAfterBackoff struct {
	inner    goretry.Backoff
	override *time.Duration
}

func (b *retryAfterBackoff) Next() (time.Duration, bool) {
	d, stop := b.inner.Next()
	if stop {
		return 0, true
	}
	if b.override != nil {
		d = *b.override
		b.override = nil
	}
	return d, false
}

func (e *Executor) materialize(def *Definition, input map[string]interface{}, env map[string]string) (*Request, error) {
	ctx := &template.Context{Input: input, Env: env}

	urlVal, err := def.HTTP.URL.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	urlStr, ok := urlVal.(string)
	if !ok {
		urlStr = fmt.Sprintf("%v", urlVal)
	}

	header := make(http.Header)
	for name, tmpl := range def.HTTP.Headers {
		v, err := tmpl.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", name, err)
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprintf("%v", v)
		}
		header.Set(name, s)
	}

	var body []byte
	if def.HTTP.BodyTemplate != nil {
		v, err := def.HTTP.BodyTemplate.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("body: marshaling resolved value: %w", err)
		}
		body = b
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	return &Request{Method: def.HTTP.Method, URL: urlStr, Header: header, Body: body}, nil
}

// parseOutput decodes body as a raw JSON value — object, array, or scalar —
// and validates it against def.OutputSchema. The decoded value is returned
// as-is, never wrapped, so tasks.<id>.output paths resolve against the
// task's actual response shape.
func parseOutput(invocationID string, def *Definition, body []byte) (interface{}, error) {
	var decoded interface{}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		decoded = map[string]interface{}{}
	} else if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, &wferrors.OutputInvalid{InvocationID: invocationID, Violations: []wferrors.Violation{{
			Path: "$", Kind: wferrors.ViolationTypeMismatch, Detail: fmt.Sprintf("response body is not valid JSON: %v", err),
		}}}
	}

	if violations := schema.Validate(decoded, def.OutputSchema); len(violations) > 0 {
		return nil, &wferrors.OutputInvalid{InvocationID: invocationID, Violations: violations}
	}

	return decoded, nil
}

func attemptContext(parent context.Context, perAttempt time.Duration) (context.Context, context.CancelFunc) {
	if perAttempt <= 0 {
		return context.WithCancel(parent)
	}
	if deadline, ok := parent.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < perAttempt {
			return context.WithDeadline(parent, deadline)
		}
	}
	return context.WithTimeout(parent, perAttempt)
}

func cancelledFrom(err error) error {
	if err == context.DeadlineExceeded {
		return &wferrors.Cancelled{Source: wferrors.CancelDeadline}
	}
	return &wferrors.Cancelled{Source: wferrors.CancelCaller}
}

func fatalCause(sendErr error, status int) error {
	if sendErr != nil {
		return sendErr
	}
	return fmt.Errorf("http status %d", status)
}

func excerpt(body []byte) string {
	if len(body) > excerptLimit {
		return string(body[:excerptLimit])
	}
	return string(body)
}

