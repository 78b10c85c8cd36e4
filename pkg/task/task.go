// Package task implements the HTTP task definition model and the executor
// of §4.6: materializing a request from a task definition and a resolved
// input object, invoking it through the retry policy, and validating the
// response against the task's output schema.
package task

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lyzr/workflowengine/pkg/retry"
	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/template"
)

// HTTPSpec is a task's HTTP call shape, with every templated field
// pre-parsed. URL, header values, and body templates may only reference
// input.* and env.* — never tasks.* — since a task has no sibling
// invocations at definition time.
type HTTPSpec struct {
	Method       string
	URL          *template.Template
	Headers      map[string]*template.Template
	BodyTemplate *template.Template // nil if the task has no request body
}

// Definition is a parsed, immutable Task resource.
type Definition struct {
	Name         string
	Namespace    string
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
	HTTP         HTTPSpec
	Timeout      time.Duration
	Retry        retry.Policy
}

// Registry resolves a task name (optionally namespaced) to its parsed
// Definition. How it's populated — cluster watch, static file, test
// fixture — is opaque to the core; pkg/registry ships an in-memory
// reference implementation.
type Registry interface {
	Lookup(name, namespace string) (*Definition, bool)
}

// Request is a materialized, ready-to-send HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a received HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// HttpClient is the transport abstraction the executor consumes. It must
// honor ctx cancellation and must not implement its own retries — retry
// policy is entirely the executor's responsibility (§4.6).
type HttpClient interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// ValidateHTTPSpec enforces the Task-definition invariant that every
// template in http fields resolves only against input/env — never tasks,
// since a task has no visibility into sibling invocations.
func ValidateHTTPSpec(spec HTTPSpec, inputSchema *schema.Schema) error {
	check := func(field string, tmpl *template.Template) error {
		if tmpl == nil {
			return nil
		}
		for _, piece := range tmpl.Pieces {
			p, ok := piece.(template.PathPiece)
			if !ok {
				continue
			}
			if p.Path.Root == template.RootTasks {
				return fmt.Errorf("%s: task-level templates may not reference tasks.* (got %q)", field, p.Path.String())
			}
			if p.Path.Root == template.RootInput {
				if _, err := schema.DeriveAt(inputSchema, p.Path.InputSteps()); err != nil {
					return fmt.Errorf("%s: %q does not resolve against the declared input schema: %w", field, p.Path.String(), err)
				}
			}
		}
		return nil
	}

	if err := check("http.url", spec.URL); err != nil {
		return err
	}
	if err := check("http.body", spec.BodyTemplate); err != nil {
		return err
	}
	for name, tmpl := range spec.Headers {
		if err := check("http.headers."+name, tmpl); err != nil {
			return err
		}
	}
	return nil
}
