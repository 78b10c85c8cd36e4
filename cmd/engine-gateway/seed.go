package main

import (
	"fmt"

	"github.com/lyzr/workflowengine/pkg/schema"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/template"
	"github.com/lyzr/workflowengine/pkg/workflow"
)

// seedDemoCatalog registers a small fixed task/workflow catalog so the
// gateway is immediately exercisable without a cluster controller feeding
// it Task/Workflow resources. It reproduces the diamond-shaped workflow
// from the design notes: a profile lookup, two independent enrichments
// fanning out from it, and a join that can only start once both finish.
func seedDemoCatalog(c *Container) error {
	mustSchema := func(raw map[string]interface{}) *schema.Schema {
		s, err := schema.Parse(raw)
		if err != nil {
			panic(fmt.Sprintf("seed schema: %v", err))
		}
		return s
	}
	mustTemplate := func(raw string) *template.Template {
		t, err := template.Parse(raw)
		if err != nil {
			panic(fmt.Sprintf("seed template %q: %v", raw, err))
		}
		return t
	}

	userProfile := &task.Definition{
		Name:      "fetch-user-profile",
		Namespace: "default",
		InputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"userId"},
			"properties": map[string]interface{}{
				"userId": map[string]interface{}{"type": "string"},
			},
		}),
		OutputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"name", "region"},
			"properties": map[string]interface{}{
				"name":   map[string]interface{}{"type": "string"},
				"region": map[string]interface{}{"type": "string"},
			},
		}),
		HTTP: task.HTTPSpec{
			Method: "GET",
			URL:    mustTemplate("https://api.example.internal/users/{{input.userId}}"),
		},
	}

	creditScore := &task.Definition{
		Name:      "fetch-credit-score",
		Namespace: "default",
		InputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"region"},
			"properties": map[string]interface{}{
				"region": map[string]interface{}{"type": "string"},
			},
		}),
		OutputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"score"},
			"properties": map[string]interface{}{
				"score": map[string]interface{}{"type": "integer"},
			},
		}),
		HTTP: task.HTTPSpec{
			Method: "GET",
			URL:    mustTemplate("https://api.example.internal/credit?region={{input.region}}"),
		},
	}

	marketingSegment := &task.Definition{
		Name:      "fetch-marketing-segment",
		Namespace: "default",
		InputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"region"},
			"properties": map[string]interface{}{
				"region": map[string]interface{}{"type": "string"},
			},
		}),
		OutputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"segment"},
			"properties": map[string]interface{}{
				"segment": map[string]interface{}{"type": "string"},
			},
		}),
		HTTP: task.HTTPSpec{
			Method: "GET",
			URL:    mustTemplate("https://api.example.internal/segment?region={{input.region}}"),
		},
	}

	offerDecision := &task.Definition{
		Name:      "decide-offer",
		Namespace: "default",
		InputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"score", "segment"},
			"properties": map[string]interface{}{
				"score":   map[string]interface{}{"type": "integer"},
				"segment": map[string]interface{}{"type": "string"},
			},
		}),
		OutputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"approved"},
			"properties": map[string]interface{}{
				"approved": map[string]interface{}{"type": "boolean"},
				"offerId":  map[string]interface{}{"type": "string"},
			},
		}),
		HTTP: task.HTTPSpec{
			Method: "POST",
			URL:    mustTemplate("https://api.example.internal/offers"),
			Headers: map[string]*template.Template{
				"Content-Type": mustTemplate("application/json"),
			},
		},
	}

	for _, def := range []*task.Definition{userProfile, creditScore, marketingSegment, offerDecision} {
		if err := c.Registry.Register(def); err != nil {
			return fmt.Errorf("registering task %q: %w", def.Name, err)
		}
	}

	onboarding := &workflow.Definition{
		Name:      "customer-onboarding",
		Namespace: "default",
		InputSchema: mustSchema(map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"userId"},
			"properties": map[string]interface{}{
				"userId": map[string]interface{}{"type": "string"},
			},
		}),
		Tasks: []workflow.Invocation{
			{
				ID:      "profile",
				TaskRef: "fetch-user-profile",
				Input: map[string]interface{}{
					"userId": "{{input.userId}}",
				},
			},
			{
				ID:      "credit",
				TaskRef: "fetch-credit-score",
				Input: map[string]interface{}{
					"region": "{{tasks.profile.output.region}}",
				},
			},
			{
				ID:      "segment",
				TaskRef: "fetch-marketing-segment",
				Input: map[string]interface{}{
					"region": "{{tasks.profile.output.region}}",
				},
			},
			{
				ID:      "decision",
				TaskRef: "decide-offer",
				Input: map[string]interface{}{
					"score":   "{{tasks.credit.output.score}}",
					"segment": "{{tasks.segment.output.segment}}",
				},
			},
		},
		Output: map[string]string{
			"approved": "{{tasks.decision.output.approved}}",
			"offerId":  "{{tasks.decision.output.offerId}}",
		},
	}
	c.RegisterWorkflow(onboarding)

	return nil
}
