package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/workflowengine/pkg/orchestrator"
	"github.com/lyzr/workflowengine/pkg/wferrors"
)

// executeRequest is the request body for POST /v1/workflows/:name/execute.
// Tags are enforced by go-playground/validator before the request ever
// reaches the orchestrator, so a malformed body never consumes a wave slot.
type executeRequest struct {
	Input map[string]interface{} `json:"input" validate:"required"`
	Env   map[string]string      `json:"env"`
}

type executeResponse struct {
	Output map[string]interface{} `json:"output"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func registerRoutes(e *echo.Echo, c *Container) {
	e.GET("/healthz", healthHandler(c))
	e.POST("/v1/workflows/:name/execute", executeHandler(c))
}

func healthHandler(c *Container) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok", "service": c.Config.Service.Name})
	}
}

func executeHandler(c *Container) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		name := ctx.Param("name")

		var req executeRequest
		if err := ctx.Bind(&req); err != nil {
			return ctx.JSON(http.StatusBadRequest, errorResponse{Kind: "malformed-request", Message: err.Error()})
		}
		if err := c.Validate.Struct(req); err != nil {
			return ctx.JSON(http.StatusBadRequest, errorResponse{Kind: "malformed-request", Message: err.Error()})
		}

		def, ok := c.LookupWorkflow(name)
		if !ok {
			return ctx.JSON(http.StatusNotFound, errorResponse{Kind: "unknown-workflow", Message: name + " is not registered"})
		}

		reqCtx := ctx.Request().Context()
		plan, err := c.CompiledPlan(reqCtx, def)
		if err != nil {
			return ctx.JSON(http.StatusUnprocessableEntity, errorResponse{Kind: "compile-failed", Message: err.Error()})
		}

		start := time.Now()
		output, err := c.Orchestrator.Execute(reqCtx, plan, req.Input, req.Env, orchestrator.Options{
			MaxConcurrency: c.Config.Execution.MaxConcurrency,
			Deadline:       c.Config.Execution.Deadline,
		})
		c.Telemetry.RecordDuration("workflow:"+name, start)
		if err != nil {
			c.Telemetry.ExecutionsTotal.WithLabelValues(name, "failure").Inc()
			c.Telemetry.RecordEvent("workflow_execution_failed", map[string]any{"workflow": name, "kind": kindFor(err)})
			return ctx.JSON(statusFor(err), errorResponse{Kind: kindFor(err), Message: err.Error()})
		}

		c.Telemetry.ExecutionsTotal.WithLabelValues(name, "success").Inc()
		return ctx.JSON(http.StatusOK, executeResponse{Output: output})
	}
}

func statusFor(err error) int {
	var inputInvalid *wferrors.InputInvalid
	var cancelled *wferrors.Cancelled
	switch {
	case errors.As(err, &inputInvalid):
		return http.StatusBadRequest
	case errors.As(err, &cancelled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func kindFor(err error) string {
	var inputInvalid *wferrors.InputInvalid
	var taskFailed *wferrors.TaskFailed
	var cancelled *wferrors.Cancelled
	var projectionFailed *wferrors.OutputProjectionFailed
	switch {
	case errors.As(err, &inputInvalid):
		return "input-invalid"
	case errors.As(err, &taskFailed):
		return "task-failed"
	case errors.As(err, &cancelled):
		return "cancelled"
	case errors.As(err, &projectionFailed):
		return "output-projection-failed"
	default:
		return "execution-failed"
	}
}
