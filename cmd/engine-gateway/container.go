package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/lyzr/workflowengine/common/config"
	"github.com/lyzr/workflowengine/common/logger"
	"github.com/lyzr/workflowengine/common/telemetry"
	"github.com/lyzr/workflowengine/pkg/httpclient"
	"github.com/lyzr/workflowengine/pkg/orchestrator"
	"github.com/lyzr/workflowengine/pkg/registry"
	"github.com/lyzr/workflowengine/pkg/task"
	"github.com/lyzr/workflowengine/pkg/task/security"
	"github.com/lyzr/workflowengine/pkg/workflow"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Container wires together one process's worth of engine components,
// grounded on the teacher's cmd/orchestrator/container singleton-assembly
// pattern: everything is built once at startup and handed to route
// handlers, rather than re-resolved per request.
type Container struct {
	Config       *config.Config
	Log          *logger.Logger
	Telemetry    *telemetry.Telemetry
	Registry     *registry.Memory
	Executor     *task.Executor
	Orchestrator *orchestrator.Orchestrator
	PlanCache    *workflow.MemoryPlanCache
	WaveCache    *workflow.RedisPlanCache // nil unless REDIS_ADDR is set
	Validate     *validator.Validate

	mu          sync.RWMutex
	definitions map[string]*workflow.Definition
}

// NewContainer assembles a Container from cfg.
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	reg := registry.New()

	client := httpclient.New(
		httpclient.WithTimeout(cfg.Execution.Deadline),
		httpclient.WithUserAgent("workflowengine-gateway/1"),
	)
	tel := telemetry.New(6060, cfg.Telemetry.MetricsPort, log)

	exec := task.NewExecutor(client)
	if len(cfg.Execution.AllowedHosts) > 0 {
		exec.URLValidator = security.NewURLValidator(cfg.Execution.AllowedHosts...)
	}
	if cfg.Execution.RateLimitPerSec > 0 {
		exec.Limiters = task.NewLimiters(rate.Limit(cfg.Execution.RateLimitPerSec), cfg.Execution.RateLimitBurst)
	}
	exec.Telemetry = tel

	orch := orchestrator.New(exec)
	orch.Telemetry = tel

	var waveCache *workflow.RedisPlanCache
	if cfg.Redis.Addr != "" {
		rc := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		waveCache = workflow.NewRedisPlanCache(rc)
	}

	return &Container{
		Config:       cfg,
		Log:          log,
		Telemetry:    tel,
		Registry:     reg,
		Executor:     exec,
		Orchestrator: orch,
		PlanCache:    workflow.NewMemoryPlanCache(),
		WaveCache:    waveCache,
		Validate:     validator.New(),
		definitions:  make(map[string]*workflow.Definition),
	}, nil
}

// RegisterWorkflow adds def to the in-memory catalog this gateway serves.
// How a production deployment discovers Workflow resources (cluster watch,
// GitOps sync) is external to the core per the Purpose & Scope boundary;
// this gateway's catalog is the simplest possible stand-in for that.
func (c *Container) RegisterWorkflow(def *workflow.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.definitions[def.Name] = def
}

// LookupWorkflow returns the named workflow definition, if registered.
func (c *Container) LookupWorkflow(name string) (*workflow.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.definitions[name]
	return def, ok
}

// CompiledPlan returns def's compiled plan, consulting the in-process cache
// before re-running the validator, per §3's caching note. When a Redis wave
// cache is configured, a cold process first asks it for a wave partition
// already derived by a hot fleet peer for this (workflow, version) and, if
// present, runs workflow.ValidateWithWaves to skip the graph-build/cycle
// stage instead of rederiving it; the schema/template/compat stages still
// run regardless, since those aren't cross-process-cacheable (see
// plan_cache.go's planWire doc comment).
func (c *Container) CompiledPlan(ctx context.Context, def *workflow.Definition) (*workflow.CompiledPlan, error) {
	const version = "v1" // bumped when the gateway's seed definitions change
	if cached, ok, err := c.PlanCache.Get(ctx, def.Name, version); err == nil && ok {
		return cached, nil
	}

	var plan *workflow.CompiledPlan
	var err error
	if c.WaveCache != nil {
		if waves, ok, werr := c.WaveCache.GetWaves(ctx, def.Name, version); werr != nil {
			c.Log.Warn("wave cache read failed", "workflow", def.Name, "error", werr)
		} else if ok {
			plan, err = workflow.ValidateWithWaves(def, c.Registry, waves)
		}
	}

	if plan == nil {
		plan, err = workflow.Validate(def, c.Registry)
		if err != nil {
			return nil, fmt.Errorf("compiling workflow %q: %w", def.Name, err)
		}
		if c.WaveCache != nil {
			if err := c.WaveCache.SetWaves(ctx, def.Name, version, plan.Waves, c.Config.Redis.PlanTTL); err != nil {
				c.Log.Warn("wave cache write failed", "workflow", def.Name, "error", err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("compiling workflow %q: %w", def.Name, err)
	}

	if err := c.PlanCache.Set(ctx, def.Name, version, plan, c.Config.Redis.PlanTTL); err != nil {
		c.Log.Warn("plan cache write failed", "workflow", def.Name, "error", err)
	}
	return plan, nil
}
