// Command engine-gateway is a minimal, stand-alone illustration of wiring
// pkg/workflow and pkg/orchestrator behind an HTTP surface, in the shape the
// teacher's cmd/orchestrator assembles its Echo service: load config, build
// the shared singletons, register routes, start with graceful shutdown.
//
// It is not the cluster controller the specification treats as an external
// collaborator — there is no Task/Workflow CRD watch here, just a small
// fixed demo catalog (see seed.go) standing in for one.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/workflowengine/common/config"
	"github.com/lyzr/workflowengine/common/logger"
	"github.com/lyzr/workflowengine/common/server"
)

func main() {
	cfg, err := config.Load("engine-gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	c, err := NewContainer(cfg, log)
	if err != nil {
		log.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	if err := seedDemoCatalog(c); err != nil {
		log.Error("failed to seed demo catalog", "error", err)
		os.Exit(1)
	}
	if cfg.Telemetry.EnableMetrics {
		if err := c.Telemetry.Start(context.Background()); err != nil {
			log.Error("failed to start telemetry", "error", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	registerRoutes(e, c)

	srv := server.New(cfg.Service.Name, cfg.Service.Port, e, log)
	if err := srv.Start(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
