package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyzr/workflowengine/common/logger"
)

// Telemetry holds observability components: a pprof debug endpoint and a
// Prometheus metrics endpoint scraping execution counters.
type Telemetry struct {
	log         *logger.Logger
	pprofAddr   string
	metricsAddr string
	registry    *prometheus.Registry

	ExecutionsTotal  *prometheus.CounterVec
	InvocationsTotal *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	WaveWidth        prometheus.Histogram
}

// New creates telemetry components and registers the engine's metric
// families against a private registry (not the global default, so
// concurrently-constructed Telemetry instances in tests don't collide).
func New(pprofPort, metricsPort int, log *logger.Logger) *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		log:         log,
		pprofAddr:   fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr: fmt.Sprintf("localhost:%d", metricsPort),
		registry:    reg,

		ExecutionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "executions_total",
			Help:      "Workflow executions by workflow name and terminal outcome.",
		}, []string{"workflow", "outcome"}),

		InvocationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "invocations_total",
			Help:      "Task invocations by task name and terminal outcome.",
		}, []string{"task", "outcome"}),

		RetriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowengine",
			Name:      "invocation_retries_total",
			Help:      "Retry attempts issued per task name.",
		}, []string{"task"}),

		TaskDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowengine",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of one task invocation, including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),

		WaveWidth: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "workflowengine",
			Name:      "wave_width",
			Help:      "Number of invocations dispatched concurrently in one wave.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
	}
	return t
}

// Start starts the pprof and Prometheus metrics endpoints.
func (t *Telemetry) Start(ctx context.Context) error {
	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
			t.log.Error("pprof server error", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
	go func() {
		t.log.Info("metrics server starting", "addr", t.metricsAddr)
		if err := http.ListenAndServe(t.metricsAddr, mux); err != nil {
			t.log.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// RecordDuration records operation duration.
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}

// RecordEvent records a telemetry event.
func (t *Telemetry) RecordEvent(event string, attrs map[string]any) {
	t.log.Info("telemetry_event",
		"event", event,
		"attrs", attrs,
	)
}
