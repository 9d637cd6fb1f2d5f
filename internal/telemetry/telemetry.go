// Package telemetry tracks per-run counters (steps, search and fetch calls,
// protocol errors, LLM cost/tokens) and holds an OpenTelemetry tracer and
// meter for the orchestrator and the two agent loops. It registers no
// Prometheus collectors.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config enables or disables telemetry collection for a run.
type Config struct {
	Enabled     bool
	ServiceName string
}

// Telemetry accumulates counters for one run and exposes a Tracer for
// span instrumentation around LLM calls, search/fetch batches, and
// section writes.
type Telemetry struct {
	cfg    Config
	logger *log.Logger
	tracer trace.Tracer
	meter  otelmetric.Meter

	mu             sync.RWMutex
	startTime      time.Time
	llmCalls       int64
	llmTokens      int64
	llmCost        float64
	searchCalls    int64
	fetchCalls     int64
	fetchFailures  int64
	plannerSteps   int64
	writerSteps    int64
	protocolErrors int64

	plannerStepsCounter otelmetric.Int64Counter
	writerStepsCounter  otelmetric.Int64Counter
	llmCostCounter      otelmetric.Float64Counter
}

// New constructs a Telemetry instance. The tracer provider is created
// in-process with no remote exporter configured: spans are available to
// any processor callers attach, without requiring a running collector.
func New(cfg Config) *Telemetry {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "oedr-engine"
	}
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	t := &Telemetry{
		cfg:       cfg,
		logger:    log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		tracer:    tp.Tracer(cfg.ServiceName),
		meter:     otel.Meter(cfg.ServiceName),
		startTime: time.Now(),
	}

	t.plannerStepsCounter, _ = t.meter.Int64Counter("oedr_planner_steps_total")
	t.writerStepsCounter, _ = t.meter.Int64Counter("oedr_writer_steps_total")
	t.llmCostCounter, _ = t.meter.Float64Counter("oedr_llm_cost_usd_total")

	return t
}

// Tracer returns the OTel tracer spans are started from.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// StartSpan is a thin convenience wrapper around tracer.Start. No engine
// component currently starts spans through it.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// RecordLLMCall records one completed chat completion call.
func (t *Telemetry) RecordLLMCall(ctx context.Context, tokens int64, cost float64) {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.llmCalls++
	t.llmTokens += tokens
	t.llmCost += cost
	t.mu.Unlock()
	if t.llmCostCounter != nil {
		t.llmCostCounter.Add(ctx, cost)
	}
}

// RecordSearchCall records one search provider invocation.
func (t *Telemetry) RecordSearchCall() {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.searchCalls++
	t.mu.Unlock()
}

// RecordFetch records one page fetch attempt and whether it succeeded.
func (t *Telemetry) RecordFetch(success bool) {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.fetchCalls++
	if !success {
		t.fetchFailures++
	}
	t.mu.Unlock()
}

// RecordPlannerStep records one Planner loop iteration.
func (t *Telemetry) RecordPlannerStep(ctx context.Context) {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.plannerSteps++
	t.mu.Unlock()
	if t.plannerStepsCounter != nil {
		t.plannerStepsCounter.Add(ctx, 1)
	}
}

// RecordWriterStep records one Writer loop iteration.
func (t *Telemetry) RecordWriterStep(ctx context.Context) {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.writerSteps++
	t.mu.Unlock()
	if t.writerStepsCounter != nil {
		t.writerStepsCounter.Add(ctx, 1)
	}
}

// RecordProtocolError records one malformed or unparseable agent response.
func (t *Telemetry) RecordProtocolError() {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	t.protocolErrors++
	t.mu.Unlock()
}

// Snapshot is a point-in-time copy of the run's counters.
type Snapshot struct {
	Elapsed        time.Duration
	LLMCalls       int64
	LLMTokens      int64
	LLMCost        float64
	SearchCalls    int64
	FetchCalls     int64
	FetchFailures  int64
	PlannerSteps   int64
	WriterSteps    int64
	ProtocolErrors int64
}

// Snapshot returns the current counters.
func (t *Telemetry) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Elapsed:        time.Since(t.startTime),
		LLMCalls:       t.llmCalls,
		LLMTokens:      t.llmTokens,
		LLMCost:        t.llmCost,
		SearchCalls:    t.searchCalls,
		FetchCalls:     t.fetchCalls,
		FetchFailures:  t.fetchFailures,
		PlannerSteps:   t.plannerSteps,
		WriterSteps:    t.writerSteps,
		ProtocolErrors: t.protocolErrors,
	}
}

// Report renders a short end-of-run summary for the orchestrator's final
// log line.
func (t *Telemetry) Report() string {
	s := t.Snapshot()
	return fmt.Sprintf(
		"run finished in %s: planner_steps=%d writer_steps=%d llm_calls=%d llm_tokens=%d llm_cost=$%.4f search_calls=%d fetch_calls=%d fetch_failures=%d protocol_errors=%d",
		s.Elapsed.Round(time.Millisecond), s.PlannerSteps, s.WriterSteps, s.LLMCalls, s.LLMTokens, s.LLMCost,
		s.SearchCalls, s.FetchCalls, s.FetchFailures, s.ProtocolErrors,
	)
}

// Registerer exposes Prometheus's default registry, the one the server's
// /metrics handler (promhttp.Handler) serves. Nothing in the engine calls
// it or registers collectors on that registry.
func Registerer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}
