package observability

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds the Prometheus-backed recorder and the HTTP handler
// that serves the scrape endpoint. Disabled config yields a no-op recorder
// and nil handler. A private registry keeps repeated initialization (tests,
// config reload) from tripping duplicate-registration panics.
func InitMetrics(cfg MetricsConfig) (Recorder, http.Handler, error) {
	if !cfg.Enabled {
		return NoopRecorder{}, nil, nil
	}

	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("observability: create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("herald")

	rec := &PrometheusRecorder{}
	instruments := []struct {
		hist *metric.Float64Histogram
		ctr  *metric.Int64Counter
		name string
		desc string
	}{
		{hist: &rec.completionDuration, name: "herald_completion_duration_seconds", desc: "Model completion round-trip duration in seconds"},
		{ctr: &rec.completionTotal, name: "herald_completion_requests_total", desc: "Total model completion requests"},
		{ctr: &rec.completionErrors, name: "herald_completion_errors_total", desc: "Total failed model completions"},
		{ctr: &rec.tokensInput, name: "herald_completion_tokens_input_total", desc: "Total prompt tokens sent"},
		{ctr: &rec.tokensOutput, name: "herald_completion_tokens_output_total", desc: "Total completion tokens received"},
		{hist: &rec.retrievalDuration, name: "herald_retrieval_duration_seconds", desc: "Retrieval pass duration in seconds"},
		{ctr: &rec.retrievalTotal, name: "herald_retrieval_requests_total", desc: "Total retrieval passes"},
		{ctr: &rec.retrievalErrors, name: "herald_retrieval_errors_total", desc: "Total failed retrieval passes"},
		{ctr: &rec.retrievalChunks, name: "herald_retrieval_chunks_total", desc: "Total chunks returned by retrieval"},
		{hist: &rec.toolDuration, name: "herald_tool_execution_duration_seconds", desc: "Tool execution duration in seconds"},
		{ctr: &rec.toolTotal, name: "herald_tool_calls_total", desc: "Total tool calls"},
		{ctr: &rec.toolErrors, name: "herald_tool_errors_total", desc: "Total failed tool calls"},
		{hist: &rec.agentDuration, name: "herald_agent_task_duration_seconds", desc: "Agent task duration in seconds"},
		{ctr: &rec.agentTotal, name: "herald_agent_tasks_total", desc: "Total agent tasks"},
		{ctr: &rec.agentErrors, name: "herald_agent_task_errors_total", desc: "Total failed agent tasks"},
		{ctr: &rec.stageTransitions, name: "herald_workflow_stage_transitions_total", desc: "Total workflow stage transitions"},
	}

	for _, inst := range instruments {
		if inst.hist != nil {
			h, err := meter.Float64Histogram(inst.name, metric.WithDescription(inst.desc))
			if err != nil {
				return nil, nil, fmt.Errorf("observability: create %s: %w", inst.name, err)
			}
			*inst.hist = h
			continue
		}
		c, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, nil, fmt.Errorf("observability: create %s: %w", inst.name, err)
		}
		*inst.ctr = c
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return rec, handler, nil
}
