package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder receives measurements from the hot paths. Implementations must
// tolerate being called with partial data; nil-guards keep a zero-value
// recorder safe when metrics are disabled.
type Recorder interface {
	// RecordCompletion measures one model completion round trip.
	RecordCompletion(ctx context.Context, model, endpoint string, duration time.Duration, promptTokens, completionTokens int, err error)
	// RecordRetrieval measures one retrieval pass.
	RecordRetrieval(ctx context.Context, mode string, duration time.Duration, chunks int, err error)
	// RecordToolExecution measures one tool handler invocation.
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	// RecordAgentTask measures one agent task end to end.
	RecordAgentTask(ctx context.Context, agent string, duration time.Duration, err error)
	// RecordStageTransition counts workflow stage entries.
	RecordStageTransition(ctx context.Context, stage string)
}

var (
	globalRecorder Recorder = NoopRecorder{}
	recorderMu     sync.RWMutex
)

// SetGlobalRecorder installs the process-wide recorder.
func SetGlobalRecorder(r Recorder) {
	recorderMu.Lock()
	defer recorderMu.Unlock()
	if r == nil {
		r = NoopRecorder{}
	}
	globalRecorder = r
}

// GlobalRecorder returns the process-wide recorder, never nil.
func GlobalRecorder() Recorder {
	recorderMu.RLock()
	defer recorderMu.RUnlock()
	return globalRecorder
}

// PrometheusRecorder implements Recorder on OpenTelemetry instruments backed
// by the Prometheus exporter.
type PrometheusRecorder struct {
	completionDuration metric.Float64Histogram
	completionTotal    metric.Int64Counter
	completionErrors   metric.Int64Counter
	tokensInput        metric.Int64Counter
	tokensOutput       metric.Int64Counter

	retrievalDuration metric.Float64Histogram
	retrievalTotal    metric.Int64Counter
	retrievalErrors   metric.Int64Counter
	retrievalChunks   metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolTotal    metric.Int64Counter
	toolErrors   metric.Int64Counter

	agentDuration metric.Float64Histogram
	agentTotal    metric.Int64Counter
	agentErrors   metric.Int64Counter

	stageTransitions metric.Int64Counter
}

var _ Recorder = (*PrometheusRecorder)(nil)

func (m *PrometheusRecorder) RecordCompletion(ctx context.Context, model, endpoint string, duration time.Duration, promptTokens, completionTokens int, err error) {
	if m == nil || m.completionDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("endpoint", endpoint),
	)
	m.completionDuration.Record(ctx, duration.Seconds(), attrs)
	m.completionTotal.Add(ctx, 1, attrs)
	if promptTokens > 0 {
		m.tokensInput.Add(ctx, int64(promptTokens), metric.WithAttributes(attribute.String("model", model)))
	}
	if completionTokens > 0 {
		m.tokensOutput.Add(ctx, int64(completionTokens), metric.WithAttributes(attribute.String("model", model)))
	}
	if err != nil {
		m.completionErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusRecorder) RecordRetrieval(ctx context.Context, mode string, duration time.Duration, chunks int, err error) {
	if m == nil || m.retrievalDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.retrievalDuration.Record(ctx, duration.Seconds(), attrs)
	m.retrievalTotal.Add(ctx, 1, attrs)
	if chunks > 0 {
		m.retrievalChunks.Add(ctx, int64(chunks), attrs)
	}
	if err != nil {
		m.retrievalErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusRecorder) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusRecorder) RecordAgentTask(ctx context.Context, agent string, duration time.Duration, err error) {
	if m == nil || m.agentDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
	m.agentTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.agentErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusRecorder) RecordStageTransition(ctx context.Context, stage string) {
	if m == nil || m.stageTransitions == nil {
		return
	}
	m.stageTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// NoopRecorder drops all measurements.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) RecordCompletion(context.Context, string, string, time.Duration, int, int, error) {
}
func (NoopRecorder) RecordRetrieval(context.Context, string, time.Duration, int, error) {}
func (NoopRecorder) RecordToolExecution(context.Context, string, time.Duration, error)  {}
func (NoopRecorder) RecordAgentTask(context.Context, string, time.Duration, error)      {}
func (NoopRecorder) RecordStageTransition(context.Context, string)                      {}
