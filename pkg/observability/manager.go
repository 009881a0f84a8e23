package observability

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Manager owns the tracer provider and recorder for a process.
type Manager struct {
	mu             sync.RWMutex
	config         Config
	tracerProvider trace.TracerProvider
	recorder       Recorder
	metricsHandler http.Handler
}

// NewManager builds an uninitialized manager; call Initialize before use.
func NewManager(cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{config: cfg, recorder: NoopRecorder{}}
}

// Initialize starts tracing and metrics per config and installs the global
// recorder.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.config.Validate(); err != nil {
		return err
	}

	tp, err := InitTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	rec, handler, err := InitMetrics(m.config.Metrics)
	if err != nil {
		return err
	}
	m.recorder = rec
	m.metricsHandler = handler

	SetGlobalRecorder(m.recorder)
	return nil
}

// Tracer returns a named tracer.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Recorder returns the active recorder, never nil.
func (m *Manager) Recorder() Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recorder
}

// MetricsHandler returns the scrape handler, nil when metrics are disabled.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsHandler
}

// MetricsPath returns the configured scrape path.
func (m *Manager) MetricsPath() string {
	return m.config.Metrics.Path
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sd, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return sd.Shutdown(ctx)
	}
	return nil
}
