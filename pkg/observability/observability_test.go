package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestZeroValueRecorderIsSafe(t *testing.T) {
	ctx := context.Background()
	rec := &PrometheusRecorder{}

	rec.RecordCompletion(ctx, "chat-v1", "primary", 100*time.Millisecond, 150, 50, nil)
	rec.RecordRetrieval(ctx, "hybrid", 50*time.Millisecond, 5, nil)
	rec.RecordToolExecution(ctx, "crm_lookup", 10*time.Millisecond, errors.New("boom"))
	rec.RecordAgentTask(ctx, "sales", time.Second, nil)
	rec.RecordStageTransition(ctx, "qualification")
}

func TestInitMetricsDisabled(t *testing.T) {
	rec, handler, err := InitMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}
	if _, ok := rec.(NoopRecorder); !ok {
		t.Errorf("disabled metrics recorder = %T, want NoopRecorder", rec)
	}
	if handler != nil {
		t.Error("disabled metrics should not produce a handler")
	}
}

func TestInitMetricsEnabled(t *testing.T) {
	rec, handler, err := InitMetrics(MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}
	if handler == nil {
		t.Fatal("enabled metrics should produce a scrape handler")
	}

	ctx := context.Background()
	rec.RecordCompletion(ctx, "chat-v1", "primary", 100*time.Millisecond, 10, 5, nil)
	rec.RecordStageTransition(ctx, "research")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("scrape status = %d, want 200", w.Code)
	}
}

func TestInitTracerDisabled(t *testing.T) {
	cfg := TracingConfig{Enabled: false}
	cfg.SetDefaults()

	tp, err := InitTracer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracer should produce invalid span contexts")
	}
	span.End()
}

func TestTracingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracingConfig
		wantErr bool
	}{
		{name: "disabled_always_valid", cfg: TracingConfig{Enabled: false, SamplingRate: 5}, wantErr: false},
		{name: "bad_sampling_rate", cfg: TracingConfig{Enabled: true, Exporter: "otlp", SamplingRate: 1.5}, wantErr: true},
		{name: "bad_exporter", cfg: TracingConfig{Enabled: true, Exporter: "jaeger", SamplingRate: 1}, wantErr: true},
		{name: "stdout_ok", cfg: TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 0.5}, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGlobalRecorderNeverNil(t *testing.T) {
	SetGlobalRecorder(nil)
	if GlobalRecorder() == nil {
		t.Fatal("GlobalRecorder() returned nil")
	}
	GlobalRecorder().RecordAgentTask(context.Background(), "sales", time.Second, nil)
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(Config{Metrics: MetricsConfig{Enabled: true}})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer func() {
		if err := m.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	if m.Recorder() == nil {
		t.Error("Recorder() = nil after Initialize")
	}
	if m.MetricsHandler() == nil {
		t.Error("MetricsHandler() = nil with metrics enabled")
	}
	if m.MetricsPath() != "/metrics" {
		t.Errorf("MetricsPath() = %s, want /metrics", m.MetricsPath())
	}
}

func TestHTTPMiddlewareCapturesStatus(t *testing.T) {
	mw := HTTPMiddleware(Tracer("test"))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}
