package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/herald-crm/herald/pkg/agent"
)

// fakeGateway serves both the chat completions and the embeddings wire so
// one server can back the router and the embedder.
func fakeGateway(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	mux := chi.NewRouter()
	mux.Post("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":15,"total_tokens":25}}`, reply)
	})
	mux.Post("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": []float32{0.1, 0.2, 0.3}, "index": i}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	content := fmt.Sprintf(`
logger:
  level: warn

endpoints:
  - id: primary
    base_url: %[1]s

models:
  - name: herald-test
    supports_tools: true
    supports_chinese: true

embedder:
  base_url: %[1]s
  api_key: test-key

agents:
  strategy:
    model: herald-test
`, baseURL)

	path := filepath.Join(t.TempDir(), "herald.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestContext(t *testing.T, baseURL string) *CoreContext {
	t.Helper()
	core, err := New(context.Background(), Options{ConfigFile: writeConfig(t, baseURL)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := core.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return core
}

func TestNewWithConfigFile(t *testing.T) {
	srv := fakeGateway(t, "好的")
	core := newTestContext(t, srv.URL)

	if core.Config() == nil {
		t.Error("Config() returned nil")
	}
	if core.Router() == nil {
		t.Error("Router() returned nil")
	}
	if core.Engine() == nil {
		t.Error("Engine() returned nil")
	}
	if core.Directory() == nil {
		t.Error("Directory() returned nil")
	}
	if core.Workflow() == nil {
		t.Error("Workflow() returned nil")
	}
	if core.Observability() == nil {
		t.Error("Observability() returned nil")
	}

	want := []string{"expert", "market", "sales", "strategy"}
	if got := core.Hub().Agents(); !reflect.DeepEqual(got, want) {
		t.Errorf("Agents() = %v, want %v", got, want)
	}

	for _, name := range []string{"current_time", "send_message", "lookup_customer"} {
		if _, ok := core.Tools().Get(name); !ok {
			t.Errorf("builtin tool %q not registered", name)
		}
	}

	if got := core.Config().DefaultModel; got != "herald-test" {
		t.Errorf("DefaultModel = %q, want herald-test", got)
	}
}

func TestNewZeroConfig(t *testing.T) {
	core, err := New(context.Background(), Options{APIKey: "test-key", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer core.Close()

	cfg := core.Config()
	if cfg.DefaultModel != "gpt-4o" {
		t.Errorf("DefaultModel = %q, want gpt-4o", cfg.DefaultModel)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].BaseURL != "https://api.openai.com/v1" {
		t.Errorf("unexpected endpoints: %+v", cfg.Endpoints)
	}
}

func TestNewMissingConfigWithoutKey(t *testing.T) {
	if _, err := New(context.Background(), Options{ConfigFile: "does-not-exist.yaml"}); err == nil {
		t.Fatal("expected error for missing config file without api key")
	}

	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error when neither config file nor api key is given")
	}
}

func TestNewMissingConfigFallsBackToFlags(t *testing.T) {
	core, err := New(context.Background(), Options{
		ConfigFile: filepath.Join(t.TempDir(), "absent.yaml"),
		APIKey:     "test-key",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer core.Close()

	if core.Config().DefaultModel != "gpt-4o-mini" {
		t.Errorf("DefaultModel = %q, want gpt-4o-mini", core.Config().DefaultModel)
	}
}

func TestNewWithConfigNil(t *testing.T) {
	if _, err := NewWithConfig(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestSendThroughStack(t *testing.T) {
	srv := fakeGateway(t, "定价建议：按客户规模分层报价。")
	core := newTestContext(t, srv.URL)

	resp, err := core.Send(context.Background(), "strategy", "请帮我设计定价策略")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(resp.Content, "定价建议") {
		t.Errorf("Content = %q, want the model reply folded in", resp.Content)
	}
	if resp.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", resp.Confidence)
	}
}

func TestSendUnknownAgent(t *testing.T) {
	srv := fakeGateway(t, "好的")
	core := newTestContext(t, srv.URL)

	if _, err := core.Send(context.Background(), "ghost", "你好"); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestDiscoveryThroughStack(t *testing.T) {
	srv := fakeGateway(t, "您好，想和您约一次十五分钟的交流。")
	core := newTestContext(t, srv.URL)
	ctx := context.Background()

	taskID, err := core.Workflow().Start(ctx, map[string]string{"industry": "制造业"}, nil, 30)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec, err := core.Workflow().ExecuteInitialContact(ctx, taskID, 0)
	if err != nil {
		t.Fatalf("ExecuteInitialContact() error = %v", err)
	}
	if rec.Status != agent.ContactSent {
		t.Errorf("Status = %q, want %q", rec.Status, agent.ContactSent)
	}
	// The send_message builtin acknowledges delivery.
	if !strings.Contains(rec.Notes, "已通过") {
		t.Errorf("Notes = %q, want the delivery receipt", rec.Notes)
	}

	customers, err := core.Directory().ListCustomers(ctx)
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("got %d customers, want 1", len(customers))
	}
	if customers[0].Source != "discovery_workflow" {
		t.Errorf("Source = %q, want discovery_workflow", customers[0].Source)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := fakeGateway(t, "好的")
	core, err := New(context.Background(), Options{ConfigFile: writeConfig(t, srv.URL)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := core.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := core.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
