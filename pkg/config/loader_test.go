package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfigYAML = `
endpoints:
  - id: primary
    base_url: ${HERALD_TEST_BASE_URL:-https://api.example.com/v1}
    api_key: ${HERALD_TEST_API_KEY}
models:
  - name: qwen-max
    max_gen_tokens: 1024
    context_window_tokens: 8192
  - name: qwen-turbo
    priority: 2
conversation:
  max_context_tokens: 4096
rag:
  chunk_size: 256
  top_k: 3
embedder:
  base_url: http://localhost:8080/v1
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herald.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("HERALD_TEST_API_KEY", "sk-secret")
	t.Setenv("HERALD_TEST_BASE_URL", "")

	path := writeTempConfig(t, testConfigYAML)
	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	defer loader.Close()

	if got := cfg.Endpoints[0].APIKey; got != "sk-secret" {
		t.Errorf("api_key not expanded from env: got %q", got)
	}
	if got := cfg.Endpoints[0].BaseURL; got != "https://api.example.com/v1" {
		t.Errorf("default expansion failed: got %q", got)
	}
	if cfg.DefaultModel != "qwen-max" {
		t.Errorf("expected default model qwen-max, got %q", cfg.DefaultModel)
	}
	if cfg.Conversation.MaxContextTokens != 4096 {
		t.Errorf("expected max_context_tokens 4096, got %d", cfg.Conversation.MaxContextTokens)
	}
	if cfg.RAG.ChunkSize != 256 {
		t.Errorf("expected chunk_size 256, got %d", cfg.RAG.ChunkSize)
	}
	if cfg.RAG.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", cfg.RAG.TopK)
	}
	if cfg.RAG.SimilarityThreshold != 0.7 {
		t.Errorf("expected untouched defaults to survive, got threshold %v", cfg.RAG.SimilarityThreshold)
	}
	if cfg.Models[1].Priority != 2 {
		t.Errorf("expected qwen-turbo priority 2, got %d", cfg.Models[1].Priority)
	}
}

func TestLoadJSONConfig(t *testing.T) {
	content := `{
  "endpoints": [{"id": "primary", "base_url": "https://api.example.com/v1", "api_key": "sk-json"}],
  "models": [{"name": "qwen-max"}],
  "embedder": {"base_url": "http://localhost:8080/v1"}
}`
	path := writeTempConfig(t, content)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed for JSON: %v", err)
	}
	defer loader.Close()

	if cfg.Endpoints[0].APIKey != "sk-json" {
		t.Errorf("unexpected api_key: %q", cfg.Endpoints[0].APIKey)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, "models:\n  - name: solo\n")

	_, _, err := LoadConfigFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "at least one endpoint") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "endpoints: [unclosed\n")

	_, _, err := LoadConfigFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoadStrictRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HERALD_TEST_API_KEY", "sk-secret")

	path := writeTempConfig(t, testConfigYAML+"\nchunk_sizes: 99\n")

	_, _, err := LoadConfigFile(context.Background(), path, WithStrict())
	if err == nil {
		t.Fatal("expected unknown-key error, got nil")
	}
	if !strings.Contains(err.Error(), "unknown config keys") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "chunk_sizes") {
		t.Errorf("error should name the offending key: %v", err)
	}
}

func TestLoadLenientAcceptsUnknownKeys(t *testing.T) {
	t.Setenv("HERALD_TEST_API_KEY", "sk-secret")

	path := writeTempConfig(t, testConfigYAML+"\nchunk_sizes: 99\n")

	_, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("lenient load should ignore unknown keys: %v", err)
	}
	loader.Close()
}

func TestExpandEnvString(t *testing.T) {
	t.Setenv("HERALD_TEST_X", "xval")

	tests := []struct {
		in   string
		want string
	}{
		{"${HERALD_TEST_X}", "xval"},
		{"$HERALD_TEST_X", "xval"},
		{"${HERALD_TEST_UNSET_VAR:-fallback}", "fallback"},
		{"${HERALD_TEST_UNSET_VAR}", ""},
		{"prefix-${HERALD_TEST_X}-suffix", "prefix-xval-suffix"},
		{"no vars here", "no vars here"},
	}

	for _, tt := range tests {
		if got := expandEnvString(tt.in); got != tt.want {
			t.Errorf("expandEnvString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	t.Setenv("HERALD_TEST_API_KEY", "sk-secret")

	path := writeTempConfig(t, testConfigYAML)

	reloaded := make(chan *Config, 1)
	cfg, loader, err := LoadConfigFile(context.Background(), path, WithOnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	defer loader.Close()

	if cfg.Conversation.MaxContextTokens != 4096 {
		t.Fatalf("unexpected initial config: %d", cfg.Conversation.MaxContextTokens)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- loader.Watch(ctx)
	}()

	// Let the watcher arm before touching the file.
	time.Sleep(300 * time.Millisecond)

	updated := strings.Replace(testConfigYAML, "max_context_tokens: 4096", "max_context_tokens: 2048", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to update config file: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Conversation.MaxContextTokens != 2048 {
			t.Errorf("reload delivered stale config: %d", c.Conversation.MaxContextTokens)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after context cancel")
	}
}
