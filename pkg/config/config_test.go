package config

import (
	"strings"
	"testing"

	"github.com/herald-crm/herald/pkg/router"
)

func validConfig() *Config {
	cfg := &Config{
		Endpoints: []router.EndpointConfig{
			{ID: "primary", BaseURL: "https://api.example.com/v1", APIKey: "sk-test"},
		},
		Models: []router.ModelConfig{
			{Name: "qwen-max"},
			{Name: "qwen-turbo", Priority: 2},
		},
	}
	cfg.Embedder.BaseURL = "http://localhost:8080/v1"
	cfg.SetDefaults()
	return cfg
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.DefaultModel != "qwen-max" {
		t.Errorf("expected default_model to fall back to first model, got %q", cfg.DefaultModel)
	}
	if cfg.Conversation.MaxContextTokens != 8192 {
		t.Errorf("expected conversation default 8192, got %d", cfg.Conversation.MaxContextTokens)
	}
	if cfg.Cache.Entries() != 128 {
		t.Errorf("expected cache default 128, got %d", cfg.Cache.Entries())
	}
	if !cfg.Reranker.IsEnabled() {
		t.Error("expected reranker enabled by default")
	}
	if cfg.Reranker.MaxDocs != 20 {
		t.Errorf("expected reranker max_docs default 20, got %d", cfg.Reranker.MaxDocs)
	}
	if cfg.Workflow.Collection != "market_intel" {
		t.Errorf("expected workflow collection default, got %q", cfg.Workflow.Collection)
	}
	if cfg.CRM.Driver != "memory" {
		t.Errorf("expected crm driver default memory, got %q", cfg.CRM.Driver)
	}
	if cfg.Models[0].MaxGenTokens != 2048 {
		t.Errorf("expected model max_gen_tokens default 2048, got %d", cfg.Models[0].MaxGenTokens)
	}
	if cfg.Models[0].Priority != 1 {
		t.Errorf("expected model priority default 1, got %d", cfg.Models[0].Priority)
	}
	if cfg.Endpoints[0].Timeout != router.DefaultCompletionTimeout {
		t.Errorf("expected endpoint timeout default, got %v", cfg.Endpoints[0].Timeout)
	}
	if cfg.RAG.ChunkSize != 512 {
		t.Errorf("expected rag chunk_size default 512, got %d", cfg.RAG.ChunkSize)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "no endpoints",
			mutate:  func(c *Config) { c.Endpoints = nil },
			wantErr: "at least one endpoint",
		},
		{
			name:    "no models",
			mutate:  func(c *Config) { c.Models = nil },
			wantErr: "at least one model",
		},
		{
			name: "endpoint missing base url",
			mutate: func(c *Config) {
				c.Endpoints[0].BaseURL = ""
			},
			wantErr: "base_url is required",
		},
		{
			name: "duplicate endpoint id",
			mutate: func(c *Config) {
				dup := c.Endpoints[0]
				c.Endpoints = append(c.Endpoints, dup)
			},
			wantErr: "duplicate id",
		},
		{
			name: "duplicate model name",
			mutate: func(c *Config) {
				c.Models[1].Name = c.Models[0].Name
			},
			wantErr: "duplicate name",
		},
		{
			name: "unknown endpoint binding",
			mutate: func(c *Config) {
				c.Models[0].EndpointID = "nonexistent"
			},
			wantErr: "unknown endpoint_id",
		},
		{
			name: "unknown default model",
			mutate: func(c *Config) {
				c.DefaultModel = "missing"
			},
			wantErr: "not a configured model",
		},
		{
			name: "max gen tokens above context window",
			mutate: func(c *Config) {
				c.Models[0].MaxGenTokens = 9000
			},
			wantErr: "max_gen_tokens",
		},
		{
			name: "unknown reranker model",
			mutate: func(c *Config) {
				c.Reranker.Model = "missing"
			},
			wantErr: "reranker: unknown model",
		},
		{
			name: "unknown agent id",
			mutate: func(c *Config) {
				c.Agents = map[string]AgentConfig{"pirate": {}}
			},
			wantErr: "unknown agent",
		},
		{
			name: "agent with unknown model",
			mutate: func(c *Config) {
				c.Agents = map[string]AgentConfig{"sales": {Model: "missing"}}
			},
			wantErr: "agents.sales: unknown model",
		},
		{
			name: "known agent with known model",
			mutate: func(c *Config) {
				c.Agents = map[string]AgentConfig{"strategy": {Model: "qwen-turbo"}}
			},
		},
		{
			name: "negative cache entries",
			mutate: func(c *Config) {
				c.Cache.MaxEntries = IntPtr(-1)
			},
			wantErr: "cache:",
		},
		{
			name: "bad rag threshold",
			mutate: func(c *Config) {
				c.RAG.SimilarityThreshold = 1.5
			},
			wantErr: "rag:",
		},
		{
			name: "bad crm driver",
			mutate: func(c *Config) {
				c.CRM.Driver = "oracle"
			},
			wantErr: "crm:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestCacheEntriesZeroDisables(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.MaxEntries = IntPtr(0)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero cache entries should validate: %v", err)
	}
	if cfg.Cache.Entries() != 0 {
		t.Errorf("expected 0 entries, got %d", cfg.Cache.Entries())
	}
}
