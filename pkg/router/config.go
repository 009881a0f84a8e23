package router

import (
	"fmt"
	"time"

	"github.com/herald-crm/herald/pkg/httpclient"
)

// Default per-call timeouts. Endpoint config can override both.
const (
	DefaultCompletionTimeout = 60 * time.Second
	DefaultStreamIdleTimeout = 30 * time.Second
)

// EndpointConfig describes one OpenAI-compatible endpoint.
//
// Example YAML:
//
//	endpoints:
//	  - id: dashscope
//	    base_url: https://dashscope.aliyuncs.com/compatible-mode/v1
//	    api_key: ${DASHSCOPE_API_KEY}
type EndpointConfig struct {
	// ID is the endpoint identifier that models bind to via endpoint_id.
	ID string `yaml:"id"`

	// BaseURL is the API root, excluding the /chat/completions suffix.
	BaseURL string `yaml:"base_url"`

	// APIKey for bearer authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// ModelPrefix is prepended to model names sent to this endpoint
	// (for gateways that namespace models, e.g. "myorg/").
	ModelPrefix string `yaml:"model_prefix,omitempty"`

	// Timeout bounds a single non-streaming completion. Default: 60s.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// StreamIdleTimeout bounds the silence between stream deltas. Default: 30s.
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout,omitempty"`

	// TLS configures transport security for self-hosted gateways.
	TLS *httpclient.TLSConfig `yaml:"tls,omitempty"`
}

// SetDefaults applies default values.
func (c *EndpointConfig) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultCompletionTimeout
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
}

// Validate checks the endpoint configuration.
func (c *EndpointConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("endpoint id is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("endpoint %q: base_url is required", c.ID)
	}
	return nil
}

// ModelConfig describes a routable model and its standing in the fallback
// cascade. Priority is a total order: lower values are tried first.
type ModelConfig struct {
	// Name is the model identifier sent on the wire.
	Name string `yaml:"name"`

	// MaxGenTokens caps the generated completion length. Default: 2048.
	MaxGenTokens int `yaml:"max_gen_tokens,omitempty"`

	// ContextWindowTokens is the model's total context size. Default: 8192.
	ContextWindowTokens int `yaml:"context_window_tokens,omitempty"`

	// SupportsTools marks models that accept tool/function definitions.
	SupportsTools bool `yaml:"supports_tools,omitempty"`

	// SupportsChinese marks models usable for Chinese input.
	SupportsChinese bool `yaml:"supports_chinese,omitempty"`

	// ChineseOptimized marks models tuned for Chinese, preferred by agents
	// when the working language is Chinese.
	ChineseOptimized bool `yaml:"chinese_optimized,omitempty"`

	// CostPer1KTokens is informational, surfaced in usage accounting.
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens,omitempty"`

	// Priority orders the fallback cascade; lower is preferred. Default: 1.
	Priority int `yaml:"priority,omitempty"`

	// EndpointID binds the model to an endpoint. Empty means the default
	// endpoint (the first one configured).
	EndpointID string `yaml:"endpoint_id,omitempty"`
}

// SetDefaults applies default values.
func (c *ModelConfig) SetDefaults() {
	if c.MaxGenTokens <= 0 {
		c.MaxGenTokens = 2048
	}
	if c.ContextWindowTokens <= 0 {
		c.ContextWindowTokens = 8192
	}
	if c.Priority <= 0 {
		c.Priority = 1
	}
}

// Validate checks the model configuration.
func (c *ModelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.MaxGenTokens >= c.ContextWindowTokens {
		return fmt.Errorf("model %q: max_gen_tokens (%d) must be below context_window_tokens (%d)",
			c.Name, c.MaxGenTokens, c.ContextWindowTokens)
	}
	return nil
}
