// Package embed provides the embedding and rerank gateways used by
// retrieval: an OpenAI-compatible embeddings client and an LLM-driven
// reranker with a no-op fallback.
package embed

import (
	"context"
	"fmt"
	"time"
)

// Embedder converts text into vectors. Dimensionality is constant for the
// lifetime of the process.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the embedding dimensionality.
	Dimension() int
	// Name identifies the embedder implementation.
	Name() string
	// Close releases resources.
	Close() error
}

// Config configures the embeddings client.
type Config struct {
	// BaseURL of the OpenAI-compatible embeddings endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey sent as a Bearer token.
	APIKey string `yaml:"api_key"`

	// Model selects the embedding model (default: text-embedding-3-small).
	Model string `yaml:"model,omitempty"`

	// Dimension overrides the model's default output dimensionality.
	Dimension int `yaml:"dimension,omitempty"`

	// BatchSize caps texts per request (default: 100).
	BatchSize int `yaml:"batch_size,omitempty"`

	// Timeout per request (default: 15s).
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension == 0 {
		c.Dimension = defaultDimension(c.Model)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Validate checks the configuration. Self-hosted gateways behind a custom
// base_url may be keyless; the hosted default is not.
func (c *Config) Validate() error {
	if c.APIKey == "" && (c.BaseURL == "" || c.BaseURL == "https://api.openai.com/v1") {
		return fmt.Errorf("embedder api_key is required")
	}
	return nil
}

func defaultDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}
