package rag

import "fmt"

// Config tunes the retrieval pipeline. It is mutable at runtime: the engine
// swaps it atomically via UpdateConfig and rebuilds the chunker and packer.
//
// Example YAML:
//
//	rag:
//	  chunk_size: 512
//	  chunk_overlap: 50
//	  top_k: 5
//	  similarity_threshold: 0.7
type Config struct {
	// ChunkSize is the target chunk length in characters. Characters, not
	// tokens: mixed-script input makes tokens unreliable at this layer.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// ChunkOverlap seeds each chunk with the tail of the previous one.
	ChunkOverlap int `yaml:"chunk_overlap,omitempty"`

	// TopK is the number of chunks a simple retrieval returns.
	TopK int `yaml:"top_k,omitempty"`

	// SimilarityThreshold filters vector matches below this score.
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`

	// RerankTopK is the result count after reranking.
	RerankTopK int `yaml:"rerank_top_k,omitempty"`

	// ContextWindowTokens is the budget the packer fits chunks into.
	ContextWindowTokens int `yaml:"context_window_tokens,omitempty"`

	// EnableRerank gates the rerank step in hybrid mode. Default: true.
	EnableRerank *bool `yaml:"enable_rerank,omitempty"`

	// EnableFusion gates multi-query fusion. Default: true.
	EnableFusion *bool `yaml:"enable_fusion,omitempty"`

	// Temperature for answer generation.
	Temperature float64 `yaml:"temperature,omitempty"`

	// MaxGenTokens caps the generated answer length.
	MaxGenTokens int `yaml:"max_gen_tokens,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 512
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = 3
	}
	if c.ContextWindowTokens <= 0 {
		c.ContextWindowTokens = 4000
	}
	if c.EnableRerank == nil {
		c.EnableRerank = boolPtr(true)
	}
	if c.EnableFusion == nil {
		c.EnableFusion = boolPtr(true)
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.MaxGenTokens <= 0 {
		c.MaxGenTokens = 1024
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must be non-negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1")
	}
	if c.RerankTopK <= 0 {
		return fmt.Errorf("rerank_top_k must be positive")
	}
	if c.ContextWindowTokens <= 0 {
		return fmt.Errorf("context_window_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxGenTokens <= 0 {
		return fmt.Errorf("max_gen_tokens must be positive")
	}
	return nil
}

// RerankEnabled reports EnableRerank with its default applied.
func (c *Config) RerankEnabled() bool {
	return boolValue(c.EnableRerank, true)
}

// FusionEnabled reports EnableFusion with its default applied.
func (c *Config) FusionEnabled() bool {
	return boolValue(c.EnableFusion, true)
}

func boolPtr(b bool) *bool { return &b }

func boolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
