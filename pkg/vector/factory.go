package vector

import "fmt"

// ProviderType identifies a vector provider implementation.
type ProviderType string

const (
	// ProviderMemory keeps vectors in process memory. Tests and one-shot
	// CLI runs.
	ProviderMemory ProviderType = "memory"

	// ProviderChromem uses embedded chromem-go storage with optional
	// persistence. Zero-config default for single-node deployments.
	ProviderChromem ProviderType = "chromem"

	// ProviderQdrant uses an external Qdrant server over gRPC.
	ProviderQdrant ProviderType = "qdrant"
)

// Config selects and configures a vector provider.
type Config struct {
	// Type identifies which provider to create.
	Type ProviderType `yaml:"type"`

	// Chromem configuration (used when Type == "chromem").
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`

	// Qdrant configuration (used when Type == "qdrant").
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = ProviderMemory
	}
	if c.Type == ProviderChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case ProviderMemory, ProviderChromem:
		return nil
	case ProviderQdrant:
		if c.Qdrant == nil {
			return fmt.Errorf("qdrant configuration is required")
		}
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		return nil
	case "":
		return fmt.Errorf("vector provider type is required")
	default:
		return fmt.Errorf("unknown vector provider type: %q", c.Type)
	}
}

// New creates a vector provider from configuration. A nil config yields the
// in-memory provider.
func New(cfg *Config) (Provider, error) {
	if cfg == nil {
		return NewMemoryProvider(), nil
	}

	switch cfg.Type {
	case ProviderMemory, "":
		return NewMemoryProvider(), nil

	case ProviderChromem:
		chromemCfg := ChromemConfig{}
		if cfg.Chromem != nil {
			chromemCfg = *cfg.Chromem
		}
		return NewChromemProvider(chromemCfg)

	case ProviderQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant configuration is required")
		}
		return NewQdrantProvider(*cfg.Qdrant)

	default:
		return nil, fmt.Errorf("unknown vector provider type: %q", cfg.Type)
	}
}
