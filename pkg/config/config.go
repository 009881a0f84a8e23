// Package config defines the process configuration and its loading pipeline.
//
// Configuration is YAML (JSON accepted) with environment expansion, loaded
// from a file or a remote source (consul, etcd, zookeeper), decoded into
// typed sections. Every section follows the same contract: SetDefaults fills
// gaps, Validate rejects nonsense. LoadConfigFile is the common entry point.
package config

import (
	"fmt"

	"github.com/herald-crm/herald/pkg/crm"
	"github.com/herald-crm/herald/pkg/embed"
	"github.com/herald-crm/herald/pkg/observability"
	"github.com/herald-crm/herald/pkg/rag"
	"github.com/herald-crm/herald/pkg/router"
	"github.com/herald-crm/herald/pkg/tools"
	"github.com/herald-crm/herald/pkg/vector"
)

// Config is the root of the process configuration.
type Config struct {
	// Endpoints lists the OpenAI-compatible endpoints. The first entry is
	// the default endpoint for models without an explicit binding.
	Endpoints []router.EndpointConfig `yaml:"endpoints,omitempty"`

	// Models lists the routable models and their fallback priorities.
	Models []router.ModelConfig `yaml:"models,omitempty"`

	// DefaultModel names the model used when a request does not pick one.
	// Defaults to the first configured model.
	DefaultModel string `yaml:"default_model,omitempty"`

	// Conversation sets conversation-memory defaults.
	Conversation ConversationConfig `yaml:"conversation,omitempty"`

	// Cache configures the fallback response cache.
	Cache CacheConfig `yaml:"cache,omitempty"`

	// RAG tunes the retrieval pipeline.
	RAG rag.Config `yaml:"rag,omitempty"`

	// VectorStore selects the vector database backend.
	VectorStore vector.Config `yaml:"vector_store,omitempty"`

	// Embedder configures the embeddings client.
	Embedder embed.Config `yaml:"embedder,omitempty"`

	// Reranker configures LLM-based reranking.
	Reranker RerankerConfig `yaml:"reranker,omitempty"`

	// Tools configures the tool registry and MCP servers.
	Tools tools.Config `yaml:"tools,omitempty"`

	// Agents holds per-agent overrides keyed by agent id
	// (sales, strategy, expert, market).
	Agents map[string]AgentConfig `yaml:"agents,omitempty"`

	// Workflow configures the customer discovery workflow.
	Workflow WorkflowConfig `yaml:"workflow,omitempty"`

	// CRM selects the customer directory backend.
	CRM crm.Config `yaml:"crm,omitempty"`

	// Logger configures process logging.
	Logger LoggerConfig `yaml:"logger,omitempty"`

	// Observability configures tracing and metrics.
	Observability observability.Config `yaml:"observability,omitempty"`
}

// ConversationConfig sets defaults for conversation memory.
type ConversationConfig struct {
	// MaxContextTokens caps a conversation's token count; older non-system
	// messages are truncated past it. Default: 8192.
	MaxContextTokens int `yaml:"max_context_tokens,omitempty"`
}

// SetDefaults applies default values.
func (c *ConversationConfig) SetDefaults() {
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 8192
	}
}

// Validate checks the configuration.
func (c *ConversationConfig) Validate() error {
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("max_context_tokens must be positive")
	}
	return nil
}

// CacheConfig configures the router's fallback response cache.
type CacheConfig struct {
	// MaxEntries caps the cache; zero disables caching, making the
	// cachedResponse strategy degrade to the simple payload. Default: 128.
	MaxEntries *int `yaml:"max_entries,omitempty"`
}

// SetDefaults applies default values.
func (c *CacheConfig) SetDefaults() {
	if c.MaxEntries == nil {
		c.MaxEntries = IntPtr(128)
	}
}

// Validate checks the configuration.
func (c *CacheConfig) Validate() error {
	if c.MaxEntries != nil && *c.MaxEntries < 0 {
		return fmt.Errorf("max_entries must be non-negative")
	}
	return nil
}

// Entries reports MaxEntries with its default applied.
func (c *CacheConfig) Entries() int {
	if c.MaxEntries == nil {
		return 128
	}
	return *c.MaxEntries
}

// RerankerConfig configures the LLM reranker used by rerank and hybrid
// retrieval modes.
type RerankerConfig struct {
	// Enabled turns reranking on. Default: true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Model names the model used for rerank prompts. Empty means the
	// router's default model.
	Model string `yaml:"model,omitempty"`

	// MaxDocs caps how many candidates one rerank prompt carries. Default: 20.
	MaxDocs int `yaml:"max_docs,omitempty"`
}

// SetDefaults applies default values.
func (c *RerankerConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.MaxDocs <= 0 {
		c.MaxDocs = 20
	}
}

// Validate checks the configuration.
func (c *RerankerConfig) Validate() error {
	if c.MaxDocs < 0 {
		return fmt.Errorf("max_docs must be non-negative")
	}
	return nil
}

// IsEnabled reports Enabled with its default applied.
func (c *RerankerConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}

// AgentConfig carries per-agent overrides.
type AgentConfig struct {
	// Model overrides the default model for this agent.
	Model string `yaml:"model,omitempty"`

	// Collection overrides the RAG collection this agent consults.
	Collection string `yaml:"collection,omitempty"`
}

// WorkflowConfig configures the customer discovery workflow.
type WorkflowConfig struct {
	// Collection is the RAG collection the research stage consults.
	// Default: market_intel.
	Collection string `yaml:"collection,omitempty"`
}

// SetDefaults applies default values.
func (c *WorkflowConfig) SetDefaults() {
	if c.Collection == "" {
		c.Collection = "market_intel"
	}
}

// knownAgents are the agent ids the runtime constructs.
var knownAgents = map[string]bool{
	"sales":    true,
	"strategy": true,
	"expert":   true,
	"market":   true,
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	for i := range c.Endpoints {
		c.Endpoints[i].SetDefaults()
	}
	for i := range c.Models {
		c.Models[i].SetDefaults()
	}
	if c.DefaultModel == "" && len(c.Models) > 0 {
		c.DefaultModel = c.Models[0].Name
	}
	c.Conversation.SetDefaults()
	c.Cache.SetDefaults()
	c.RAG.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Embedder.SetDefaults()
	c.Reranker.SetDefaults()
	c.Tools.SetDefaults()
	c.Workflow.SetDefaults()
	c.CRM.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section and the references between them.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}

	endpointIDs := make(map[string]bool, len(c.Endpoints))
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		if endpointIDs[ep.ID] {
			return fmt.Errorf("endpoints[%d]: duplicate id %q", i, ep.ID)
		}
		endpointIDs[ep.ID] = true
	}

	modelNames := make(map[string]bool, len(c.Models))
	for i := range c.Models {
		m := &c.Models[i]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		if modelNames[m.Name] {
			return fmt.Errorf("models[%d]: duplicate name %q", i, m.Name)
		}
		modelNames[m.Name] = true
		if m.EndpointID != "" && !endpointIDs[m.EndpointID] {
			return fmt.Errorf("models[%d]: unknown endpoint_id %q", i, m.EndpointID)
		}
	}

	if c.DefaultModel != "" && !modelNames[c.DefaultModel] {
		return fmt.Errorf("default_model %q is not a configured model", c.DefaultModel)
	}

	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.RAG.Validate(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Reranker.Validate(); err != nil {
		return fmt.Errorf("reranker: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if c.Reranker.Model != "" && !modelNames[c.Reranker.Model] {
		return fmt.Errorf("reranker: unknown model %q", c.Reranker.Model)
	}

	for id, agent := range c.Agents {
		if !knownAgents[id] {
			return fmt.Errorf("agents: unknown agent %q (valid: expert, market, sales, strategy)", id)
		}
		if agent.Model != "" && !modelNames[agent.Model] {
			return fmt.Errorf("agents.%s: unknown model %q", id, agent.Model)
		}
	}

	if err := c.CRM.Validate(); err != nil {
		return fmt.Errorf("crm: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}
