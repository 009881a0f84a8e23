// Package runtime assembles the platform from configuration: the model
// router, the retrieval engine, the tool registry, the customer directory,
// the four agents, and the discovery workflow. CoreContext owns every
// component and tears all of them down in one Close.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/herald-crm/herald/pkg/agent"
	"github.com/herald-crm/herald/pkg/config"
	"github.com/herald-crm/herald/pkg/crm"
	"github.com/herald-crm/herald/pkg/embed"
	"github.com/herald-crm/herald/pkg/logger"
	"github.com/herald-crm/herald/pkg/observability"
	"github.com/herald-crm/herald/pkg/rag"
	"github.com/herald-crm/herald/pkg/router"
	"github.com/herald-crm/herald/pkg/tokens"
	"github.com/herald-crm/herald/pkg/tools"
	"github.com/herald-crm/herald/pkg/vector"
	"github.com/herald-crm/herald/pkg/workflow"
)

// shutdownTimeout bounds the observability flush during Close.
const shutdownTimeout = 5 * time.Second

// Options selects where configuration comes from. A config file wins when
// it exists; otherwise BaseURL, APIKey, and Model synthesize a minimal
// single-endpoint configuration so the CLI works without a file. Non-empty
// logging fields override the config file's logger section.
type Options struct {
	ConfigFile string

	BaseURL string
	APIKey  string
	Model   string

	LogLevel  string
	LogFile   string
	LogFormat string
}

// applyLogging folds the CLI logging overrides into the logger section.
func (o Options) applyLogging(cfg *config.Config) {
	if o.LogLevel != "" {
		cfg.Logger.Level = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.Logger.File = o.LogFile
	}
	if o.LogFormat != "" {
		cfg.Logger.Format = o.LogFormat
	}
}

// CoreContext is the composition root: every long-lived component, built
// once from one configuration snapshot.
type CoreContext struct {
	cfg    *config.Config
	loader *config.Loader

	obs       *observability.Manager
	store     vector.Provider
	embedder  embed.Embedder
	router    *router.Router
	tools     *tools.Registry
	mcp       []*tools.MCPSource
	directory crm.Directory
	engine    *rag.Engine
	hub       *agent.Hub
	workflow  *workflow.Engine

	closeLog func()
}

// New resolves configuration per opts and builds the full component graph.
func New(ctx context.Context, opts Options) (*CoreContext, error) {
	var core *CoreContext

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err == nil {
			cfg, loader, err := config.LoadConfigFile(ctx, opts.ConfigFile,
				config.WithOnChange(func(next *config.Config) {
					if core != nil {
						core.applyConfig(next)
					}
				}))
			if err != nil {
				return nil, err
			}
			opts.applyLogging(cfg)
			core, err = NewWithConfig(ctx, cfg)
			if err != nil {
				loader.Close()
				return nil, err
			}
			core.loader = loader
			return core, nil
		} else if opts.APIKey == "" {
			return nil, fmt.Errorf("config file %s: %w", opts.ConfigFile, os.ErrNotExist)
		}
	}

	cfg, err := zeroConfig(opts)
	if err != nil {
		return nil, err
	}
	opts.applyLogging(cfg)
	return NewWithConfig(ctx, cfg)
}

// zeroConfig synthesizes a single-endpoint configuration from flags. The
// chat endpoint doubles as the embeddings endpoint, which holds for OpenAI
// and for the common one-gateway deployments.
func zeroConfig(opts Options) (*config.Config, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("either a config file or an api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	cfg := &config.Config{
		Endpoints: []router.EndpointConfig{{ID: "default", BaseURL: baseURL, APIKey: opts.APIKey}},
		Models:    []router.ModelConfig{{Name: model, SupportsTools: true, SupportsChinese: true}},
		Embedder:  embed.Config{BaseURL: baseURL, APIKey: opts.APIKey},
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("zero config: %w", err)
	}
	return cfg, nil
}

// NewWithConfig builds the component graph from an already-validated
// configuration. Components that fail to start abort construction; the
// ones already started are closed.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*CoreContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	core := &CoreContext{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			core.Close()
		}
	}()

	if err := core.initLogger(); err != nil {
		return nil, err
	}

	core.obs = observability.NewManager(cfg.Observability)
	if err := core.obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	store, err := vector.New(&cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	core.store = store

	embedder, err := embed.NewOpenAIEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	core.embedder = embedder

	directory, err := crm.New(cfg.CRM)
	if err != nil {
		return nil, fmt.Errorf("crm: %w", err)
	}
	core.directory = directory

	core.tools = tools.NewRegistry(tools.WithTimeout(cfg.Tools.Timeout))
	if err := tools.RegisterBuiltins(core.tools, directory); err != nil {
		return nil, err
	}
	core.connectMCP(ctx)

	est := estimatorFor(cfg.DefaultModel)
	rtr, err := router.New(cfg.Endpoints, cfg.Models, cfg.DefaultModel,
		router.WithTools(core.tools),
		router.WithCache(cfg.Cache.Entries()),
		router.WithConversationLimit(cfg.Conversation.MaxContextTokens),
		router.WithEstimator(est))
	if err != nil {
		return nil, err
	}
	core.router = rtr

	gateway := &modelGateway{router: rtr}
	engineOpts := []rag.EngineOption{rag.WithEstimator(est)}
	if cfg.Reranker.IsEnabled() {
		rerankGen := &modelGateway{router: rtr, model: cfg.Reranker.Model}
		engineOpts = append(engineOpts, rag.WithReranker(embed.NewLLMReranker(rerankGen, cfg.Reranker.MaxDocs)))
	}
	engine, err := rag.NewEngine(cfg.RAG, store, embedder, gateway, engineOpts...)
	if err != nil {
		return nil, err
	}
	core.engine = engine

	market, sales, err := core.buildAgents(gateway)
	if err != nil {
		return nil, err
	}

	wf, err := workflow.NewEngine(market, sales, directory)
	if err != nil {
		return nil, err
	}
	core.workflow = wf

	slog.Info("Platform assembled",
		"models", len(cfg.Models),
		"endpoints", len(cfg.Endpoints),
		"agents", len(core.hub.Agents()),
		"vector_store", store.Name(),
		"crm_driver", cfg.CRM.Driver)

	ok = true
	return core, nil
}

// initLogger configures the process logger from the config section. The
// log file, when one is named, stays open until Close.
func (c *CoreContext) initLogger() error {
	level, err := logger.ParseLevel(c.cfg.Logger.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	output := os.Stderr
	if c.cfg.Logger.File != "" {
		f, closeFn, err := logger.OpenLogFile(c.cfg.Logger.File)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		output = f
		c.closeLog = closeFn
	}

	logger.Init(level, output, c.cfg.Logger.Format)
	return nil
}

// connectMCP discovers tools on every configured MCP server. A server that
// cannot be reached is logged and skipped so one dead sidecar does not keep
// the platform from starting.
func (c *CoreContext) connectMCP(ctx context.Context) {
	for i := range c.cfg.Tools.MCPServers {
		sc := c.cfg.Tools.MCPServers[i]
		src, err := tools.NewMCPSource(sc)
		if err != nil {
			slog.Warn("Skipping MCP server", "name", sc.Name, "error", err)
			continue
		}
		if err := src.Connect(ctx, c.tools); err != nil {
			slog.Warn("MCP server unavailable", "name", sc.Name, "error", err)
			src.Close()
			continue
		}
		c.mcp = append(c.mcp, src)
	}
}

// buildAgents constructs the four specialists over the shared services and
// registers them on the hub. Per-agent config overrides the model and the
// knowledge collection; the workflow collection backs the market agent's
// research when no agent-level override is set.
func (c *CoreContext) buildAgents(gateway *modelGateway) (*agent.MarketAgent, *agent.SalesAgent, error) {
	c.hub = agent.NewHub()

	services := func(id string) agent.Services {
		ac := c.cfg.Agents[id]
		svc := agent.Services{
			LLM:          gateway,
			Knowledge:    c.engine,
			Tools:        c.tools,
			Communicator: c.hub,
			Model:        ac.Model,
			Collection:   ac.Collection,
		}
		if id == "market" && svc.Collection == "" {
			svc.Collection = c.cfg.Workflow.Collection
		}
		return svc
	}

	market := agent.NewMarketAgent(services("market"))
	sales := agent.NewSalesAgent(services("sales"))

	all := []agent.Agent{
		sales,
		agent.NewStrategyAgent(services("strategy")),
		agent.NewExpertAgent(services("expert")),
		market,
	}
	for _, a := range all {
		if err := c.hub.Register(a); err != nil {
			return nil, nil, err
		}
	}
	return market, sales, nil
}

// estimatorFor prefers an exact tokenizer for the model and falls back to
// the byte heuristic for models tiktoken does not know.
func estimatorFor(model string) tokens.Estimator {
	est, err := tokens.NewTiktokenEstimator(model)
	if err != nil {
		slog.Debug("No exact tokenizer for model, using heuristic", "model", model, "error", err)
		return tokens.HeuristicEstimator{}
	}
	return est
}

// applyConfig absorbs a reloaded configuration. Only the retrieval section
// is hot-swappable; everything else keeps the components it was built with
// until restart.
func (c *CoreContext) applyConfig(next *config.Config) {
	if err := c.engine.UpdateConfig(next.RAG); err != nil {
		slog.Error("Rejected reloaded RAG config", "error", err)
		return
	}
	slog.Info("Applied reloaded configuration", "sections", "rag")
}

// Watch blocks, applying config changes until ctx is cancelled. It is a
// no-op without a file-backed loader.
func (c *CoreContext) Watch(ctx context.Context) error {
	if c.loader == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.loader.Watch(ctx)
}

// Send routes one user message to an agent and returns its response.
func (c *CoreContext) Send(ctx context.Context, agentID, content string) (agent.Response, error) {
	return c.hub.Dispatch(ctx, agentID, agent.Message{
		Type:     agent.TypeRequest,
		SenderID: "user",
		Content:  content,
	})
}

// Config returns the configuration snapshot the context was built from.
func (c *CoreContext) Config() *config.Config { return c.cfg }

// Router returns the model router.
func (c *CoreContext) Router() *router.Router { return c.router }

// Engine returns the retrieval engine.
func (c *CoreContext) Engine() *rag.Engine { return c.engine }

// Tools returns the tool registry.
func (c *CoreContext) Tools() *tools.Registry { return c.tools }

// Directory returns the customer directory.
func (c *CoreContext) Directory() crm.Directory { return c.directory }

// Hub returns the agent hub.
func (c *CoreContext) Hub() *agent.Hub { return c.hub }

// Workflow returns the discovery workflow engine.
func (c *CoreContext) Workflow() *workflow.Engine { return c.workflow }

// Observability returns the tracing and metrics manager.
func (c *CoreContext) Observability() *observability.Manager { return c.obs }

// Close tears components down in reverse construction order and reports
// every failure.
func (c *CoreContext) Close() error {
	var errs []error

	for _, src := range c.mcp {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp %s: %w", src.Name(), err))
		}
	}
	c.mcp = nil
	if c.router != nil {
		if err := c.router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("router: %w", err))
		}
		c.router = nil
	}
	if c.directory != nil {
		if err := c.directory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("crm: %w", err))
		}
		c.directory = nil
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder: %w", err))
		}
		c.embedder = nil
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vector store: %w", err))
		}
		c.store = nil
	}
	if c.obs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := c.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
		cancel()
		c.obs = nil
	}
	if c.loader != nil {
		if err := c.loader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config loader: %w", err))
		}
		c.loader = nil
	}
	if c.closeLog != nil {
		c.closeLog()
		c.closeLog = nil
	}

	return errors.Join(errs...)
}
