// Package router dispatches chat completions, tool calls, and embedding
// requests across OpenAI-compatible endpoints with model fallback.
//
// Models form a priority-ordered cascade. A request names one model (or
// the router default); on failure the fallback strategy decides whether
// the error propagates, the next model is tried, or a degraded payload
// is returned. Conversations give requests shared, token-bounded history.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/observability"
	"github.com/herald-crm/herald/pkg/tokens"
	"github.com/herald-crm/herald/pkg/tools"
)

const (
	// DefaultEmbedModel is used when an embedding request names no model.
	DefaultEmbedModel = "text-embedding-default"

	// DefaultConversationTokens bounds conversation history when no limit
	// is configured.
	DefaultConversationTokens = 8192

	// DefaultTemperature applies when a request leaves Temperature nil.
	DefaultTemperature = 0.7

	embedTimeout = 15 * time.Second
)

// simpleResponseContent is the fixed degraded payload returned when every
// model in a cascade has failed.
const simpleResponseContent = "抱歉，我暂时无法处理您的请求，请稍后再试。"

// FallbackStrategy selects what happens when a completion fails.
type FallbackStrategy string

const (
	// FallbackNone propagates the error.
	FallbackNone FallbackStrategy = "none"
	// FallbackNextModel retries remaining models in ascending priority,
	// then degrades to the simple payload.
	FallbackNextModel FallbackStrategy = "nextModel"
	// FallbackSimple returns the fixed apologetic payload.
	FallbackSimple FallbackStrategy = "simpleResponse"
	// FallbackCached serves a cached response for the same content when
	// one exists, degrading to the simple payload otherwise.
	FallbackCached FallbackStrategy = "cachedResponse"
)

func (s FallbackStrategy) valid() bool {
	switch s {
	case "", FallbackNone, FallbackNextModel, FallbackSimple, FallbackCached:
		return true
	}
	return false
}

// Request is one completion, streaming, or tool-call request.
type Request struct {
	// Messages is the prompt. Contents are canonicalized before dispatch;
	// the caller's slice is never mutated.
	Messages []chat.Message

	// Model names the model to use. Empty means the router default.
	Model string

	// Temperature overrides the sampling temperature. Nil means 0.7.
	Temperature *float64

	// MaxTokens caps the completion length. Zero means the model's
	// configured MaxGenTokens.
	MaxTokens int

	// ConversationID prepends stored history and must name a known
	// conversation when set.
	ConversationID string

	// Fallback selects the failure strategy. Empty means none.
	Fallback FallbackStrategy

	// Tools restricts the definitions advertised by ToolCall. Nil means
	// the registry's visible tools. Ignored by ChatCompletion.
	Tools []*tools.Tool

	// ToolChoice is the wire tool_choice value for ToolCall. Empty means
	// "auto". Ignored by ChatCompletion.
	ToolChoice string
}

// Response is the outcome of a completion or tool call.
type Response struct {
	Content      string          `json:"content"`
	Model        string          `json:"model,omitempty"`
	ToolCalls    []chat.ToolCall `json:"tool_calls,omitempty"`
	Usage        *chat.Usage     `json:"usage,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`

	// Fallback metadata. FallbackModel stays empty when no model served
	// the response (simple payload).
	FallbackUsed  bool   `json:"fallback_used,omitempty"`
	OriginalModel string `json:"original_model,omitempty"`
	FallbackModel string `json:"fallback_model,omitempty"`
	FallbackType  string `json:"fallback_type,omitempty"`
}

// StreamDelta is one increment of a completion stream. Err is terminal:
// the channel closes after it.
type StreamDelta struct {
	Content string
	Err     error
}

// Float64Ptr returns a pointer to v, for Request.Temperature.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Router routes requests to endpoints and applies fallback.
type Router struct {
	endpoints       map[string]*Endpoint
	defaultEndpoint *Endpoint

	models       map[string]ModelConfig
	cascade      []ModelConfig // ascending priority, config order on ties
	defaultModel string

	tools         *tools.Registry
	cache         *responseCache
	conversations *conversationStore
	est           tokens.Estimator
}

// Option configures a Router.
type Option func(*Router)

// WithTools wires the registry used to advertise and execute tools.
func WithTools(reg *tools.Registry) Option {
	return func(r *Router) { r.tools = reg }
}

// WithCache enables the response cache behind the cachedResponse
// strategy. maxEntries <= 0 leaves caching disabled.
func WithCache(maxEntries int) Option {
	return func(r *Router) { r.cache = newResponseCache(maxEntries) }
}

// WithConversationLimit sets the token budget of new conversations.
func WithConversationLimit(maxTokens int) Option {
	return func(r *Router) {
		if maxTokens > 0 {
			r.conversations = newConversationStore(maxTokens, r.est)
		}
	}
}

// WithEstimator replaces the token estimator used for truncation budgets.
func WithEstimator(est tokens.Estimator) Option {
	return func(r *Router) {
		r.est = est
		r.conversations = newConversationStore(r.conversations.maxContextTokens, est)
	}
}

// New builds a router over the given endpoints and models. The first
// endpoint is the default for models without an explicit binding; the
// default model falls back to the first configured one.
func New(endpoints []EndpointConfig, models []ModelConfig, defaultModel string, opts ...Option) (*Router, error) {
	if len(endpoints) == 0 {
		return nil, newError(KindValidation, "", "New", "at least one endpoint is required", nil)
	}
	if len(models) == 0 {
		return nil, newError(KindValidation, "", "New", "at least one model is required", nil)
	}

	r := &Router{
		endpoints: make(map[string]*Endpoint, len(endpoints)),
		models:    make(map[string]ModelConfig, len(models)),
		est:       tokens.HeuristicEstimator{},
	}
	r.conversations = newConversationStore(DefaultConversationTokens, r.est)

	for i := range endpoints {
		cfg := endpoints[i]
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, newError(KindValidation, "", "New", "invalid endpoint", err)
		}
		if _, dup := r.endpoints[cfg.ID]; dup {
			return nil, newError(KindValidation, "", "New", fmt.Sprintf("duplicate endpoint id %q", cfg.ID), nil)
		}
		ep := NewEndpoint(cfg)
		r.endpoints[cfg.ID] = ep
		if r.defaultEndpoint == nil {
			r.defaultEndpoint = ep
		}
	}

	for i := range models {
		mc := models[i]
		mc.SetDefaults()
		if err := mc.Validate(); err != nil {
			return nil, newError(KindValidation, mc.Name, "New", "invalid model", err)
		}
		if _, dup := r.models[mc.Name]; dup {
			return nil, newError(KindValidation, mc.Name, "New", fmt.Sprintf("duplicate model %q", mc.Name), nil)
		}
		if mc.EndpointID != "" {
			if _, ok := r.endpoints[mc.EndpointID]; !ok {
				return nil, newError(KindValidation, mc.Name, "New",
					fmt.Sprintf("unknown endpoint_id %q", mc.EndpointID), nil)
			}
		}
		r.models[mc.Name] = mc
		r.cascade = append(r.cascade, mc)
	}
	sort.SliceStable(r.cascade, func(i, j int) bool {
		return r.cascade[i].Priority < r.cascade[j].Priority
	})

	if defaultModel == "" {
		defaultModel = models[0].Name
	}
	if _, ok := r.models[defaultModel]; !ok {
		return nil, newError(KindValidation, defaultModel, "New", "default model is not configured", nil)
	}
	r.defaultModel = defaultModel

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// endpointFor resolves a model's endpoint, defaulting to the first one.
func (r *Router) endpointFor(mc ModelConfig) *Endpoint {
	if mc.EndpointID != "" {
		if ep, ok := r.endpoints[mc.EndpointID]; ok {
			return ep
		}
	}
	return r.defaultEndpoint
}

// pending is a request after validation: canonicalized, conversation
// history prepended, not yet truncated. Truncation is per candidate
// model because budgets depend on the model's window.
type pending struct {
	messages  []chat.Message
	convLimit int // 0 when no conversation is attached
	maxTokens int // 0 means the model default
	temp      float64
}

// prepare validates the request and resolves the primary model.
func (r *Router) prepare(req Request, op string) (ModelConfig, pending, error) {
	if !req.Fallback.valid() {
		return ModelConfig{}, pending{}, newError(KindValidation, req.Model, op,
			fmt.Sprintf("unknown fallback strategy %q", req.Fallback), nil)
	}
	if len(req.Messages) == 0 {
		return ModelConfig{}, pending{}, newError(KindValidation, req.Model, op, "no messages", nil)
	}

	name := req.Model
	if name == "" {
		name = r.defaultModel
	}
	mc, ok := r.models[name]
	if !ok {
		return ModelConfig{}, pending{}, newError(KindNotFound, name, op,
			fmt.Sprintf("model %q is not configured", name), nil)
	}

	p := pending{
		maxTokens: req.MaxTokens,
		temp:      DefaultTemperature,
	}
	if req.Temperature != nil {
		p.temp = *req.Temperature
	}

	msgs := req.Messages
	if req.ConversationID != "" {
		conv, ok := r.conversations.get(req.ConversationID)
		if !ok {
			return ModelConfig{}, pending{}, newError(KindNotFound, name, op,
				fmt.Sprintf("conversation %q is not known", req.ConversationID), nil)
		}
		history := conv.Messages()
		msgs = append(history, msgs...)
		p.convLimit = conv.MaxContextTokens()
	}
	p.messages = canonicalizeMessages(msgs)

	return mc, p, nil
}

// truncateFor fits the pending messages into the model's window.
func (r *Router) truncateFor(mc ModelConfig, p pending) ([]chat.Message, int) {
	maxTokens := p.maxTokens
	if maxTokens <= 0 {
		maxTokens = mc.MaxGenTokens
	}
	budget := mc.ContextWindowTokens - maxTokens
	if p.convLimit > 0 && p.convLimit < budget {
		budget = p.convLimit
	}
	return tokens.Truncate(r.est, p.messages, budget), maxTokens
}

// dispatch sends one completion to one model and records the attempt.
func (r *Router) dispatch(ctx context.Context, mc ModelConfig, p pending, wtools []wireTool, toolChoice string) (*Response, error) {
	msgs, maxTokens := r.truncateFor(mc, p)
	ep := r.endpointFor(mc)

	wreq := wireRequest{
		Model:       ep.wireModel(mc.Name),
		Messages:    toWireMessages(msgs),
		MaxTokens:   &maxTokens,
		Temperature: p.temp,
		Tools:       wtools,
		ToolChoice:  toolChoice,
	}

	start := time.Now()
	wresp, err := ep.Complete(ctx, wreq)
	duration := time.Since(start)

	var promptTokens, completionTokens int
	if err == nil && wresp.Usage != nil {
		promptTokens = wresp.Usage.PromptTokens
		completionTokens = wresp.Usage.CompletionTokens
	}
	observability.GlobalRecorder().RecordCompletion(ctx, mc.Name, ep.ID(), duration, promptTokens, completionTokens, err)
	if err != nil {
		return nil, err
	}

	choice := wresp.Choices[0]
	resp := &Response{
		Content:      choice.Message.Content,
		Model:        mc.Name,
		Usage:        wresp.Usage,
		FinishReason: choice.FinishReason,
	}
	if len(choice.Message.ToolCalls) > 0 {
		calls, err := parseWireToolCalls(choice.Message.ToolCalls)
		if err != nil {
			return nil, err
		}
		resp.ToolCalls = calls
	}
	return resp, nil
}

// completeWithFallback runs the primary dispatch and applies the strategy
// on failure. Successful responses are cached under the request key.
func (r *Router) completeWithFallback(ctx context.Context, op string, primary ModelConfig, p pending, strategy FallbackStrategy, wtools []wireTool, toolChoice string) (*Response, error) {
	key := cacheKey(primary.Name, p.messages)

	resp, err := r.dispatch(ctx, primary, p, wtools, toolChoice)
	if err == nil {
		r.cache.put(key, *resp)
		return resp, nil
	}

	switch strategy {
	case FallbackNextModel:
		lastErr := err
		for _, mc := range r.nextModels(primary, len(wtools) > 0) {
			slog.Warn("Falling back to next model",
				"from", primary.Name,
				"to", mc.Name,
				"priority", mc.Priority,
				"error", lastErr)
			resp, err := r.dispatch(ctx, mc, p, wtools, toolChoice)
			if err == nil {
				resp.FallbackUsed = true
				resp.OriginalModel = primary.Name
				resp.FallbackModel = mc.Name
				resp.FallbackType = string(FallbackNextModel)
				r.cache.put(key, *resp)
				return resp, nil
			}
			lastErr = err
		}
		slog.Error("All models failed, serving simple response",
			"original", primary.Name, "error", lastErr)
		return r.simpleResponse(primary.Name), nil

	case FallbackSimple:
		slog.Warn("Serving simple response", "model", primary.Name, "error", err)
		return r.simpleResponse(primary.Name), nil

	case FallbackCached:
		if cached, ok := r.cache.get(key); ok {
			slog.Warn("Serving cached response", "model", primary.Name, "error", err)
			cached.FallbackUsed = true
			cached.OriginalModel = primary.Name
			cached.FallbackModel = cached.Model
			cached.FallbackType = string(FallbackCached)
			return &cached, nil
		}
		slog.Warn("No cached response, serving simple response", "model", primary.Name, "error", err)
		return r.simpleResponse(primary.Name), nil

	default: // FallbackNone
		return nil, newError(classify(err), primary.Name, op, "completion failed", err)
	}
}

// nextModels lists fallback candidates in ascending priority, excluding
// the primary. Tool-call requests skip models without tool support.
func (r *Router) nextModels(primary ModelConfig, needTools bool) []ModelConfig {
	out := make([]ModelConfig, 0, len(r.cascade))
	for _, mc := range r.cascade {
		if mc.Name == primary.Name {
			continue
		}
		if needTools && !mc.SupportsTools {
			continue
		}
		out = append(out, mc)
	}
	return out
}

func (r *Router) simpleResponse(originalModel string) *Response {
	return &Response{
		Content:       simpleResponseContent,
		FallbackUsed:  true,
		OriginalModel: originalModel,
		FallbackType:  string(FallbackSimple),
	}
}

// ChatCompletion performs one non-streaming completion.
func (r *Router) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	tracer := observability.Tracer("herald.router")
	ctx, span := tracer.Start(ctx, observability.SpanCompletion,
		trace.WithAttributes(
			attribute.String(observability.AttrModelName, req.Model),
			attribute.Bool("streaming", false),
		),
	)
	defer span.End()

	mc, p, err := r.prepare(req, "ChatCompletion")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String(observability.AttrModelName, mc.Name),
		attribute.String(observability.AttrEndpointID, r.endpointFor(mc).ID()),
	)

	resp, err := r.completeWithFallback(ctx, "ChatCompletion", mc, p, req.Fallback, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if resp.FallbackUsed {
		span.SetAttributes(
			attribute.Bool("fallback.used", true),
			attribute.String("fallback.type", resp.FallbackType),
		)
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.tokens.prompt", resp.Usage.PromptTokens),
			attribute.Int("llm.tokens.completion", resp.Usage.CompletionTokens),
		)
	}
	span.SetStatus(codes.Ok, "success")
	return resp, nil
}

// ChatCompletionStream performs a streaming completion. The returned
// channel yields content deltas in wire order and closes after the
// terminal event; a mid-stream failure arrives as a StreamDelta with Err
// set. On clean completion with a conversation attached, the concatenated
// content is appended as an assistant message. Cancelled or failed
// streams append nothing.
//
// Streams do not fall back; req.Fallback must be none or empty.
func (r *Router) ChatCompletionStream(ctx context.Context, req Request) (<-chan StreamDelta, error) {
	const op = "ChatCompletionStream"

	if req.Fallback != "" && req.Fallback != FallbackNone {
		return nil, newError(KindValidation, req.Model, op,
			fmt.Sprintf("streaming does not support fallback strategy %q", req.Fallback), nil)
	}

	tracer := observability.Tracer("herald.router")
	ctx, span := tracer.Start(ctx, observability.SpanCompletion,
		trace.WithAttributes(
			attribute.String(observability.AttrModelName, req.Model),
			attribute.Bool("streaming", true),
		),
	)

	mc, p, err := r.prepare(req, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	msgs, maxTokens := r.truncateFor(mc, p)
	ep := r.endpointFor(mc)
	wreq := wireRequest{
		Model:       ep.wireModel(mc.Name),
		Messages:    toWireMessages(msgs),
		MaxTokens:   &maxTokens,
		Temperature: p.temp,
	}

	start := time.Now()
	events, err := ep.Stream(ctx, wreq)
	if err != nil {
		observability.GlobalRecorder().RecordCompletion(ctx, mc.Name, ep.ID(), time.Since(start), 0, 0, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, newError(classify(err), mc.Name, op, "stream failed", err)
	}

	out := make(chan StreamDelta, 16)
	go func() {
		defer close(out)
		defer span.End()

		var content strings.Builder
		for ev := range events {
			switch {
			case ev.Err != nil:
				observability.GlobalRecorder().RecordCompletion(ctx, mc.Name, ep.ID(), time.Since(start), 0, 0, ev.Err)
				span.RecordError(ev.Err)
				span.SetStatus(codes.Error, ev.Err.Error())
				out <- StreamDelta{Err: newError(classify(ev.Err), mc.Name, op, "stream failed", ev.Err)}
				return

			case ev.Done:
				var promptTokens, completionTokens int
				if ev.Usage != nil {
					promptTokens = ev.Usage.PromptTokens
					completionTokens = ev.Usage.CompletionTokens
				}
				observability.GlobalRecorder().RecordCompletion(ctx, mc.Name, ep.ID(), time.Since(start), promptTokens, completionTokens, nil)
				if req.ConversationID != "" && content.Len() > 0 {
					if conv, ok := r.conversations.get(req.ConversationID); ok {
						conv.append(chat.Assistant(content.String()))
					}
				}
				span.SetStatus(codes.Ok, "success")
				return

			default:
				content.WriteString(ev.Content)
				select {
				case out <- StreamDelta{Content: ev.Content}:
				case <-ctx.Done():
					span.SetStatus(codes.Error, ctx.Err().Error())
					return
				}
			}
		}
	}()
	return out, nil
}

// ToolCall performs one completion with tool definitions attached and
// executes every call the model emits, filling Result or Error on each.
// The model is never re-invoked with the results; callers own that loop.
// Tool calls do not fall back; failures propagate.
func (r *Router) ToolCall(ctx context.Context, req Request) (*Response, error) {
	const op = "ToolCall"

	tracer := observability.Tracer("herald.router")
	ctx, span := tracer.Start(ctx, observability.SpanCompletion,
		trace.WithAttributes(
			attribute.String(observability.AttrModelName, req.Model),
			attribute.Bool("tool_call", true),
		),
	)
	defer span.End()

	mc, p, err := r.prepare(req, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !mc.SupportsTools {
		err := newError(KindValidation, mc.Name, op,
			fmt.Sprintf("model %q does not support tools", mc.Name), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	defs := req.Tools
	if defs == nil && r.tools != nil {
		defs = r.tools.Definitions()
	}
	if len(defs) == 0 {
		err := newError(KindValidation, mc.Name, op, "no tools available", nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	wtools := make([]wireTool, len(defs))
	for i, d := range defs {
		wtools[i] = wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema,
			},
		}
	}
	toolChoice := req.ToolChoice
	if toolChoice == "" {
		toolChoice = "auto"
	}

	resp, err := r.dispatch(ctx, mc, p, wtools, toolChoice)
	if err != nil {
		err := newError(classify(err), mc.Name, op, "tool call failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i := range resp.ToolCalls {
		tc := &resp.ToolCalls[i]
		if r.tools == nil {
			tc.Error = "no tool registry configured"
			continue
		}
		result := r.tools.Execute(ctx, tc.Name, tc.Args)
		if result.Success {
			tc.Result = result.Content
		} else {
			tc.Error = result.Error
		}
	}

	span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	span.SetStatus(codes.Ok, "success")
	return resp, nil
}

// Embed computes the embedding of text. An empty model name uses
// DefaultEmbedModel; models without a configured binding go to the
// default endpoint.
func (r *Router) Embed(ctx context.Context, text, model string) ([]float64, error) {
	const op = "Embed"
	if model == "" {
		model = DefaultEmbedModel
	}

	tracer := observability.Tracer("herald.router")
	ctx, span := tracer.Start(ctx, observability.SpanEmbedding,
		trace.WithAttributes(attribute.String(observability.AttrModelName, model)))
	defer span.End()

	ep := r.defaultEndpoint
	if mc, ok := r.models[model]; ok {
		ep = r.endpointFor(mc)
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vectors, err := ep.Embed(ctx, model, []string{Canonicalize(text)})
	if err != nil {
		err := newError(classify(err), model, op, "embedding failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "success")
	return vectors[0], nil
}

// CreateConversation registers a conversation. An empty id gets a
// generated UUID.
func (r *Router) CreateConversation(id, userID string, metadata map[string]string) (*Conversation, error) {
	conv, err := r.conversations.create(id, userID, metadata)
	if err != nil {
		return nil, newError(KindValidation, "", "CreateConversation", err.Error(), nil)
	}
	return conv, nil
}

// Conversation looks up a conversation by id.
func (r *Router) Conversation(id string) (*Conversation, error) {
	conv, ok := r.conversations.get(id)
	if !ok {
		return nil, newError(KindNotFound, "", "Conversation",
			fmt.Sprintf("conversation %q is not known", id), nil)
	}
	return conv, nil
}

// AppendMessage adds a message to a conversation's history. Appends to
// the same conversation are serialized; the history is re-truncated to
// its token budget with system messages always retained.
func (r *Router) AppendMessage(id string, msg chat.Message) error {
	conv, ok := r.conversations.get(id)
	if !ok {
		return newError(KindNotFound, "", "AppendMessage",
			fmt.Sprintf("conversation %q is not known", id), nil)
	}
	conv.append(msg)
	return nil
}

// RemoveConversation drops a conversation and its history.
func (r *Router) RemoveConversation(id string) {
	r.conversations.remove(id)
}

// DefaultModel returns the router's default model name.
func (r *Router) DefaultModel() string {
	return r.defaultModel
}

// Model returns the configuration of a routable model.
func (r *Router) Model(name string) (ModelConfig, bool) {
	mc, ok := r.models[name]
	return mc, ok
}

// Models returns the cascade in ascending priority order.
func (r *Router) Models() []ModelConfig {
	out := make([]ModelConfig, len(r.cascade))
	copy(out, r.cascade)
	return out
}

// Close releases idle endpoint connections.
func (r *Router) Close() error {
	for _, ep := range r.endpoints {
		ep.Close()
	}
	return nil
}
