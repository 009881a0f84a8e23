package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/observability"
	"github.com/herald-crm/herald/pkg/rag"
	"github.com/herald-crm/herald/pkg/router"
	"github.com/herald-crm/herald/pkg/tools"
)

// Names of the tools agents reach for when the runtime registered them.
// Both are optional; agents degrade gracefully when they are absent.
const (
	toolLookupCustomer = "lookup_customer"
	toolSendMessage    = "send_message"
)

// Generator is the completion surface agents use. The runtime adapts
// *router.Router to it.
type Generator interface {
	ChatCompletion(ctx context.Context, req router.Request) (router.Response, error)
}

// Knowledge is the retrieval surface agents consult. *rag.Engine satisfies it.
type Knowledge interface {
	Query(ctx context.Context, question string, mode rag.RetrievalMode, collection string) rag.Answer
}

var _ Knowledge = (*rag.Engine)(nil)

// Agent is the three-step lifecycle every specialized agent implements.
// Analyze is deterministic over the message. Execute does the work and may
// reach the model, the knowledge engine, tools, or peers. Respond formats
// the outcome, including the low-confidence path for failed tasks.
// Collaborate comes from the embedded BaseAgent.
type Agent interface {
	ID() string
	Name() string
	Specialty() string
	Capabilities() []Capability

	Analyze(ctx context.Context, msg Message) Analysis
	Execute(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error)
	Respond(ctx context.Context, result TaskResult, collab *CollaborationResult) Response

	Collaborate(ctx context.Context, msg Message, analysis Analysis) *CollaborationResult
}

// Services carries the shared handles an agent works with. Every field is
// optional; agents fall back to deterministic behavior for whatever is nil.
type Services struct {
	LLM          Generator
	Knowledge    Knowledge
	Tools        *tools.Registry
	Communicator Communicator

	// Model overrides the router default for this agent's completions.
	Model string
	// Collection overrides the agent's default knowledge collection.
	Collection string
}

// BaseAgent implements the identity surface and collaboration dispatch.
// Concrete agents embed it and add Analyze, Execute, and Respond.
type BaseAgent struct {
	id        string
	name      string
	specialty string
	caps      []Capability
	svc       Services
}

// NewBaseAgent builds the shared core of a concrete agent.
func NewBaseAgent(id, name, specialty string, caps []Capability, svc Services) *BaseAgent {
	return &BaseAgent{
		id:        id,
		name:      name,
		specialty: specialty,
		caps:      caps,
		svc:       svc,
	}
}

// ID returns the stable agent id used for routing.
func (b *BaseAgent) ID() string { return b.id }

// Name returns the display name.
func (b *BaseAgent) Name() string { return b.name }

// Specialty describes the agent's domain in one line.
func (b *BaseAgent) Specialty() string { return b.specialty }

// Capabilities returns a copy of the declared capability manifest.
func (b *BaseAgent) Capabilities() []Capability {
	out := make([]Capability, len(b.caps))
	copy(out, b.caps)
	return out
}

// collection resolves the agent's knowledge collection, preferring the
// configured override.
func (b *BaseAgent) collection(def string) string {
	if b.svc.Collection != "" {
		return b.svc.Collection
	}
	return def
}

// consult asks the knowledge engine. A nil engine yields an empty answer.
func (b *BaseAgent) consult(ctx context.Context, question, collection string) rag.Answer {
	if b.svc.Knowledge == nil {
		return rag.Answer{}
	}
	return b.svc.Knowledge.Query(ctx, question, rag.ModeHybrid, collection)
}

// complete runs one completion through the router with the agent's model and
// the next-model fallback cascade.
func (b *BaseAgent) complete(ctx context.Context, system, user string) (string, error) {
	if b.svc.LLM == nil {
		return "", fmt.Errorf("agent %s has no model access", b.id)
	}
	var messages []chat.Message
	if system != "" {
		messages = append(messages, chat.System(system))
	}
	messages = append(messages, chat.User(user))
	resp, err := b.svc.LLM.ChatCompletion(ctx, router.Request{
		Model:    b.svc.Model,
		Messages: messages,
		Fallback: router.FallbackNextModel,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// lookupCustomer fetches a customer by id through the registered tool.
// Missing tool, missing id, or a failed execution all yield "".
func (b *BaseAgent) lookupCustomer(ctx context.Context, id string) string {
	if b.svc.Tools == nil || id == "" {
		return ""
	}
	if _, ok := b.svc.Tools.Get(toolLookupCustomer); !ok {
		return ""
	}
	res := b.svc.Tools.Execute(ctx, toolLookupCustomer, map[string]any{"id": id})
	if !res.Success {
		return ""
	}
	return res.Content
}

// consultTask answers a free-form question: knowledge base first, direct
// model completion when retrieval finds nothing.
func (b *BaseAgent) consultTask(ctx context.Context, msg Message, analysis Analysis, system, collection string) (TaskResult, error) {
	answer := b.consult(ctx, msg.Content, collection)
	if answer.Answer != "" && len(answer.Sources) > 0 {
		return TaskResult{
			Success:      true,
			ResponseType: analysis.TaskType,
			Data: map[string]any{
				"answer":     answer.Answer,
				"confidence": answer.Confidence,
				"sources":    len(answer.Sources),
			},
		}, nil
	}
	text, err := b.complete(ctx, system, msg.Content)
	if err != nil {
		return TaskResult{
			ResponseType:     analysis.TaskType,
			FallbackResponse: "当前无法访问知识库与模型，请稍后再试。",
		}, err
	}
	return TaskResult{
		Success:      true,
		ResponseType: analysis.TaskType,
		Data:         map[string]any{"answer": text},
	}, nil
}

// composeTask answers a task-shaped question: knowledge evidence is folded
// into the model prompt, and a model failure degrades to the evidence alone.
func (b *BaseAgent) composeTask(ctx context.Context, analysis Analysis, question, system, collection string) (TaskResult, error) {
	evidence := b.consult(ctx, question, collection)
	prompt := question
	hasEvidence := evidence.Answer != "" && len(evidence.Sources) > 0
	if hasEvidence {
		prompt = question + "\n\n已知结论：\n" + evidence.Answer
	}

	text, err := b.complete(ctx, system, prompt)
	if err != nil {
		if hasEvidence {
			return TaskResult{
				Success:      true,
				ResponseType: analysis.TaskType,
				Data: map[string]any{
					"answer":     evidence.Answer,
					"confidence": evidence.Confidence,
					"sources":    len(evidence.Sources),
				},
			}, nil
		}
		return TaskResult{
			ResponseType:     analysis.TaskType,
			FallbackResponse: "当前无法访问知识库与模型，请稍后再试。",
		}, err
	}

	data := map[string]any{"answer": text}
	if hasEvidence {
		data["sources"] = len(evidence.Sources)
	}
	return TaskResult{Success: true, ResponseType: analysis.TaskType, Data: data}, nil
}

// buildResponse is the shared respond shape: a low-confidence fallback for
// failed tasks, the answer plus follow-ups otherwise.
func (b *BaseAgent) buildResponse(result TaskResult, collab *CollaborationResult, fallback string, suggestions, next []string) Response {
	meta := map[string]any{
		"agent_id":      b.id,
		"response_type": result.ResponseType,
	}
	if !result.Success {
		content := result.FallbackResponse
		if content == "" {
			content = fallback
		}
		if result.Err != "" {
			meta["error"] = result.Err
		}
		return Response{Content: content, Confidence: 0.2, Metadata: meta}
	}

	content, _ := result.Data["answer"].(string)
	resp := Response{
		Content:     content,
		Confidence:  0.8,
		Suggestions: suggestions,
		NextActions: next,
		Metadata:    meta,
	}
	if c, ok := result.Data["confidence"].(float64); ok && c > 0 {
		resp.Confidence = c
	}
	appendCollabNotes(&resp, collab)
	return resp
}

// Collaborate fans the message out to the analysis' required agents,
// excluding the agent itself. Peer failures mark the result degraded but
// never fail the caller.
func (b *BaseAgent) Collaborate(ctx context.Context, msg Message, analysis Analysis) *CollaborationResult {
	if b.svc.Communicator == nil {
		return nil
	}
	peers := make([]string, 0, len(analysis.RequiredAgents))
	for _, id := range analysis.RequiredAgents {
		if id != b.id {
			peers = append(peers, id)
		}
	}
	if len(peers) == 0 {
		return nil
	}

	res := &CollaborationResult{}
	switch analysis.CollaborationType {
	case CollabParallel:
		responses := make([]PeerResponse, len(peers))
		g, gctx := errgroup.WithContext(ctx)
		for i, id := range peers {
			g.Go(func() error {
				sub := collaborationMessage(b.id, msg.Content, analysis)
				r, err := b.svc.Communicator.Dispatch(gctx, id, sub)
				responses[i] = PeerResponse{AgentID: id, Response: r, Err: err}
				return nil
			})
		}
		_ = g.Wait()
		res.Responses = responses
	default:
		content := msg.Content
		for _, id := range peers {
			sub := collaborationMessage(b.id, content, analysis)
			r, err := b.svc.Communicator.Dispatch(ctx, id, sub)
			res.Responses = append(res.Responses, PeerResponse{AgentID: id, Response: r, Err: err})
			if err == nil && r.Content != "" {
				content = msg.Content + "\n\n参考" + id + "的结论：\n" + r.Content
			}
		}
	}

	for _, pr := range res.Responses {
		if pr.Err != nil {
			res.Degraded = true
			slog.Warn("Peer collaboration failed",
				"agent", b.id, "peer", pr.AgentID, "error", pr.Err)
		}
	}
	return res
}

// collaborationMessage derives the sub-request sent to a peer.
func collaborationMessage(senderID, content string, analysis Analysis) Message {
	return Message{
		Type:     TypeCollaboration,
		SenderID: senderID,
		Content:  content,
		Metadata: map[string]any{"task_type": analysis.TaskType},
	}
}

// appendCollabNotes folds peer contributions into a response. A degraded
// collaboration caps confidence and annotates the content.
func appendCollabNotes(resp *Response, collab *CollaborationResult) {
	if collab == nil {
		return
	}
	var parts []string
	for _, pr := range collab.Responses {
		if pr.Err != nil || pr.Response.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("来自%s的补充：\n%s", pr.AgentID, pr.Response.Content))
	}
	if len(parts) > 0 {
		resp.Content = strings.TrimSpace(resp.Content + "\n\n" + strings.Join(parts, "\n\n"))
	}
	if collab.Degraded {
		resp.Content = strings.TrimSpace(resp.Content + "\n\n（部分协作智能体未响应，以上结论可能不完整。）")
		if resp.Confidence > 0.5 {
			resp.Confidence = 0.5
		}
		if resp.Metadata == nil {
			resp.Metadata = map[string]any{}
		}
		resp.Metadata["collaboration_degraded"] = true
	}
}

// HandleMessage drives one full lifecycle pass: analyze, collaborate when
// the analysis asks for it, execute, respond. Execute errors and panics are
// converted to a low-confidence response; they never reach the caller.
func HandleMessage(ctx context.Context, a Agent, msg Message) (resp Response) {
	start := time.Now()

	tracer := observability.Tracer("herald.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentTask,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentType, a.ID()),
		))
	defer span.End()

	var taskErr error
	defer func() {
		if r := recover(); r != nil {
			taskErr = fmt.Errorf("agent panic: %v", r)
			slog.Error("Agent task panicked", "agent", a.ID(), "panic", r)
			span.RecordError(taskErr)
			span.SetStatus(codes.Error, taskErr.Error())
			resp = panicResponse(a, r)
		}
		observability.GlobalRecorder().RecordAgentTask(ctx, a.ID(), time.Since(start), taskErr)
	}()

	analysis := a.Analyze(ctx, msg)
	span.SetAttributes(attribute.String("agent.task_type", analysis.TaskType))

	// Collaboration requests never fan out again.
	var collab *CollaborationResult
	if analysis.NeedsCollaboration && msg.Type != TypeCollaboration {
		collab = a.Collaborate(ctx, msg, analysis)
	}

	result, err := a.Execute(ctx, msg, analysis)
	if err != nil {
		taskErr = err
		slog.Warn("Agent execute failed, responding with fallback",
			"agent", a.ID(), "task_type", analysis.TaskType, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = TaskResult{
			ResponseType:     analysis.TaskType,
			Err:              err.Error(),
			FallbackResponse: result.FallbackResponse,
		}
	} else {
		span.SetStatus(codes.Ok, "success")
	}

	return a.Respond(ctx, result, collab)
}

// panicResponse is the last-resort reply when the lifecycle itself broke.
func panicResponse(a Agent, cause any) Response {
	return Response{
		Content:    a.Name() + "暂时无法处理该请求，请稍后重试。",
		Confidence: 0.1,
		Metadata: map[string]any{
			"agent_id": a.ID(),
			"error":    fmt.Sprintf("%v", cause),
		},
	}
}
