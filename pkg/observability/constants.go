package observability

const (
	AttrModelName      = "model.name"
	AttrEndpointID     = "endpoint.id"
	AttrRetrievalMode  = "retrieval.mode"
	AttrToolName       = "tool.name"
	AttrAgentType      = "agent.type"
	AttrWorkflowStage  = "workflow.stage"
	AttrConversationID = "conversation.id"
	AttrErrorType      = "error.type"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrStatusCode     = "http.status_code"

	SpanCompletion    = "router.completion"
	SpanEmbedding     = "router.embedding"
	SpanRetrieval     = "rag.retrieval"
	SpanToolExecution = "tools.execution"
	SpanAgentTask     = "agent.task"
	SpanWorkflowStage = "workflow.stage"
	SpanHTTPRequest   = "http.request"

	DefaultServiceName = "herald"
)
