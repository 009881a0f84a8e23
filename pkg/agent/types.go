package agent

import "time"

// Message type markers. Collaboration messages are derived by the runtime
// when an agent fans out to peers; they never fan out again.
const (
	TypeRequest       = "request"
	TypeCollaboration = "collaboration"
)

// Message is the request envelope passed between callers and agents.
type Message struct {
	Type     string         `json:"type"`
	SenderID string         `json:"sender_id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is the formatted outcome of one agent task.
type Response struct {
	Content     string         `json:"content"`
	Confidence  float64        `json:"confidence"`
	Suggestions []string       `json:"suggestions,omitempty"`
	NextActions []string       `json:"next_actions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CollaborationType selects how peer agents are driven.
type CollaborationType string

const (
	// CollabSequential threads each peer's answer into the next request.
	CollabSequential CollaborationType = "sequential"
	// CollabParallel fans out to all peers at once.
	CollabParallel CollaborationType = "parallel"
)

// Analysis is the deterministic classification of a message: the task type,
// whether peers should weigh in, and the entities pulled from the text.
type Analysis struct {
	TaskType           string            `json:"task_type"`
	NeedsCollaboration bool              `json:"needs_collaboration"`
	RequiredAgents     []string          `json:"required_agents,omitempty"`
	CollaborationType  CollaborationType `json:"collaboration_type,omitempty"`
	Entities           map[string]string `json:"entities,omitempty"`
}

// TaskResult is the outcome of Execute. Failures carry a fallback text the
// responder can show instead of propagating the error.
type TaskResult struct {
	Success          bool           `json:"success"`
	ResponseType     string         `json:"response_type"`
	Data             map[string]any `json:"data,omitempty"`
	Err              string         `json:"error,omitempty"`
	FallbackResponse string         `json:"fallback_response,omitempty"`
}

// Capability advertises one operation an agent can perform. Declarative
// only; the runtime does not enforce it.
type Capability struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// PeerResponse is one peer's contribution to a collaboration.
type PeerResponse struct {
	AgentID  string   `json:"agent_id"`
	Response Response `json:"response"`
	Err      error    `json:"-"`
}

// CollaborationResult aggregates peer responses. Degraded is set when at
// least one peer failed; the primary response still goes out.
type CollaborationResult struct {
	Responses []PeerResponse `json:"responses"`
	Degraded  bool           `json:"degraded"`
}

// PotentialCustomer is a raw market lead before qualification.
type PotentialCustomer struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Scale    string `json:"scale"`
	Region   string `json:"region"`
	Source   string `json:"source"`
	Summary  string `json:"summary,omitempty"`
}

// CustomerProfile is a qualified lead: the rubric score plus the talking
// points and risks that motivated it.
type CustomerProfile struct {
	Name       string   `json:"name"`
	Industry   string   `json:"industry"`
	Scale      string   `json:"scale"`
	Region     string   `json:"region"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
	Risks      []string `json:"risks,omitempty"`
	Approach   string   `json:"approach,omitempty"`
}

// ContactStrategy describes how to open a conversation with a customer.
type ContactStrategy struct {
	CustomerName     string `json:"customer_name"`
	PrimaryChannel   string `json:"primary_channel"`
	BackupChannel    string `json:"backup_channel"`
	Message          string `json:"message"`
	ValueProposition string `json:"value_proposition"`
	CallToAction     string `json:"call_to_action"`
	BestTime         string `json:"best_time"`
	Personalization  string `json:"personalization,omitempty"`
}

// VisitPlan structures a first on-site or video meeting.
type VisitPlan struct {
	CustomerName    string   `json:"customer_name"`
	Objectives      []string `json:"objectives"`
	Agenda          []string `json:"agenda"`
	Preparation     []string `json:"preparation"`
	Materials       []string `json:"materials"`
	KeyQuestions    []string `json:"key_questions"`
	SuccessCriteria []string `json:"success_criteria"`
	FollowUps       []string `json:"follow_ups"`
}

// Contact record statuses. ContactSent and ContactFailed are the immediate
// outcomes of an executed plan; the rest arrive later via workflow patches.
const (
	ContactSent      = "sent"
	ContactFailed    = "failed"
	ContactReplied   = "replied"
	ContactScheduled = "scheduled"
	ContactRejected  = "rejected"
)

// ContactRecord is one outreach attempt and its outcome.
type ContactRecord struct {
	CustomerName string    `json:"customer_name"`
	Channel      string    `json:"channel"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	Response     string    `json:"response,omitempty"`
	NextStep     string    `json:"next_step,omitempty"`
	ScheduledAt  string    `json:"scheduled_at,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	ContactedAt  time.Time `json:"contacted_at"`
}
