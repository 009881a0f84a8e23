package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage names follow the discovery lifecycle. A task's Stage field holds
// the stage most recently completed.
type Stage string

const (
	StageResearch        Stage = "research"
	StageQualification   Stage = "qualification"
	StageContactPlanning Stage = "contactPlanning"
	StageInitialContact  Stage = "initialContact"
	StageFollowUp        Stage = "followUp"
	StageConversion      Stage = "conversion"
)

// Status is the task's coarse state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Results map keys, one per stage artifact.
const (
	KeyPotentialCustomers = "potentialCustomers"
	KeyQualifiedCustomers = "qualifiedCustomers"
	KeyContactPlans       = "contactPlans"
	KeyContactRecords     = "contactRecords"
)

// Progress checkpoints per completed stage.
const (
	progressResearch        = 0.2
	progressQualification   = 0.4
	progressContactPlanning = 0.6
	progressInitialContact  = 0.7
	progressFollowUp        = 0.8
	progressCompleted       = 1.0
)

// Task is one discovery run. Results accumulates stage artifacts under the
// Key* keys; Progress only ever moves forward.
type Task struct {
	ID              string         `json:"task_id"`
	Stage           Stage          `json:"stage"`
	Priority        int            `json:"priority"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	AssignedAgentID string         `json:"assigned_agent_id"`
	DueAt           time.Time      `json:"due_at"`
	Status          Status         `json:"status"`
	Progress        float64        `json:"progress"`
	Results         map[string]any `json:"results"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func newTask(criteria map[string]string, goals []string, timelineDays int) Task {
	now := time.Now()
	return Task{
		ID:              uuid.NewString(),
		Stage:           StageResearch,
		Priority:        1,
		Title:           "客户发现：" + criteriaSummary(criteria),
		Description:     strings.Join(goals, "；"),
		AssignedAgentID: "sales",
		DueAt:           now.AddDate(0, 0, timelineDays),
		Status:          StatusPending,
		Results:         map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func criteriaSummary(criteria map[string]string) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{"industry", "region", "scale"} {
		if v := criteria[key]; v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "全行业"
	}
	return strings.Join(parts, "/")
}

// setProgress moves progress forward, ignoring regressions.
func (t *Task) setProgress(p float64) {
	if p > t.Progress {
		t.Progress = p
	}
	t.UpdatedAt = time.Now()
}

// advance records the stage just completed.
func (t *Task) advance(stage Stage, progress float64) {
	t.Stage = stage
	t.setProgress(progress)
}

// clone copies the task with a fresh Results map. The artifact slices are
// shared; callers treat them as read-only.
func (t Task) clone() Task {
	out := t
	out.Results = make(map[string]any, len(t.Results))
	for k, v := range t.Results {
		out.Results[k] = v
	}
	return out
}

// Kind classifies a workflow failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindBackend    Kind = "backend"
	KindTimeout    Kind = "timeout"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// TaskError carries the task and stage that failed.
type TaskError struct {
	Kind    Kind
	TaskID  string
	Stage   Stage
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	scope := "workflow"
	if e.Stage != "" {
		scope += ":" + string(e.Stage)
	}
	msg := fmt.Sprintf("[%s] %s", scope, e.Message)
	if e.TaskID != "" {
		msg += fmt.Sprintf(" (task: %s)", e.TaskID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

func newTaskError(kind Kind, taskID string, stage Stage, message string, err error) *TaskError {
	return &TaskError{
		Kind:    kind,
		TaskID:  taskID,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// IsKind reports whether err is a TaskError of the given kind.
func IsKind(err error, kind Kind) bool {
	var te *TaskError
	return errors.As(err, &te) && te.Kind == kind
}

// classify maps an agent or context error onto a Kind.
func classify(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindBackend
	}
}
