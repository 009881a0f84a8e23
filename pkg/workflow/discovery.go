package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/herald-crm/herald/pkg/agent"
	"github.com/herald-crm/herald/pkg/crm"
)

// Prospector sources potential customers for the research stage.
// *agent.MarketAgent satisfies it.
type Prospector interface {
	ProspectCandidates(ctx context.Context, criteria map[string]string, limit int) []agent.PotentialCustomer
}

// Seller is the sales-agent surface the workflow drives through the later
// stages. *agent.SalesAgent satisfies it.
type Seller interface {
	QualifyCustomer(ctx context.Context, lead agent.PotentialCustomer) agent.CustomerProfile
	BuildContactStrategy(ctx context.Context, profile agent.CustomerProfile) agent.ContactStrategy
	BuildVisitPlan(ctx context.Context, profile agent.CustomerProfile) agent.VisitPlan
	ExecuteContact(ctx context.Context, strategy agent.ContactStrategy) (agent.ContactRecord, error)
}

var (
	_ Prospector = (*agent.MarketAgent)(nil)
	_ Seller     = (*agent.SalesAgent)(nil)
)

const defaultTimelineDays = 30

// taskState pairs a task with the lock serializing its stage execution.
type taskState struct {
	mu   sync.Mutex
	task Task
}

// Engine runs discovery tasks. Tasks are independent and may progress
// concurrently; within one task, stages execute serially under the task
// lock.
type Engine struct {
	market    Prospector
	sales     Seller
	directory crm.Directory

	mu    sync.RWMutex
	tasks map[string]*taskState
}

// NewEngine builds a discovery engine. The directory may be nil, in which
// case contacted customers are not persisted.
func NewEngine(market Prospector, sales Seller, directory crm.Directory) (*Engine, error) {
	if market == nil {
		return nil, fmt.Errorf("workflow: market agent is required")
	}
	if sales == nil {
		return nil, fmt.Errorf("workflow: sales agent is required")
	}
	if directory == nil {
		slog.Warn("Workflow engine has no customer directory, contacts will not persist")
	}
	return &Engine{
		market:    market,
		sales:     sales,
		directory: directory,
		tasks:     make(map[string]*taskState),
	}, nil
}

// Start creates a task and synchronously advances it through research,
// qualification, and contact planning. The returned id addresses the
// externally driven stages that follow. A stage failure marks the task
// failed; the id still returns so the failure can be inspected.
func (e *Engine) Start(ctx context.Context, criteria map[string]string, goals []string, timelineDays int) (string, error) {
	if criteria == nil {
		criteria = map[string]string{}
	}
	if timelineDays <= 0 {
		timelineDays = defaultTimelineDays
	}

	state := &taskState{task: newTask(criteria, goals, timelineDays)}
	e.mu.Lock()
	e.tasks[state.task.ID] = state
	e.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()
	t := &state.task
	t.Status = StatusRunning

	slog.Info("Discovery task started",
		"task", t.ID, "criteria", criteria, "due", t.DueAt.Format(time.DateOnly))

	stages := []struct {
		stage Stage
		fn    func(context.Context, *Task) error
	}{
		{StageResearch, func(ctx context.Context, t *Task) error {
			return e.runResearch(ctx, t, criteria)
		}},
		{StageQualification, e.runQualification},
		{StageContactPlanning, e.runContactPlanning},
	}
	for _, s := range stages {
		if err := e.runStage(ctx, t, s.stage, s.fn); err != nil {
			t.Status = StatusFailed
			t.UpdatedAt = time.Now()
			return t.ID, err
		}
	}
	return t.ID, nil
}

// ExecuteInitialContact runs the planIndex-th contact plan through the
// sales agent and appends exactly one contact record. A sent contact
// creates a customer in the directory.
func (e *Engine) ExecuteInitialContact(ctx context.Context, taskID string, planIndex int) (ContactRecord, error) {
	state, err := e.state(taskID)
	if err != nil {
		return ContactRecord{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	t := &state.task

	var record ContactRecord
	err = e.runStage(ctx, t, StageInitialContact, func(ctx context.Context, t *Task) error {
		if t.Status == StatusCompleted {
			return newTaskError(KindValidation, t.ID, StageInitialContact, "task already completed", nil)
		}
		plans, ok := t.Results[KeyContactPlans].([]ContactPlan)
		if !ok {
			return newTaskError(KindValidation, t.ID, StageInitialContact,
				"contact planning stage has not produced plans", nil)
		}
		if planIndex < 0 || planIndex >= len(plans) {
			return newTaskError(KindValidation, t.ID, StageInitialContact,
				fmt.Sprintf("plan index %d out of range, have %d plans", planIndex, len(plans)), nil)
		}

		plan := plans[planIndex]
		rec, err := e.sales.ExecuteContact(ctx, plan.Strategy)
		if err != nil {
			return newTaskError(classify(err), t.ID, StageInitialContact, "contact execution failed", err)
		}

		records, _ := t.Results[KeyContactRecords].([]ContactRecord)
		t.Results[KeyContactRecords] = append(records, rec)
		t.advance(StageInitialContact, progressInitialContact)

		if rec.Status == agent.ContactSent {
			e.persistCustomer(ctx, t.ID, plan.Customer, rec)
		}
		record = rec
		return nil
	})
	return record, err
}

// UpdateContactResult patches the idx-th contact record from a loose map.
// Unknown fields or statuses are rejected before any mutation.
func (e *Engine) UpdateContactResult(ctx context.Context, taskID string, idx int, raw map[string]any) error {
	state, err := e.state(taskID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	t := &state.task

	return e.runStage(ctx, t, StageFollowUp, func(ctx context.Context, t *Task) error {
		if t.Status == StatusCompleted {
			return newTaskError(KindValidation, t.ID, StageFollowUp, "task already completed", nil)
		}
		records, ok := t.Results[KeyContactRecords].([]ContactRecord)
		if !ok {
			return newTaskError(KindValidation, t.ID, StageFollowUp,
				"no contact has been executed yet", nil)
		}
		if idx < 0 || idx >= len(records) {
			return newTaskError(KindValidation, t.ID, StageFollowUp,
				fmt.Sprintf("record index %d out of range, have %d records", idx, len(records)), nil)
		}
		patch, err := decodeContactPatch(raw)
		if err != nil {
			return newTaskError(KindValidation, t.ID, StageFollowUp, "invalid patch", err)
		}

		patch.apply(&records[idx])
		t.Results[KeyContactRecords] = records
		t.advance(StageFollowUp, progressFollowUp)
		return nil
	})
}

// CompleteTask closes the task: conversion stage, progress 1.0, completed
// status. Completing an already completed task is a no-op.
func (e *Engine) CompleteTask(ctx context.Context, taskID string) error {
	state, err := e.state(taskID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	t := &state.task
	if t.Status == StatusCompleted {
		return nil
	}

	return e.runStage(ctx, t, StageConversion, func(ctx context.Context, t *Task) error {
		t.Status = StatusCompleted
		t.advance(StageConversion, progressCompleted)
		return nil
	})
}

// Task returns a copy of the task. The Results map is copied one level
// deep; artifact slices are shared and read-only.
func (e *Engine) Task(taskID string) (Task, error) {
	state, err := e.state(taskID)
	if err != nil {
		return Task{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.task.clone(), nil
}

// Tasks lists all tasks, oldest first.
func (e *Engine) Tasks() []Task {
	e.mu.RLock()
	states := make([]*taskState, 0, len(e.tasks))
	for _, s := range e.tasks {
		states = append(states, s)
	}
	e.mu.RUnlock()

	out := make([]Task, 0, len(states))
	for _, s := range states {
		s.mu.Lock()
		out = append(out, s.task.clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (e *Engine) state(taskID string) (*taskState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state, ok := e.tasks[taskID]
	if !ok {
		return nil, newTaskError(KindNotFound, taskID, "", "unknown task", nil)
	}
	return state, nil
}

// persistCustomer records a successfully contacted lead in the directory.
// Directory failures log and continue: the outreach already happened.
func (e *Engine) persistCustomer(ctx context.Context, taskID string, profile CustomerProfile, rec ContactRecord) {
	if e.directory == nil {
		return
	}
	customer := &crm.Customer{
		Name:     profile.Name,
		Industry: profile.Industry,
		Scale:    profile.Scale,
		Region:   profile.Region,
		Score:    profile.Score,
		Source:   "discovery_workflow",
		Notes:    []string{fmt.Sprintf("首次触达（%s）：%s", rec.Channel, rec.Message)},
	}
	if err := e.directory.CreateCustomer(ctx, customer); err != nil {
		slog.Warn("Customer creation failed after contact",
			"task", taskID, "customer", profile.Name, "error", err)
		return
	}
	slog.Info("Customer created from discovery contact",
		"task", taskID, "customer", customer.ID, "name", customer.Name)
}
