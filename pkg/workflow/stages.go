package workflow

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/herald-crm/herald/pkg/observability"
)

// Stage limits and the qualification bar.
const (
	// MaxPotentialCustomers caps the research stage output.
	MaxPotentialCustomers = 20
	// MaxContactPlans caps the contact planning stage output.
	MaxContactPlans = 10
	// QualificationThreshold is the score a lead must exceed to stay in.
	QualificationThreshold = 0.6
)

// runStage wraps one stage execution with tracing and the stage-transition
// counter. The stage function mutates the task only on success.
func (e *Engine) runStage(ctx context.Context, t *Task, stage Stage, fn func(context.Context, *Task) error) error {
	tracer := observability.Tracer("herald.workflow")
	ctx, span := tracer.Start(ctx, observability.SpanWorkflowStage,
		trace.WithAttributes(
			attribute.String(observability.AttrWorkflowStage, string(stage)),
			attribute.String("workflow.task_id", t.ID),
		))
	defer span.End()

	observability.GlobalRecorder().RecordStageTransition(ctx, string(stage))

	if err := ctx.Err(); err != nil {
		terr := newTaskError(classify(err), t.ID, stage, "stage aborted", err)
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Error())
		return terr
	}

	if err := fn(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	slog.Info("Workflow stage completed",
		"task", t.ID, "stage", stage, "progress", t.Progress)
	return nil
}

// runResearch emits the candidate list. Research has no precondition.
func (e *Engine) runResearch(ctx context.Context, t *Task, criteria map[string]string) error {
	candidates := e.market.ProspectCandidates(ctx, criteria, MaxPotentialCustomers)
	if len(candidates) > MaxPotentialCustomers {
		candidates = candidates[:MaxPotentialCustomers]
	}
	if err := ctx.Err(); err != nil {
		return newTaskError(classify(err), t.ID, StageResearch, "research aborted", err)
	}
	t.Results[KeyPotentialCustomers] = candidates
	t.advance(StageResearch, progressResearch)
	return nil
}

// runQualification scores every candidate and keeps those above the bar,
// highest score first.
func (e *Engine) runQualification(ctx context.Context, t *Task) error {
	candidates, ok := t.Results[KeyPotentialCustomers].([]PotentialCustomer)
	if !ok {
		return newTaskError(KindValidation, t.ID, StageQualification,
			"research stage has not produced potential customers", nil)
	}

	profiles := make([]CustomerProfile, 0, len(candidates))
	for _, lead := range candidates {
		if err := ctx.Err(); err != nil {
			return newTaskError(classify(err), t.ID, StageQualification, "qualification aborted", err)
		}
		profile := e.sales.QualifyCustomer(ctx, lead)
		if profile.Score > QualificationThreshold {
			profiles = append(profiles, profile)
		}
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Score > profiles[j].Score
	})

	t.Results[KeyQualifiedCustomers] = profiles
	t.advance(StageQualification, progressQualification)
	return nil
}

// runContactPlanning prepares strategy and visit plans for the strongest
// qualified customers.
func (e *Engine) runContactPlanning(ctx context.Context, t *Task) error {
	profiles, ok := t.Results[KeyQualifiedCustomers].([]CustomerProfile)
	if !ok {
		return newTaskError(KindValidation, t.ID, StageContactPlanning,
			"qualification stage has not produced customer profiles", nil)
	}

	count := len(profiles)
	if count > MaxContactPlans {
		count = MaxContactPlans
	}
	plans := make([]ContactPlan, 0, count)
	for _, profile := range profiles[:count] {
		if err := ctx.Err(); err != nil {
			return newTaskError(classify(err), t.ID, StageContactPlanning, "contact planning aborted", err)
		}
		plans = append(plans, ContactPlan{
			Customer: profile,
			Strategy: e.sales.BuildContactStrategy(ctx, profile),
			Visit:    e.sales.BuildVisitPlan(ctx, profile),
		})
	}

	t.Results[KeyContactPlans] = plans
	t.advance(StageContactPlanning, progressContactPlanning)
	return nil
}
