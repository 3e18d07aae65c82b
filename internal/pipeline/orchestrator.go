package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
	"github.com/kubev2v/document-review/pkg/metrics"
)

// NextActionGenerator writes the follow up summary of a completed job.
type NextActionGenerator interface {
	Generate(ctx context.Context, jobID uuid.UUID) (string, error)
}

type Orchestrator struct {
	store          store.Store
	stage          *ItemStage
	maxConcurrency int
	nextAction     NextActionGenerator
	log            *zap.SugaredLogger
}

// NewOrchestrator builds an orchestrator. A nil nextAction disables the
// next action step; jobs then record it as skipped.
func NewOrchestrator(s store.Store, stage *ItemStage, maxConcurrency int, nextAction NextActionGenerator) *Orchestrator {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Orchestrator{
		store:          s,
		stage:          stage,
		maxConcurrency: maxConcurrency,
		nextAction:     nextAction,
		log:            zap.S().Named("orchestrator"),
	}
}

func (o *Orchestrator) Stage() *ItemStage {
	return o.stage
}

// Run drives a job through Prepare, FanOut, Finalize and NextAction.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	op := log.NewDebugLogger("orchestrator").
		WithContext(ctx).
		Operation("run_review").
		WithUUID("job_id", jobID).
		Build()

	work, err := o.Prepare(ctx, jobID)
	if err != nil {
		o.fail(ctx, span, jobID, fmt.Errorf("prepare: %w", err))
		return err
	}
	op.Step("prepared").WithInt("items", len(work)).Log()

	if err := o.FanOut(ctx, jobID, work); err != nil {
		o.fail(ctx, span, jobID, fmt.Errorf("fan out: %w", err))
		return err
	}

	if err := o.Finalize(ctx, jobID); err != nil {
		o.fail(ctx, span, jobID, fmt.Errorf("finalize: %w", err))
		return err
	}

	o.NextAction(ctx, jobID)
	op.Success().Log()
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, jobID uuid.UUID, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.HandleError(ctx, jobID, err)
}

// Prepare makes sure every item of the job's checklist has a result row,
// moves the job to PROCESSING and returns the leaf items to evaluate.
func (o *Orchestrator) Prepare(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "pipeline.prepare")
	defer span.End()

	job, err := o.store.ReviewJob().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.Checklist().GetSet(ctx, job.ChecklistSetID); err != nil {
		return nil, err
	}

	items, err := o.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(job.ChecklistSetID))
	if err != nil {
		return nil, err
	}

	all := make([]uuid.UUID, 0, len(items))
	leaves := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		all = append(all, item.ID)
		if !item.HasChildren {
			leaves = append(leaves, item.ID)
		}
	}

	ctx, err = o.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := o.store.ReviewResult().CreatePlaceholders(ctx, jobID, all); err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}
	if err := o.store.ReviewJob().UpdateStatus(ctx, jobID, model.JobStatusProcessing, nil); err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}
	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}

	return leaves, nil
}

// FanOut evaluates the work list with at most maxConcurrency items in
// flight. Item failures are recorded on their results and do not stop the
// others; only a cancelled context fails the fan out.
func (o *Orchestrator) FanOut(ctx context.Context, jobID uuid.UUID, work []uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "pipeline.fan_out", trace.WithAttributes(attribute.Int("items", len(work))))
	defer span.End()

	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)
	for _, checkID := range work {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := o.stage.Run(gctx, jobID, checkID); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	o.log.Debugw("fan out done", "job_id", jobID, "items", len(work), "failed", failed.Load())
	return nil
}

// Finalize rolls parent results up from their children and writes the job
// totals. It overwrites whatever a previous call wrote.
func (o *Orchestrator) Finalize(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "pipeline.finalize")
	defer span.End()

	job, err := o.store.ReviewJob().Get(ctx, jobID)
	if err != nil {
		return err
	}

	items, err := o.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(job.ChecklistSetID))
	if err != nil {
		return err
	}

	results, err := o.store.ReviewResult().List(ctx, store.NewReviewResultQueryFilter().ByJobID(jobID))
	if err != nil {
		return err
	}

	ctx, err = o.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	if err := saveRollups(ctx, o.store, jobID, items, results); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	if err := o.store.ReviewJob().Finalize(ctx, jobID, jobTotals(results)); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	if _, err := store.Commit(ctx); err != nil {
		return err
	}

	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusCompleted))
	return nil
}

// HandleError marks the job FAILED with the error text.
func (o *Orchestrator) HandleError(ctx context.Context, jobID uuid.UUID, cause error) {
	detail := cause.Error()
	if err := o.store.ReviewJob().UpdateStatus(context.WithoutCancel(ctx), jobID, model.JobStatusFailed, &detail); err != nil {
		o.log.Errorw("failed to mark job as failed", "job_id", jobID, "cause", cause, "error", err)
		return
	}
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusFailed))
	o.log.Warnw("review job failed", "job_id", jobID, "error", cause)
}

// FailJob records a job that never ran, for example one that waited too
// long in the queue.
func (o *Orchestrator) FailJob(ctx context.Context, jobID uuid.UUID, detail string) error {
	if err := o.store.ReviewJob().UpdateStatus(ctx, jobID, model.JobStatusFailed, &detail); err != nil {
		return err
	}
	metrics.IncreaseJobsFinishedMetric(string(model.JobStatusFailed))
	return nil
}

// NextAction generates the follow up summary of a completed job. Its
// failure is recorded on the next action status only.
func (o *Orchestrator) NextAction(ctx context.Context, jobID uuid.UUID) {
	jobs := o.store.ReviewJob()

	if o.nextAction == nil {
		if err := jobs.UpdateNextAction(ctx, jobID, model.NextActionStatusSkipped, nil); err != nil {
			o.log.Errorw("failed to skip next action", "job_id", jobID, "error", err)
		}
		return
	}

	ctx, span := tracer.Start(ctx, "pipeline.next_action")
	defer span.End()

	if err := jobs.UpdateNextAction(ctx, jobID, model.NextActionStatusProcessing, nil); err != nil {
		o.log.Errorw("failed to start next action", "job_id", jobID, "error", err)
		return
	}

	text, err := o.nextAction.Generate(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		o.log.Warnw("next action generation failed", "job_id", jobID, "error", err)
		if err := jobs.UpdateNextAction(context.WithoutCancel(ctx), jobID, model.NextActionStatusFailed, nil); err != nil {
			o.log.Errorw("failed to record next action failure", "job_id", jobID, "error", err)
		}
		return
	}

	if err := jobs.UpdateNextAction(ctx, jobID, model.NextActionStatusCompleted, &text); err != nil {
		o.log.Errorw("failed to save next action", "job_id", jobID, "error", err)
	}
}
