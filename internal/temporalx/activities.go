package temporalx

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/pipeline"
)

const nonRetryableItemError = "ItemEvaluationError"

// Activities wrap the orchestrator stages so a Temporal worker can run them.
type Activities struct {
	Orchestrator *pipeline.Orchestrator
}

func (a *Activities) Prepare(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	return a.Orchestrator.Prepare(ctx, jobID)
}

// GatherItem collects the evaluation input of an item and marks its result
// as PROCESSING.
func (a *Activities) GatherItem(ctx context.Context, jobID, checkID uuid.UUID) (llm.EvaluationInput, error) {
	return a.Orchestrator.Stage().Begin(ctx, jobID, checkID)
}

// EvaluateItem makes one evaluator call and persists the answer. The
// activity retry policy owns the retries and only sees retryable
// infrastructure errors.
func (a *Activities) EvaluateItem(ctx context.Context, jobID, checkID uuid.UUID, in llm.EvaluationInput) error {
	return activityError(a.Orchestrator.Stage().EvaluateOnce(ctx, jobID, checkID, in))
}

func (a *Activities) FailItem(ctx context.Context, jobID, checkID uuid.UUID, detail string) error {
	return a.Orchestrator.Stage().Fail(ctx, jobID, checkID, errors.New(detail))
}

func (a *Activities) Finalize(ctx context.Context, jobID uuid.UUID) error {
	return a.Orchestrator.Finalize(ctx, jobID)
}

func (a *Activities) NextAction(ctx context.Context, jobID uuid.UUID) error {
	a.Orchestrator.NextAction(ctx, jobID)
	return nil
}

func (a *Activities) HandleError(ctx context.Context, jobID uuid.UUID, detail string) error {
	a.Orchestrator.HandleError(ctx, jobID, errors.New(detail))
	return nil
}

func activityError(err error) error {
	if err == nil {
		return nil
	}
	var infra *pipeline.RetryableInfraError
	if errors.As(err, &infra) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), nonRetryableItemError, err)
}
