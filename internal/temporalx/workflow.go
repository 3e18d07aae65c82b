package temporalx

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/kubev2v/document-review/internal/llm"
)

const WorkflowName = "ReviewJobWorkflow"

const (
	storeActivityTimeout    = time.Minute
	evaluateActivityTimeout = 15 * time.Minute
)

type ReviewInput struct {
	JobID             uuid.UUID
	MaxConcurrency    int
	RetryBaseInterval time.Duration
	MaxAttempts       int
}

// ReviewJobWorkflow runs the same stages as the in-process orchestrator:
// Prepare, a bounded fan out over the items, Finalize and NextAction.
func ReviewJobWorkflow(ctx workflow.Context, in ReviewInput) error {
	logger := workflow.GetLogger(ctx)

	var a *Activities

	storeOptions := workflow.ActivityOptions{
		StartToCloseTimeout: storeActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	evaluateOptions := workflow.ActivityOptions{
		StartToCloseTimeout: evaluateActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        in.RetryBaseInterval,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        int32(max(in.MaxAttempts, 1)),
			NonRetryableErrorTypes: []string{nonRetryableItemError},
		},
	}
	storeCtx := workflow.WithActivityOptions(ctx, storeOptions)

	handleError := func(stage string, err error) error {
		detail := fmt.Sprintf("%s: %v", stage, err)
		disconnected, _ := workflow.NewDisconnectedContext(storeCtx)
		if herr := workflow.ExecuteActivity(disconnected, a.HandleError, in.JobID, detail).Get(disconnected, nil); herr != nil {
			logger.Error("failed to mark job as failed", "job_id", in.JobID, "error", herr)
		}
		return err
	}

	var work []uuid.UUID
	if err := workflow.ExecuteActivity(storeCtx, a.Prepare, in.JobID).Get(ctx, &work); err != nil {
		return handleError("prepare", err)
	}

	// Each item gathers once, then evaluates under the evaluation retry
	// policy. The buffered channel bounds the items in flight.
	evaluate := func(ctx workflow.Context, checkID uuid.UUID) error {
		var item llm.EvaluationInput
		if err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, storeOptions), a.GatherItem, in.JobID, checkID).Get(ctx, &item); err != nil {
			return err
		}
		return workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, evaluateOptions), a.EvaluateItem, in.JobID, checkID, item).Get(ctx, nil)
	}

	failures := map[uuid.UUID]string{}
	slots := workflow.NewBufferedChannel(ctx, max(in.MaxConcurrency, 1))
	wg := workflow.NewWaitGroup(ctx)
	for _, checkID := range work {
		slots.Send(ctx, struct{}{})
		wg.Add(1)
		workflow.Go(ctx, func(ctx workflow.Context) {
			defer wg.Done()
			defer slots.Receive(ctx, nil)
			if err := evaluate(ctx, checkID); err != nil {
				failures[checkID] = failureDetail(err)
			}
		})
	}
	wg.Wait(ctx)

	if err := ctx.Err(); err != nil {
		return handleError("fan out", err)
	}

	for _, checkID := range work {
		detail, failed := failures[checkID]
		if !failed {
			continue
		}
		if err := workflow.ExecuteActivity(storeCtx, a.FailItem, in.JobID, checkID, detail).Get(ctx, nil); err != nil {
			logger.Error("failed to record item failure", "job_id", in.JobID, "check_id", checkID, "error", err)
		}
	}

	if err := workflow.ExecuteActivity(storeCtx, a.Finalize, in.JobID).Get(ctx, nil); err != nil {
		return handleError("finalize", err)
	}

	if err := workflow.ExecuteActivity(storeCtx, a.NextAction, in.JobID).Get(ctx, nil); err != nil {
		logger.Warn("next action failed", "job_id", in.JobID, "error", err)
	}

	logger.Info("review job finished", "job_id", in.JobID, "items", len(work), "failed", len(failures))
	return nil
}

func failureDetail(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
