package temporalx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/queue"
)

// NewClient dials the Temporal frontend at address.
func NewClient(ctx context.Context, address, namespace string) (client.Client, error) {
	if address == "" {
		return nil, errors.New("temporal address is not configured")
	}
	c, err := client.DialContext(ctx, client.Options{
		HostPort:  address,
		Namespace: namespace,
		Logger:    newLogger(zap.S().Named("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", address, namespace, err)
	}
	return c, nil
}

// Executor starts one ReviewJobWorkflow per job. The workflow id is the job
// id so a redelivered message never starts a second execution.
type Executor struct {
	client    client.Client
	taskQueue string
	defaults  ReviewInput
}

var _ queue.Executor = (*Executor)(nil)

func NewExecutor(c client.Client, taskQueue string, maxConcurrency int, retryBase time.Duration, maxAttempts int) *Executor {
	return &Executor{
		client:    c,
		taskQueue: taskQueue,
		defaults: ReviewInput{
			MaxConcurrency:    maxConcurrency,
			RetryBaseInterval: retryBase,
			MaxAttempts:       maxAttempts,
		},
	}
}

func WorkflowID(jobID uuid.UUID) string {
	return "review-job-" + jobID.String()
}

func (e *Executor) Start(ctx context.Context, jobID uuid.UUID) error {
	in := e.defaults
	in.JobID = jobID

	_, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       WorkflowID(jobID),
		TaskQueue:                                e.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, WorkflowName, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return queue.ErrAlreadyStarted
		}
		return err
	}
	return nil
}

// Running counts the open review executions on the task queue.
func (e *Executor) Running(ctx context.Context) (int, error) {
	resp, err := e.client.CountWorkflow(ctx, &workflowservice.CountWorkflowExecutionsRequest{
		Query: fmt.Sprintf("WorkflowType = '%s' AND ExecutionStatus = 'Running' AND TaskQueue = '%s'", WorkflowName, e.taskQueue),
	})
	if err != nil {
		return 0, err
	}
	return int(resp.GetCount()), nil
}
