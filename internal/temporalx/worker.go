package temporalx

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

func NewWorker(c client.Client, taskQueue string, activities *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(ReviewJobWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(activities)
	return w
}
