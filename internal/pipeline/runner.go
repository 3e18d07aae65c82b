package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/queue"
)

// Runner executes orchestrator runs in background goroutines of the
// current process.
type Runner struct {
	orchestrator *Orchestrator
	base         context.Context
	mu           sync.Mutex
	running      map[uuid.UUID]struct{}
	wg           sync.WaitGroup
	log          *zap.SugaredLogger
}

var _ queue.Executor = (*Runner)(nil)
var _ queue.FailureHandler = (*Runner)(nil)

// NewRunner returns a runner whose executions stop when ctx is done.
func NewRunner(ctx context.Context, orchestrator *Orchestrator) *Runner {
	return &Runner{
		orchestrator: orchestrator,
		base:         ctx,
		running:      map[uuid.UUID]struct{}{},
		log:          zap.S().Named("pipeline_runner"),
	}
}

// Start launches a run for jobID unless one is already in flight.
func (r *Runner) Start(_ context.Context, jobID uuid.UUID) error {
	r.mu.Lock()
	if _, found := r.running[jobID]; found {
		r.mu.Unlock()
		return queue.ErrAlreadyStarted
	}
	r.running[jobID] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, jobID)
			r.mu.Unlock()
		}()

		if err := r.orchestrator.Run(r.base, jobID); err != nil {
			r.log.Warnw("review run ended with error", "job_id", jobID, "error", err)
		}
	}()
	return nil
}

func (r *Runner) Running(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running), nil
}

func (r *Runner) FailJob(ctx context.Context, jobID uuid.UUID, detail string) error {
	return r.orchestrator.FailJob(ctx, jobID, detail)
}

// Wait blocks until every started run has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
