package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/pkg/metrics"
)

// QueueTimeoutError is the error detail recorded on jobs that waited in the
// queue longer than the configured maximum.
const QueueTimeoutError = "QUEUE_TIMEOUT_ERROR"

// ErrAlreadyStarted is returned by an Executor when the job already has a
// running execution. The consumer treats it as a successful start.
var ErrAlreadyStarted = errors.New("execution already started")

// Executor starts review pipelines and reports how many are running.
type Executor interface {
	Start(ctx context.Context, jobID uuid.UUID) error
	Running(ctx context.Context) (int, error)
}

// FailureHandler records a job as failed without running its pipeline.
type FailureHandler interface {
	FailJob(ctx context.Context, jobID uuid.UUID, detail string) error
}

type ConsumerConfig struct {
	MaxConcurrency    int
	MaxWait           time.Duration
	ProcessingTimeout time.Duration
	RetryVisibility   time.Duration
	PollInterval      time.Duration
}

type TickSummary struct {
	Slots    int
	Started  int
	TimedOut int
	Retried  int
}

type Consumer struct {
	queue    *Queue
	executor Executor
	failures FailureHandler
	cfg      ConsumerConfig
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewConsumer(queue *Queue, executor Executor, failures FailureHandler, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		queue:    queue,
		executor: executor,
		failures: failures,
		cfg:      cfg,
		now:      time.Now,
		log:      zap.S().Named("queue_consumer"),
	}
}

// Run polls the queue until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	ticker := jitterbug.New(c.cfg.PollInterval, &jitterbug.Norm{Stdev: c.cfg.PollInterval / 10, Mean: 0})
	defer ticker.Stop()

	c.log.Infow("review queue consumer started", "queue", c.queue.Name(), "max_concurrency", c.cfg.MaxConcurrency)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("review queue consumer stopped")
			return
		case <-ticker.C:
		}

		summary, err := c.Tick(ctx)
		if err != nil {
			c.log.Errorw("failed to consume review queue", "error", err)
			continue
		}
		if summary.Started+summary.TimedOut+summary.Retried > 0 {
			c.log.Debugw("review queue tick", "slots", summary.Slots, "started", summary.Started,
				"timed_out", summary.TimedOut, "retried", summary.Retried)
		}
	}
}

// Tick receives at most as many messages as there are free execution slots
// and starts a pipeline for each of them.
func (c *Consumer) Tick(ctx context.Context) (TickSummary, error) {
	running, err := c.executor.Running(ctx)
	if err != nil {
		return TickSummary{}, err
	}

	summary := TickSummary{Slots: c.cfg.MaxConcurrency - running}
	if summary.Slots <= 0 {
		return summary, nil
	}

	deliveries, err := c.queue.Receive(ctx, summary.Slots, c.cfg.ProcessingTimeout)
	if err != nil {
		return summary, err
	}

	for _, d := range deliveries {
		switch c.handle(ctx, d) {
		case outcomeStarted:
			summary.Started++
		case outcomeTimedOut:
			summary.TimedOut++
		case outcomeRetried:
			summary.Retried++
		}
	}
	return summary, nil
}

type outcome int

const (
	outcomeStarted outcome = iota
	outcomeTimedOut
	outcomeRetried
)

func (c *Consumer) handle(ctx context.Context, d Delivery) outcome {
	if c.cfg.MaxWait > 0 && c.now().Sub(d.SentAt) > c.cfg.MaxWait {
		if err := c.failures.FailJob(ctx, d.JobID, QueueTimeoutError); err != nil {
			c.log.Errorw("failed to record queue timeout", "job_id", d.JobID, "error", err)
			c.retryLater(ctx, d)
			return outcomeRetried
		}
		c.ack(ctx, d)
		metrics.IncreaseQueueMessagesMetric("timed_out")
		return outcomeTimedOut
	}

	err := c.executor.Start(ctx, d.JobID)
	if err != nil && !errors.Is(err, ErrAlreadyStarted) {
		c.log.Warnw("failed to start review pipeline", "job_id", d.JobID, "error", err)
		c.retryLater(ctx, d)
		return outcomeRetried
	}

	c.ack(ctx, d)
	metrics.IncreaseQueueMessagesMetric("started")
	return outcomeStarted
}

func (c *Consumer) ack(ctx context.Context, d Delivery) {
	if err := c.queue.Ack(ctx, d); err != nil {
		c.log.Errorw("failed to acknowledge message", "message_id", d.ID, "error", err)
	}
}

func (c *Consumer) retryLater(ctx context.Context, d Delivery) {
	metrics.IncreaseQueueMessagesMetric("retried")
	if err := c.queue.ChangeVisibility(ctx, d, c.cfg.RetryVisibility); err != nil {
		c.log.Errorw("failed to delay message", "message_id", d.ID, "error", err)
	}
}
