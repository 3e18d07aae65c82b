package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/kubev2v/document-review/internal/queue"
)

type fakeExecutor struct {
	mu       sync.Mutex
	running  int
	started  []uuid.UUID
	startErr error
}

func (f *fakeExecutor) Start(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, jobID)
	return nil
}

func (f *fakeExecutor) Running(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

type fakeFailures struct {
	failed map[uuid.UUID]string
}

func (f *fakeFailures) FailJob(_ context.Context, jobID uuid.UUID, detail string) error {
	f.failed[jobID] = detail
	return nil
}

var _ = Describe("queue consumer", func() {
	var (
		mr       *miniredis.Miniredis
		client   *queue.Client
		q        *queue.Queue
		executor *fakeExecutor
		failures *fakeFailures
		consumer *queue.Consumer
	)

	BeforeEach(func() {
		mr = miniredis.RunT(GinkgoT())
		client = queue.NewClientFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		q = client.Queue("reviews")
		executor = &fakeExecutor{}
		failures = &fakeFailures{failed: map[uuid.UUID]string{}}
		consumer = queue.NewConsumer(q, executor, failures, queue.ConsumerConfig{
			MaxConcurrency:    2,
			MaxWait:           24 * time.Hour,
			ProcessingTimeout: 20 * time.Minute,
			RetryVisibility:   15 * time.Second,
			PollInterval:      time.Second,
		})
	})

	AfterEach(func() {
		_ = client.Close()
	})

	enqueue := func(n int) []uuid.UUID {
		ids := make([]uuid.UUID, 0, n)
		for i := 0; i < n; i++ {
			id := uuid.New()
			_, err := q.Enqueue(context.TODO(), id)
			Expect(err).To(BeNil())
			ids = append(ids, id)
		}
		return ids
	}

	It("receives no more messages than free slots", func() {
		ids := enqueue(3)
		executor.running = 1

		summary, err := consumer.Tick(context.TODO())
		Expect(err).To(BeNil())
		Expect(summary.Slots).To(Equal(1))
		Expect(summary.Started).To(Equal(1))
		Expect(executor.started).To(Equal(ids[:1]))

		visible, notVisible, err := q.Sample(context.TODO())
		Expect(err).To(BeNil())
		Expect(visible).To(Equal(int64(2)))
		Expect(notVisible).To(Equal(int64(0)))
	})

	It("leaves the queue untouched when all slots are taken", func() {
		enqueue(2)
		executor.running = 2

		summary, err := consumer.Tick(context.TODO())
		Expect(err).To(BeNil())
		Expect(summary.Slots).To(Equal(0))
		Expect(executor.started).To(BeEmpty())

		visible, _, err := q.Sample(context.TODO())
		Expect(err).To(BeNil())
		Expect(visible).To(Equal(int64(2)))
	})

	It("treats an already running execution as started", func() {
		enqueue(1)
		executor.startErr = queue.ErrAlreadyStarted

		summary, err := consumer.Tick(context.TODO())
		Expect(err).To(BeNil())
		Expect(summary.Started).To(Equal(1))

		visible, notVisible, err := q.Sample(context.TODO())
		Expect(err).To(BeNil())
		Expect(visible + notVisible).To(Equal(int64(0)))
	})

	It("delays a message whose start failed", func() {
		enqueue(1)
		executor.startErr = errors.New("temporal unavailable")

		summary, err := consumer.Tick(context.TODO())
		Expect(err).To(BeNil())
		Expect(summary.Retried).To(Equal(1))

		visible, notVisible, err := q.Sample(context.TODO())
		Expect(err).To(BeNil())
		Expect(visible).To(Equal(int64(0)))
		Expect(notVisible).To(Equal(int64(1)))
	})

	It("fails jobs that waited too long", func() {
		jobID := uuid.New()
		raw, err := json.Marshal(queue.Message{ID: "m1", JobID: jobID, SentAt: time.Now().Add(-25 * time.Hour)})
		Expect(err).To(BeNil())
		_, err = mr.Lpush("reviews:pending", string(raw))
		Expect(err).To(BeNil())

		summary, err := consumer.Tick(context.TODO())
		Expect(err).To(BeNil())
		Expect(summary.TimedOut).To(Equal(1))
		Expect(failures.failed).To(HaveKeyWithValue(jobID, queue.QueueTimeoutError))
		Expect(executor.started).To(BeEmpty())
	})
})
