package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kubev2v/document-review/internal/admission"
)

// Message asks the consumer to start the pipeline of one review job.
type Message struct {
	ID     string    `json:"id"`
	JobID  uuid.UUID `json:"jobId"`
	SentAt time.Time `json:"sentAt"`
}

// Delivery is a received message. It stays in the processing list until it
// is acknowledged or its visibility deadline passes.
type Delivery struct {
	Message
	raw string
}

// Client talks to the redis instance backing the review queues.
type Client struct {
	rdb *redis.Client
}

func NewClient(ctx context.Context, addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Queue(name string) *Queue {
	return &Queue{rdb: c.rdb, name: name}
}

// Depth implements admission.DepthProvider.
func (c *Client) Depth(ctx context.Context, queueRef string) (admission.QueueDepth, error) {
	visible, notVisible, err := c.Queue(queueRef).Sample(ctx)
	if err != nil {
		return admission.QueueDepth{}, err
	}
	return admission.QueueDepth{Visible: visible, NotVisible: notVisible}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Queue is a reliable list queue: messages wait in the pending list, move to
// the processing list when received and carry a visibility deadline in a
// sorted set while they are there.
type Queue struct {
	rdb  *redis.Client
	name string
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) pendingKey() string    { return q.name + ":pending" }
func (q *Queue) processingKey() string { return q.name + ":processing" }
func (q *Queue) deadlinesKey() string  { return q.name + ":deadlines" }

func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID) (*Message, error) {
	msg := Message{
		ID:     uuid.NewString(),
		JobID:  jobID,
		SentAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := q.rdb.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Receive moves up to max messages to the processing list, oldest first,
// and hides them for the visibility window. Expired deliveries are returned
// to the pending list beforehand.
func (q *Queue) Receive(ctx context.Context, max int, visibility time.Duration) ([]Delivery, error) {
	if _, err := q.RequeueExpired(ctx); err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, max)
	for i := 0; i < max; i++ {
		raw, err := q.rdb.RPopLPush(ctx, q.pendingKey(), q.processingKey()).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return deliveries, err
		}

		deadline := time.Now().Add(visibility)
		if err := q.rdb.ZAdd(ctx, q.deadlinesKey(), redis.Z{Score: score(deadline), Member: raw}).Err(); err != nil {
			return deliveries, err
		}

		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			// unreadable payloads would loop forever
			_ = q.drop(ctx, raw)
			continue
		}
		deliveries = append(deliveries, Delivery{Message: msg, raw: raw})
	}
	return deliveries, nil
}

// Ack removes a delivery for good.
func (q *Queue) Ack(ctx context.Context, d Delivery) error {
	return q.drop(ctx, d.raw)
}

// ChangeVisibility keeps a delivery hidden for another d before it becomes
// receivable again.
func (q *Queue) ChangeVisibility(ctx context.Context, d Delivery, visibility time.Duration) error {
	return q.rdb.ZAdd(ctx, q.deadlinesKey(), redis.Z{Score: score(time.Now().Add(visibility)), Member: d.raw}).Err()
}

// RequeueExpired puts deliveries whose deadline passed back at the head of
// the pending list.
func (q *Queue) RequeueExpired(ctx context.Context) (int, error) {
	expired, err := q.rdb.ZRangeByScore(ctx, q.deadlinesKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, raw := range expired {
		removed, err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Result()
		if err != nil {
			return requeued, err
		}
		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, q.deadlinesKey(), raw)
			if removed > 0 {
				pipe.RPush(ctx, q.pendingKey(), raw)
			}
			return nil
		})
		if err != nil {
			return requeued, err
		}
		if removed > 0 {
			requeued++
		}
	}
	return requeued, nil
}

// Sample implements metrics.DepthSampler.
func (q *Queue) Sample(ctx context.Context) (int64, int64, error) {
	var pending, processing *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, q.pendingKey())
		processing = pipe.LLen(ctx, q.processingKey())
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return pending.Val(), processing.Val(), nil
}

func (q *Queue) drop(ctx context.Context, raw string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		pipe.ZRem(ctx, q.deadlinesKey(), raw)
		return nil
	})
	return err
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
