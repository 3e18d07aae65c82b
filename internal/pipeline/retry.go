package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/pkg/metrics"
)

// RetryPolicy bounds the retries of a retryable evaluation. MaxAttempts
// counts the first call; one or less disables retries.
type RetryPolicy struct {
	BaseInterval time.Duration
	MaxAttempts  int
}

const retryMultiplier = 2.0

func DefaultRetryPolicy(base time.Duration) RetryPolicy {
	return RetryPolicy{BaseInterval: base, MaxAttempts: 5}
}

func retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	if policy.MaxAttempts <= 1 {
		return op()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.BaseInterval
	exp.Multiplier = retryMultiplier
	exp.RandomizationFactor = 0

	log := zap.S().Named("pipeline_retry")
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		var infra *RetryableInfraError
		if !errors.As(err, &infra) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.IncreaseEvaluatorRetriesMetric()
			log.Warnw("retrying evaluation", "error", err, "next_attempt_in", next)
		}),
	)
}
