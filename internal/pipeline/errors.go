package pipeline

import (
	"fmt"

	"github.com/kubev2v/document-review/internal/llm"
)

// RetryableInfraError marks an evaluation failure caused by throttling, quota
// or an unavailable upstream. Only these failures are retried.
type RetryableInfraError struct {
	error
}

func NewRetryableInfraError(err error) *RetryableInfraError {
	return &RetryableInfraError{fmt.Errorf("retryable infrastructure error: %w", err)}
}

func (e *RetryableInfraError) Unwrap() error {
	return e.error
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if llm.IsRetryable(err) {
		return NewRetryableInfraError(err)
	}
	return err
}
