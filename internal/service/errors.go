package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ErrValidation struct {
	error
}

func NewErrValidation(format string, args ...any) *ErrValidation {
	return &ErrValidation{fmt.Errorf(format, args...)}
}

func NewErrPolicyViolations(messages []string) *ErrValidation {
	return &ErrValidation{fmt.Errorf("submission rejected: %s", strings.Join(messages, "; "))}
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "review job")
}

func NewErrChecklistSetNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "checklist set")
}

func NewErrChecklistItemNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "checklist item")
}

func NewErrResultNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "review result")
}

type ErrForbidden struct {
	error
}

func NewErrJobForbidden(jobID uuid.UUID, username string) *ErrForbidden {
	return &ErrForbidden{fmt.Errorf("user %s is not the owner of review job %s", username, jobID)}
}

type ErrApplication struct {
	error
}

func NewErrApplication(format string, args ...any) *ErrApplication {
	return &ErrApplication{fmt.Errorf(format, args...)}
}

// ErrQueueLimited is returned while the review queue is over its admission
// threshold. Callers should retry later.
type ErrQueueLimited struct {
	error
}

func NewErrQueueLimited(depth int64) *ErrQueueLimited {
	return &ErrQueueLimited{fmt.Errorf("review queue is full (%d jobs waiting), retry later", depth)}
}
