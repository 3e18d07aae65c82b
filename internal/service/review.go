package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/admission"
	"github.com/kubev2v/document-review/internal/auth"
	"github.com/kubev2v/document-review/internal/export"
	"github.com/kubev2v/document-review/internal/pipeline"
	"github.com/kubev2v/document-review/internal/queue"
	"github.com/kubev2v/document-review/internal/service/mappers"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
	"github.com/kubev2v/document-review/pkg/metrics"
	"github.com/kubev2v/document-review/pkg/opa"
)

type Admission interface {
	Check(ctx context.Context) admission.Decision
}

type Enqueuer interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) (*queue.Message, error)
}

type ObjectSizer interface {
	ObjectSize(ctx context.Context, bucket, key string) (int64, error)
}

type SubmissionValidator interface {
	Validate(ctx context.Context, s opa.Submission) ([]opa.Violation, error)
}

// Limits bound what a single submission may carry. Zero disables a limit.
type Limits struct {
	MaxDocuments    int
	MaxDocumentSize int64
	Bucket          string
}

type ReviewService struct {
	store     store.Store
	gate      Admission
	queue     Enqueuer
	objects   ObjectSizer
	validator SubmissionValidator
	limits    Limits
	log       *zap.SugaredLogger
}

// NewReviewService wires the submission path. objects and validator are
// optional.
func NewReviewService(s store.Store, gate Admission, q Enqueuer, objects ObjectSizer, validator SubmissionValidator, limits Limits) *ReviewService {
	return &ReviewService{
		store:     s,
		gate:      gate,
		queue:     q,
		objects:   objects,
		validator: validator,
		limits:    limits,
		log:       zap.S().Named("review_service"),
	}
}

// SubmitJob validates the submission, asks the admission gate, persists the
// job with one placeholder result per checklist item and enqueues it.
func (s *ReviewService) SubmitJob(ctx context.Context, form mappers.JobForm) (*model.ReviewJob, error) {
	tracer := log.NewDebugLogger("review_service").
		WithContext(ctx).
		Operation("submit_job").
		WithUUID("set_id", form.SetID).
		WithString("user", form.User.Username).
		WithInt("documents", len(form.Documents)).
		Build()

	job, err := s.submit(ctx, form)
	if err != nil {
		metrics.IncreaseJobSubmissionsMetric(submissionOutcome(err))
		tracer.Error(err).Log()
		return nil, err
	}

	metrics.IncreaseJobSubmissionsMetric("accepted")
	tracer.Success().WithUUID("job_id", job.ID).Log()
	return job, nil
}

func (s *ReviewService) submit(ctx context.Context, form mappers.JobForm) (*model.ReviewJob, error) {
	if err := s.validate(ctx, form); err != nil {
		return nil, err
	}

	if _, err := s.store.Checklist().GetSet(ctx, form.SetID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrChecklistSetNotFound(form.SetID)
		}
		return nil, err
	}

	if s.gate != nil {
		if decision := s.gate.Check(ctx); decision.Limited {
			return nil, NewErrQueueLimited(decision.Depth)
		}
	}

	items, err := s.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(form.SetID))
	if err != nil {
		return nil, err
	}
	checkIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		checkIDs = append(checkIDs, item.ID)
	}

	job, err := s.create(ctx, form.ToReviewJob(uuid.New()), checkIDs)
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, job.ID); err != nil {
		detail := fmt.Sprintf("failed to enqueue review job: %v", err)
		if uerr := s.store.ReviewJob().UpdateStatus(context.WithoutCancel(ctx), job.ID, model.JobStatusFailed, &detail); uerr != nil {
			s.log.Errorw("failed to mark unqueued job as failed", "job_id", job.ID, "error", uerr)
		}
		return nil, NewErrApplication("failed to enqueue review job %s: %v", job.ID, err)
	}
	return job, nil
}

func (s *ReviewService) create(ctx context.Context, job model.ReviewJob, checkIDs []uuid.UUID) (*model.ReviewJob, error) {
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	created, err := s.store.ReviewJob().Create(ctx, job)
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if _, err := s.store.ReviewResult().CreatePlaceholders(ctx, created.ID, checkIDs); err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *ReviewService) validate(ctx context.Context, form mappers.JobForm) error {
	if s.validator != nil {
		violations, err := s.validator.Validate(ctx, form.ToSubmission(s.limits.MaxDocuments))
		if err != nil {
			return NewErrApplication("failed to evaluate submission policy: %v", err)
		}
		if len(violations) > 0 {
			messages := make([]string, 0, len(violations))
			for _, v := range violations {
				messages = append(messages, v.Message)
			}
			return NewErrPolicyViolations(messages)
		}
	} else if s.limits.MaxDocuments > 0 && len(form.Documents) > s.limits.MaxDocuments {
		return NewErrValidation("at most %d documents can be reviewed at once, got %d", s.limits.MaxDocuments, len(form.Documents))
	}

	if s.objects == nil || s.limits.MaxDocumentSize <= 0 {
		return nil
	}
	for _, d := range form.Documents {
		size, err := s.objects.ObjectSize(ctx, s.limits.Bucket, d.S3Key)
		if err != nil {
			s.log.Warnw("failed to read document size, skipping size check", "key", d.S3Key, "error", err)
			continue
		}
		if size > s.limits.MaxDocumentSize {
			return NewErrValidation("document %s is %d bytes, over the %d bytes limit", d.Filename, size, s.limits.MaxDocumentSize)
		}
	}
	return nil
}

func submissionOutcome(err error) string {
	switch err.(type) {
	case *ErrQueueLimited:
		return "queue_limited"
	case *ErrValidation:
		return "invalid"
	case *ErrResourceNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// ListJobs returns the jobs of the calling user, newest first.
func (s *ReviewService) ListJobs(ctx context.Context) ([]model.ReviewJob, error) {
	filter := store.NewReviewJobQueryFilter()
	if user, found := auth.UserFromContext(ctx); found {
		filter = filter.ByUserID(user.Username)
	}
	return s.store.ReviewJob().List(ctx, filter)
}

func (s *ReviewService) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*model.ReviewJob, error) {
	return s.ownedJob(ctx, jobID)
}

// DeleteJob removes a job with its documents and results. Jobs being
// processed cannot be deleted.
func (s *ReviewService) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.ownedJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusProcessing {
		return NewErrValidation("review job %s is being processed", jobID)
	}

	if err := s.store.ReviewJob().Delete(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(jobID)
		}
		return err
	}
	s.log.Infow("review job deleted", "job_id", jobID)
	return nil
}

func (s *ReviewService) ListResults(ctx context.Context, jobID uuid.UUID) (model.ReviewResultList, error) {
	if _, err := s.ownedJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ReviewResult().List(ctx, store.NewReviewResultQueryFilter().ByJobID(jobID))
}

// OverrideResult records the reviewer's judgment on a completed result.
func (s *ReviewService) OverrideResult(ctx context.Context, form mappers.OverrideForm) (*model.ReviewResult, error) {
	if form.Result != model.JudgmentPass && form.Result != model.JudgmentFail {
		return nil, NewErrValidation("result must be %q or %q, got %q", model.JudgmentPass, model.JudgmentFail, form.Result)
	}
	job, err := s.ownedJob(ctx, form.JobID)
	if err != nil {
		return nil, err
	}

	result, err := s.store.ReviewResult().Get(ctx, form.ResultID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrResultNotFound(form.ResultID)
		}
		return nil, err
	}
	if result.ReviewJobID != form.JobID {
		return nil, NewErrResultNotFound(form.ResultID)
	}
	if result.Status != model.ResultStatusCompleted {
		return nil, NewErrValidation("review result %s is %s, only completed results can be overridden", form.ResultID, result.Status)
	}

	ctx, err = s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ReviewResult().Override(ctx, form.ResultID, form.Result, form.Comment)
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if err := pipeline.RefreshRollups(ctx, s.store, form.JobID, job.ChecklistSetID); err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Infow("review result overridden", "job_id", form.JobID, "result_id", form.ResultID, "result", form.Result)
	return updated, nil
}

// Export renders the results of a job as an XLSX workbook.
func (s *ReviewService) Export(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	job, err := s.ownedJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(job.ChecklistSetID))
	if err != nil {
		return nil, err
	}
	results, err := s.store.ReviewResult().List(ctx, store.NewReviewResultQueryFilter().ByJobID(jobID))
	if err != nil {
		return nil, err
	}
	return export.ResultsXLSX(*job, items, results)
}

// ownedJob loads a job and checks the caller, when known, owns it.
func (s *ReviewService) ownedJob(ctx context.Context, jobID uuid.UUID) (*model.ReviewJob, error) {
	job, err := s.store.ReviewJob().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}

	if user, found := auth.UserFromContext(ctx); found && user.Username != job.UserID {
		return nil, NewErrJobForbidden(jobID, user.Username)
	}
	return job, nil
}
