package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/store/model"
)

type ReviewJob interface {
	List(ctx context.Context, filter *ReviewJobQueryFilter) ([]model.ReviewJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ReviewJob, error)
	Create(ctx context.Context, job model.ReviewJob) (*model.ReviewJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errorDetail *string) error
	Finalize(ctx context.Context, id uuid.UUID, totals JobTotals) error
	UpdateNextAction(ctx context.Context, id uuid.UUID, status model.NextActionStatus, text *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobTotals is the aggregate written on a job when its pipeline completes.
type JobTotals struct {
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

type ReviewJobStore struct {
	db *gorm.DB
}

// Make sure we conform to ReviewJob interface
var _ ReviewJob = (*ReviewJobStore)(nil)

func NewReviewJobStore(db *gorm.DB) ReviewJob {
	return &ReviewJobStore{db: db}
}

func (r *ReviewJobStore) List(ctx context.Context, filter *ReviewJobQueryFilter) ([]model.ReviewJob, error) {
	var jobs []model.ReviewJob
	tx := r.getDB(ctx).Model(&model.ReviewJob{}).Order("created_at DESC").Preload("Documents")
	if filter != nil {
		tx = apply(tx, filter.QueryFn)
	}
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *ReviewJobStore) Get(ctx context.Context, id uuid.UUID) (*model.ReviewJob, error) {
	var job model.ReviewJob
	err := r.getDB(ctx).Preload("Documents", func(db *gorm.DB) *gorm.DB {
		return db.Order("review_documents.created_at, review_documents.id")
	}).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Create inserts the job together with its documents.
func (r *ReviewJobStore) Create(ctx context.Context, job model.ReviewJob) (*model.ReviewJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	for i := range job.Documents {
		if job.Documents[i].ID == uuid.Nil {
			job.Documents[i].ID = uuid.New()
		}
		job.Documents[i].ReviewJobID = job.ID
	}

	if err := r.getDB(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &job, nil
}

func (r *ReviewJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errorDetail *string) error {
	return r.update(ctx, id, map[string]any{
		"status":       status,
		"error_detail": errorDetail,
		"updated_at":   time.Now(),
	})
}

// Finalize overwrites the aggregate counters and marks the job completed.
// Calling it twice with the same totals leaves the row unchanged apart from
// the timestamps.
func (r *ReviewJobStore) Finalize(ctx context.Context, id uuid.UUID, totals JobTotals) error {
	now := time.Now()
	return r.update(ctx, id, map[string]any{
		"status":              model.JobStatusCompleted,
		"error_detail":        nil,
		"total_input_tokens":  totals.InputTokens,
		"total_output_tokens": totals.OutputTokens,
		"total_cost":          totals.Cost,
		"completed_at":        now,
		"updated_at":          now,
	})
}

func (r *ReviewJobStore) UpdateNextAction(ctx context.Context, id uuid.UUID, status model.NextActionStatus, text *string) error {
	return r.update(ctx, id, map[string]any{
		"next_action_status": status,
		"next_action":        text,
		"updated_at":         time.Now(),
	})
}

// Delete removes the job, its documents and its results.
func (r *ReviewJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	return r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("review_job_id = ?", id).Delete(&model.ReviewResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("review_job_id = ?", id).Delete(&model.ReviewDocument{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.ReviewJob{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

func (r *ReviewJobStore) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	result := r.getDB(ctx).Model(&model.ReviewJob{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *ReviewJobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}
