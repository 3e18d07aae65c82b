package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kubev2v/document-review/internal/store/model"
)

type ReviewResult interface {
	List(ctx context.Context, filter *ReviewResultQueryFilter) (model.ReviewResultList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ReviewResult, error)
	GetByJobAndCheck(ctx context.Context, jobID, checkID uuid.UUID) (*model.ReviewResult, error)
	CreatePlaceholders(ctx context.Context, jobID uuid.UUID, checkIDs []uuid.UUID) (int64, error)
	MarkProcessing(ctx context.Context, jobID, checkID uuid.UUID) error
	SaveEvaluation(ctx context.Context, jobID, checkID uuid.UUID, result model.ReviewResult) error
	SaveRollup(ctx context.Context, jobID, checkID uuid.UUID, status model.ResultStatus, judgment *string) error
	MarkFailed(ctx context.Context, jobID, checkID uuid.UUID, errorDetail string) error
	Override(ctx context.Context, id uuid.UUID, judgment string, comment *string) (*model.ReviewResult, error)
	ListFeedback(ctx context.Context, checkID uuid.UUID) (model.ReviewResultList, error)
}

// evaluationColumns are the columns a single evaluation owns. Writing them in
// one statement makes a re-run replace the previous outcome entirely.
var evaluationColumns = []string{
	"status",
	"result",
	"confidence_score",
	"explanation",
	"short_explanation",
	"extracted_text",
	"review_type",
	"source_references",
	"tool_executions",
	"input_tokens",
	"output_tokens",
	"total_cost",
	"error_detail",
	"updated_at",
}

type ReviewResultStore struct {
	db *gorm.DB
}

// Make sure we conform to ReviewResult interface
var _ ReviewResult = (*ReviewResultStore)(nil)

func NewReviewResultStore(db *gorm.DB) ReviewResult {
	return &ReviewResultStore{db: db}
}

func (r *ReviewResultStore) List(ctx context.Context, filter *ReviewResultQueryFilter) (model.ReviewResultList, error) {
	var results model.ReviewResultList
	tx := r.getDB(ctx).Model(&model.ReviewResult{}).Order("created_at, id")
	if filter != nil {
		tx = apply(tx, filter.QueryFn)
	}
	if err := tx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ReviewResultStore) Get(ctx context.Context, id uuid.UUID) (*model.ReviewResult, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *ReviewResultStore) GetByJobAndCheck(ctx context.Context, jobID, checkID uuid.UUID) (*model.ReviewResult, error) {
	return r.first(ctx, "review_job_id = ? AND check_id = ?", jobID, checkID)
}

// CreatePlaceholders inserts a PENDING result for each check that has none yet
// and returns how many rows were added.
func (r *ReviewResultStore) CreatePlaceholders(ctx context.Context, jobID uuid.UUID, checkIDs []uuid.UUID) (int64, error) {
	if len(checkIDs) == 0 {
		return 0, nil
	}

	now := time.Now()
	rows := make([]model.ReviewResult, 0, len(checkIDs))
	for _, checkID := range checkIDs {
		rows = append(rows, model.ReviewResult{
			ID:          uuid.New(),
			ReviewJobID: jobID,
			CheckID:     checkID,
			Status:      model.ResultStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	result := r.getDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *ReviewResultStore) MarkProcessing(ctx context.Context, jobID, checkID uuid.UUID) error {
	return r.update(ctx, jobID, checkID, map[string]any{
		"status":     model.ResultStatusProcessing,
		"updated_at": time.Now(),
	})
}

func (r *ReviewResultStore) SaveEvaluation(ctx context.Context, jobID, checkID uuid.UUID, result model.ReviewResult) error {
	result.UpdatedAt = time.Now()
	tx := r.getDB(ctx).Model(&model.ReviewResult{}).
		Where("review_job_id = ? AND check_id = ?", jobID, checkID).
		Select(evaluationColumns).
		Updates(&result)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveRollup writes the status derived for a parent item from its children.
func (r *ReviewResultStore) SaveRollup(ctx context.Context, jobID, checkID uuid.UUID, status model.ResultStatus, judgment *string) error {
	return r.update(ctx, jobID, checkID, map[string]any{
		"status":     status,
		"result":     judgment,
		"updated_at": time.Now(),
	})
}

func (r *ReviewResultStore) MarkFailed(ctx context.Context, jobID, checkID uuid.UUID, errorDetail string) error {
	return r.update(ctx, jobID, checkID, map[string]any{
		"status":       model.ResultStatusFailed,
		"error_detail": errorDetail,
		"updated_at":   time.Now(),
	})
}

// Override records a user's judgment on top of the AI result.
func (r *ReviewResultStore) Override(ctx context.Context, id uuid.UUID, judgment string, comment *string) (*model.ReviewResult, error) {
	tx := r.getDB(ctx).Model(&model.ReviewResult{}).Where("id = ?", id).Updates(map[string]any{
		"result":        judgment,
		"user_override": true,
		"user_comment":  comment,
		"updated_at":    time.Now(),
	})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return r.Get(ctx, id)
}

// ListFeedback returns the commented overrides of a check, newest first.
func (r *ReviewResultStore) ListFeedback(ctx context.Context, checkID uuid.UUID) (model.ReviewResultList, error) {
	var results model.ReviewResultList
	tx := r.getDB(ctx).Model(&model.ReviewResult{}).Order("updated_at DESC, id")
	tx = apply(tx, NewReviewResultQueryFilter().ByCheckID(checkID).WithUserFeedback().QueryFn)
	if err := tx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ReviewResultStore) first(ctx context.Context, query string, args ...any) (*model.ReviewResult, error) {
	var result model.ReviewResult
	if err := r.getDB(ctx).Where(query, args...).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *ReviewResultStore) update(ctx context.Context, jobID, checkID uuid.UUID, values map[string]any) error {
	tx := r.getDB(ctx).Model(&model.ReviewResult{}).
		Where("review_job_id = ? AND check_id = ?", jobID, checkID).
		Updates(values)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *ReviewResultStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}
