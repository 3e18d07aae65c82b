package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/store/model"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func apply(tx *gorm.DB, fns []func(tx *gorm.DB) *gorm.DB) *gorm.DB {
	for _, fn := range fns {
		tx = fn(tx)
	}
	return tx
}

type ChecklistItemQueryFilter BaseQuerier

func NewChecklistItemQueryFilter() *ChecklistItemQueryFilter {
	return &ChecklistItemQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *ChecklistItemQueryFilter) BySetID(setID uuid.UUID) *ChecklistItemQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("check_list_set_id = ?", setID)
	})
	return f
}

// ByParentID restricts to the children of parentID, or to the roots when nil.
func (f *ChecklistItemQueryFilter) ByParentID(parentID *uuid.UUID) *ChecklistItemQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if parentID == nil {
			return tx.Where("parent_id IS NULL")
		}
		return tx.Where("parent_id = ?", *parentID)
	})
	return f
}

func (f *ChecklistItemQueryFilter) ByIDs(ids []uuid.UUID) *ChecklistItemQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return f
}

type ReviewJobQueryFilter BaseQuerier

func NewReviewJobQueryFilter() *ReviewJobQueryFilter {
	return &ReviewJobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *ReviewJobQueryFilter) ByUserID(userID string) *ReviewJobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID)
	})
	return f
}

func (f *ReviewJobQueryFilter) BySetID(setID uuid.UUID) *ReviewJobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("check_list_set_id = ?", setID)
	})
	return f
}

func (f *ReviewJobQueryFilter) ByStatus(statuses ...model.JobStatus) *ReviewJobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return f
}

type ReviewResultQueryFilter BaseQuerier

func NewReviewResultQueryFilter() *ReviewResultQueryFilter {
	return &ReviewResultQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (f *ReviewResultQueryFilter) ByJobID(jobID uuid.UUID) *ReviewResultQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("review_job_id = ?", jobID)
	})
	return f
}

func (f *ReviewResultQueryFilter) ByCheckID(checkID uuid.UUID) *ReviewResultQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("check_id = ?", checkID)
	})
	return f
}

func (f *ReviewResultQueryFilter) ByStatus(statuses ...model.ResultStatus) *ReviewResultQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return f
}

// WithUserFeedback keeps results a user overrode and commented on.
func (f *ReviewResultQueryFilter) WithUserFeedback() *ReviewResultQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_override = ? AND user_comment IS NOT NULL AND user_comment <> ''", true)
	})
	return f
}

func (f *ReviewResultQueryFilter) UpdatedAfter(t time.Time) *ReviewResultQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("updated_at > ?", t)
	})
	return f
}
