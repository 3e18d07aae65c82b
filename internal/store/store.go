package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Checklist() Checklist
	ReviewJob() ReviewJob
	ReviewResult() ReviewResult
	ToolConfiguration() ToolConfiguration
	UserPreference() UserPreference
	Close() error
}

type DataStore struct {
	db                *gorm.DB
	checklist         Checklist
	reviewJob         ReviewJob
	reviewResult      ReviewResult
	toolConfiguration ToolConfiguration
	userPreference    UserPreference
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:                db,
		checklist:         NewChecklistStore(db),
		reviewJob:         NewReviewJobStore(db),
		reviewResult:      NewReviewResultStore(db),
		toolConfiguration: NewToolConfigurationStore(db),
		userPreference:    NewUserPreferenceStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Checklist() Checklist {
	return s.checklist
}

func (s *DataStore) ReviewJob() ReviewJob {
	return s.reviewJob
}

func (s *DataStore) ReviewResult() ReviewResult {
	return s.reviewResult
}

func (s *DataStore) ToolConfiguration() ToolConfiguration {
	return s.toolConfiguration
}

func (s *DataStore) UserPreference() UserPreference {
	return s.userPreference
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
