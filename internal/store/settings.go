package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kubev2v/document-review/internal/store/model"
)

type ToolConfiguration interface {
	Get(ctx context.Context, id uuid.UUID) (*model.ToolConfiguration, error)
	Create(ctx context.Context, cfg model.ToolConfiguration) (*model.ToolConfiguration, error)
}

type ToolConfigurationStore struct {
	db *gorm.DB
}

// Make sure we conform to ToolConfiguration interface
var _ ToolConfiguration = (*ToolConfigurationStore)(nil)

func NewToolConfigurationStore(db *gorm.DB) ToolConfiguration {
	return &ToolConfigurationStore{db: db}
}

func (t *ToolConfigurationStore) Get(ctx context.Context, id uuid.UUID) (*model.ToolConfiguration, error) {
	var cfg model.ToolConfiguration
	if err := t.getDB(ctx).First(&cfg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (t *ToolConfigurationStore) Create(ctx context.Context, cfg model.ToolConfiguration) (*model.ToolConfiguration, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if err := t.getDB(ctx).Create(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (t *ToolConfigurationStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return t.db.WithContext(ctx)
}

type UserPreference interface {
	Get(ctx context.Context, userID string) (*model.UserPreference, error)
	Upsert(ctx context.Context, pref model.UserPreference) error
}

type UserPreferenceStore struct {
	db *gorm.DB
}

// Make sure we conform to UserPreference interface
var _ UserPreference = (*UserPreferenceStore)(nil)

func NewUserPreferenceStore(db *gorm.DB) UserPreference {
	return &UserPreferenceStore{db: db}
}

func (u *UserPreferenceStore) Get(ctx context.Context, userID string) (*model.UserPreference, error) {
	var pref model.UserPreference
	if err := u.getDB(ctx).First(&pref, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &pref, nil
}

func (u *UserPreferenceStore) Upsert(ctx context.Context, pref model.UserPreference) error {
	return u.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"language"}),
	}).Create(&pref).Error
}

func (u *UserPreferenceStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return u.db.WithContext(ctx)
}
