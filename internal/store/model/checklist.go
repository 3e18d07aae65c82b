package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "PENDING"
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusDetecting  DocumentStatus = "DETECTING"
	DocumentStatusCompleted  DocumentStatus = "COMPLETED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

type ChecklistSet struct {
	ID          uuid.UUID `gorm:"primaryKey;column:id;type:TEXT;"`
	Name        string    `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
}

func (ChecklistSet) TableName() string {
	return "checklist_sets"
}

func (s ChecklistSet) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}

// AmbiguityReview holds the suggestions produced the last time an item was
// flagged as ambiguous.
type AmbiguityReview struct {
	Suggestions []string  `json:"suggestions"`
	DetectedAt  time.Time `json:"detectedAt"`
}

type ChecklistItem struct {
	ID                       uuid.UUID  `gorm:"primaryKey;column:id;type:TEXT;"`
	SetID                    uuid.UUID  `gorm:"column:check_list_set_id;type:TEXT;not null;index"`
	ParentID                 *uuid.UUID `gorm:"column:parent_id;type:TEXT;index"`
	Name                     string     `gorm:"not null"`
	Description              string
	AmbiguityReview          *JSONField[AmbiguityReview] `gorm:"column:ambiguity_review;type:TEXT"`
	ToolConfigurationID      *uuid.UUID                  `gorm:"column:tool_configuration_id;type:TEXT"`
	FeedbackSummary          *string
	FeedbackSummaryUpdatedAt *time.Time
	CreatedAt                time.Time `gorm:"not null"`
}

func (ChecklistItem) TableName() string {
	return "checklist_items"
}

type ChecklistItemList []ChecklistItem

// ChecklistItemNode is an item plus its derived child flag.
type ChecklistItemNode struct {
	ChecklistItem
	HasChildren bool
}

type ChecklistDocument struct {
	ID          uuid.UUID      `gorm:"primaryKey;column:id;type:TEXT;"`
	SetID       uuid.UUID      `gorm:"column:check_list_set_id;type:TEXT;not null;index"`
	Filename    string         `gorm:"not null"`
	S3Key       string         `gorm:"column:s3_key;not null"`
	FileType    string         `gorm:"not null"`
	Status      DocumentStatus `gorm:"not null"`
	ErrorDetail *string
	CreatedAt   time.Time `gorm:"not null"`
}

func (ChecklistDocument) TableName() string {
	return "checklist_documents"
}

type KnowledgeBase struct {
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	Description     string `json:"description"`
}

type ToolConfiguration struct {
	ID              uuid.UUID                   `gorm:"primaryKey;column:id;type:TEXT;"`
	Name            string                      `gorm:"not null"`
	KnowledgeBase   *JSONField[[]KnowledgeBase] `gorm:"column:knowledge_base;type:TEXT"`
	CodeInterpreter bool
	McpConfig       *JSONField[map[string]any] `gorm:"column:mcp_config;type:TEXT"`
	CreatedAt       time.Time                  `gorm:"not null"`
}

func (ToolConfiguration) TableName() string {
	return "tool_configurations"
}

type UserPreference struct {
	UserID   string `gorm:"primaryKey;column:user_id;type:TEXT"`
	Language string `gorm:"not null"`
}

func (UserPreference) TableName() string {
	return "user_preferences"
}
