package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type NextActionStatus string

const (
	NextActionStatusPending    NextActionStatus = "PENDING"
	NextActionStatusProcessing NextActionStatus = "PROCESSING"
	NextActionStatusCompleted  NextActionStatus = "COMPLETED"
	NextActionStatusFailed     NextActionStatus = "FAILED"
	NextActionStatusSkipped    NextActionStatus = "SKIPPED"
)

type ResultStatus string

const (
	ResultStatusPending    ResultStatus = "PENDING"
	ResultStatusProcessing ResultStatus = "PROCESSING"
	ResultStatusCompleted  ResultStatus = "COMPLETED"
	ResultStatusFailed     ResultStatus = "FAILED"
)

const (
	JudgmentPass = "pass"
	JudgmentFail = "fail"
)

const (
	FileTypePDF   = "pdf"
	FileTypeImage = "image"
)

const (
	ReviewTypePDF   = "PDF"
	ReviewTypeImage = "IMAGE"
)

type ReviewJob struct {
	ID                uuid.UUID `gorm:"primaryKey;column:id;type:TEXT;"`
	ChecklistSetID    uuid.UUID `gorm:"column:check_list_set_id;type:TEXT;not null;index"`
	Name              string    `gorm:"not null"`
	Status            JobStatus `gorm:"not null"`
	ErrorDetail       *string
	UserID            string `gorm:"column:user_id;not null;index"`
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCost         float64
	NextAction        *string
	NextActionStatus  *NextActionStatus
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
	CompletedAt       *time.Time
	Documents         []ReviewDocument `gorm:"foreignKey:ReviewJobID;references:ID"`
}

func (ReviewJob) TableName() string {
	return "review_jobs"
}

func (j ReviewJob) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

func (j ReviewJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

type ReviewDocument struct {
	ID          uuid.UUID `gorm:"primaryKey;column:id;type:TEXT;"`
	ReviewJobID uuid.UUID `gorm:"column:review_job_id;type:TEXT;not null;index"`
	Filename    string    `gorm:"not null"`
	S3Path      string    `gorm:"column:s3_path;not null"`
	FileType    string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ReviewDocument) TableName() string {
	return "review_documents"
}

// BoundingBox coordinates are [x1, y1, x2, y2] on a 0-1000 scale.
type BoundingBox struct {
	Label       string    `json:"label"`
	Coordinates []float64 `json:"coordinates"`
}

type SourceReference struct {
	DocumentID  uuid.UUID    `json:"documentId"`
	PageNumber  *int         `json:"pageNumber,omitempty"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}

type ToolExecution struct {
	ToolName string `json:"toolName"`
	Input    string `json:"input"`
	Output   string `json:"output"`
	Status   string `json:"status"`
}

type ReviewResult struct {
	ID               uuid.UUID    `gorm:"primaryKey;column:id;type:TEXT;"`
	ReviewJobID      uuid.UUID    `gorm:"column:review_job_id;type:TEXT;not null;uniqueIndex:review_results_job_check"`
	CheckID          uuid.UUID    `gorm:"column:check_id;type:TEXT;not null;uniqueIndex:review_results_job_check"`
	Status           ResultStatus `gorm:"not null"`
	Result           *string
	ConfidenceScore  *float64
	Explanation      *string
	ShortExplanation *string
	ExtractedText    *string
	ReviewType       *string
	SourceReferences *JSONField[[]SourceReference] `gorm:"column:source_references;type:TEXT"`
	ToolExecutions   *JSONField[[]ToolExecution]   `gorm:"column:tool_executions;type:TEXT"`
	UserOverride     bool
	UserComment      *string
	InputTokens      int64
	OutputTokens     int64
	TotalCost        float64
	ErrorDetail      *string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (ReviewResult) TableName() string {
	return "review_results"
}

type ReviewResultList []ReviewResult
