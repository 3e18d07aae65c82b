package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}

type DocumentCreate struct {
	Filename string `json:"filename" validate:"required,document_name"`
	S3Key    string `json:"s3Key" validate:"required"`
	FileType string `json:"fileType" validate:"required,file_type"`
}

type ReviewJobCreate struct {
	ChecklistSetId uuid.UUID        `json:"checklistSetId" validate:"set_id"`
	Name           string           `json:"name" validate:"required,max=255"`
	Documents      []DocumentCreate `json:"documents" validate:"required,min=1,dive"`
}

type ReviewDocument struct {
	Id       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	FileType string    `json:"fileType"`
}

type ReviewJob struct {
	Id                uuid.UUID        `json:"id"`
	ChecklistSetId    uuid.UUID        `json:"checklistSetId"`
	Name              string           `json:"name"`
	Status            string           `json:"status"`
	ErrorDetail       *string          `json:"errorDetail,omitempty"`
	Documents         []ReviewDocument `json:"documents,omitempty"`
	TotalInputTokens  int64            `json:"totalInputTokens"`
	TotalOutputTokens int64            `json:"totalOutputTokens"`
	TotalCost         float64          `json:"totalCost"`
	NextAction        *string          `json:"nextAction,omitempty"`
	NextActionStatus  *string          `json:"nextActionStatus,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
}

type BoundingBox struct {
	Label       string    `json:"label"`
	Coordinates []float64 `json:"coordinates"`
}

type SourceReference struct {
	DocumentId  uuid.UUID    `json:"documentId"`
	PageNumber  *int         `json:"pageNumber,omitempty"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}

type ReviewResult struct {
	Id               uuid.UUID         `json:"id"`
	CheckId          uuid.UUID         `json:"checkId"`
	Status           string            `json:"status"`
	Result           *string           `json:"result,omitempty"`
	ConfidenceScore  *float64          `json:"confidenceScore,omitempty"`
	Explanation      *string           `json:"explanation,omitempty"`
	ShortExplanation *string           `json:"shortExplanation,omitempty"`
	ExtractedText    *string           `json:"extractedText,omitempty"`
	ReviewType       *string           `json:"reviewType,omitempty"`
	SourceReferences []SourceReference `json:"sourceReferences,omitempty"`
	UserOverride     bool              `json:"userOverride"`
	UserComment      *string           `json:"userComment,omitempty"`
	InputTokens      int64             `json:"inputTokens"`
	OutputTokens     int64             `json:"outputTokens"`
	TotalCost        float64           `json:"totalCost"`
	ErrorDetail      *string           `json:"errorDetail,omitempty"`
}

type ResultOverride struct {
	Result  string  `json:"result" validate:"required,judgment"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

type ChecklistSetCreate struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description,omitempty"`
}

type ChecklistSet struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	IsEditable  bool      `json:"isEditable"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ChecklistItemCreate struct {
	ParentId            *uuid.UUID `json:"parentId,omitempty"`
	Name                string     `json:"name" validate:"required,max=255"`
	Description         string     `json:"description,omitempty"`
	ToolConfigurationId *uuid.UUID `json:"toolConfigurationId,omitempty"`
}

type ChecklistItem struct {
	Id                   uuid.UUID  `json:"id"`
	SetId                uuid.UUID  `json:"setId"`
	ParentId             *uuid.UUID `json:"parentId,omitempty"`
	Name                 string     `json:"name"`
	Description          string     `json:"description,omitempty"`
	HasChildren          bool       `json:"hasChildren"`
	AmbiguitySuggestions []string   `json:"ambiguitySuggestions,omitempty"`
	FeedbackSummary      *string    `json:"feedbackSummary,omitempty"`
}

type AmbiguityReviewSummary struct {
	Candidates int `json:"candidates"`
	Ambiguous  int `json:"ambiguous"`
	Clear      int `json:"clear"`
	Failed     int `json:"failed"`
}

type FeedbackSummaryRun struct {
	Items      int `json:"items"`
	Summarized int `json:"summarized"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}
