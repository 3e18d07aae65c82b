package mappers

import (
	"github.com/google/uuid"

	"github.com/kubev2v/document-review/internal/auth"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/opa"
)

type DocumentForm struct {
	Filename string
	S3Key    string
	FileType string
}

// JobForm is a review job submission.
type JobForm struct {
	SetID     uuid.UUID
	Name      string
	User      auth.User
	Documents []DocumentForm
}

func (f JobForm) ToReviewJob(id uuid.UUID) model.ReviewJob {
	job := model.ReviewJob{
		ID:             id,
		ChecklistSetID: f.SetID,
		Name:           f.Name,
		Status:         model.JobStatusPending,
		UserID:         f.User.Username,
	}
	for _, d := range f.Documents {
		job.Documents = append(job.Documents, model.ReviewDocument{
			ID:          uuid.New(),
			ReviewJobID: id,
			Filename:    d.Filename,
			S3Path:      d.S3Key,
			FileType:    d.FileType,
		})
	}
	return job
}

func (f JobForm) ToSubmission(maxDocuments int) opa.Submission {
	s := opa.Submission{
		Name:      f.Name,
		UserID:    f.User.Username,
		Documents: make([]opa.SubmittedDocument, 0, len(f.Documents)),
		Limits:    opa.Limits{MaxDocuments: maxDocuments},
	}
	for _, d := range f.Documents {
		s.Documents = append(s.Documents, opa.SubmittedDocument{Filename: d.Filename, FileType: d.FileType})
	}
	return s
}

type ChecklistSetForm struct {
	Name        string
	Description string
}

func (f ChecklistSetForm) ToChecklistSet() model.ChecklistSet {
	return model.ChecklistSet{Name: f.Name, Description: f.Description}
}

type ChecklistItemForm struct {
	SetID               uuid.UUID
	ParentID            *uuid.UUID
	Name                string
	Description         string
	ToolConfigurationID *uuid.UUID
}

func (f ChecklistItemForm) ToChecklistItem() model.ChecklistItem {
	return model.ChecklistItem{
		SetID:               f.SetID,
		ParentID:            f.ParentID,
		Name:                f.Name,
		Description:         f.Description,
		ToolConfigurationID: f.ToolConfigurationID,
	}
}

// OverrideForm is a reviewer's correction of one result.
type OverrideForm struct {
	JobID    uuid.UUID
	ResultID uuid.UUID
	Result   string
	Comment  *string
}
