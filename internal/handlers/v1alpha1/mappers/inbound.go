package mappers

import (
	"github.com/google/uuid"

	api "github.com/kubev2v/document-review/api/v1alpha1"
	"github.com/kubev2v/document-review/internal/auth"
	srvMappers "github.com/kubev2v/document-review/internal/service/mappers"
)

func ReviewJobFormApi(body api.ReviewJobCreate, user auth.User) srvMappers.JobForm {
	form := srvMappers.JobForm{
		SetID: body.ChecklistSetId,
		Name:  body.Name,
		User:  user,
	}
	for _, d := range body.Documents {
		form.Documents = append(form.Documents, srvMappers.DocumentForm{
			Filename: d.Filename,
			S3Key:    d.S3Key,
			FileType: d.FileType,
		})
	}
	return form
}

func OverrideFormApi(jobID, resultID uuid.UUID, body api.ResultOverride) srvMappers.OverrideForm {
	return srvMappers.OverrideForm{
		JobID:    jobID,
		ResultID: resultID,
		Result:   body.Result,
		Comment:  body.Comment,
	}
}

func ChecklistSetFormApi(body api.ChecklistSetCreate) srvMappers.ChecklistSetForm {
	return srvMappers.ChecklistSetForm{Name: body.Name, Description: body.Description}
}

func ChecklistItemFormApi(setID uuid.UUID, body api.ChecklistItemCreate) srvMappers.ChecklistItemForm {
	return srvMappers.ChecklistItemForm{
		SetID:               setID,
		ParentID:            body.ParentId,
		Name:                body.Name,
		Description:         body.Description,
		ToolConfigurationID: body.ToolConfigurationId,
	}
}
