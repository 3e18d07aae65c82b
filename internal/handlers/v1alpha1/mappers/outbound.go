package mappers

import (
	api "github.com/kubev2v/document-review/api/v1alpha1"
	"github.com/kubev2v/document-review/internal/ambiguity"
	"github.com/kubev2v/document-review/internal/feedback"
	"github.com/kubev2v/document-review/internal/service"
	"github.com/kubev2v/document-review/internal/store/model"
)

func ReviewJobToApi(job model.ReviewJob) api.ReviewJob {
	out := api.ReviewJob{
		Id:                job.ID,
		ChecklistSetId:    job.ChecklistSetID,
		Name:              job.Name,
		Status:            string(job.Status),
		ErrorDetail:       job.ErrorDetail,
		TotalInputTokens:  job.TotalInputTokens,
		TotalOutputTokens: job.TotalOutputTokens,
		TotalCost:         job.TotalCost,
		NextAction:        job.NextAction,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
	}
	if job.NextActionStatus != nil {
		status := string(*job.NextActionStatus)
		out.NextActionStatus = &status
	}
	for _, d := range job.Documents {
		out.Documents = append(out.Documents, api.ReviewDocument{
			Id:       d.ID,
			Filename: d.Filename,
			FileType: d.FileType,
		})
	}
	return out
}

func ReviewJobListToApi(jobs []model.ReviewJob) []api.ReviewJob {
	out := make([]api.ReviewJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, ReviewJobToApi(job))
	}
	return out
}

func ReviewResultToApi(r model.ReviewResult) api.ReviewResult {
	out := api.ReviewResult{
		Id:               r.ID,
		CheckId:          r.CheckID,
		Status:           string(r.Status),
		Result:           r.Result,
		ConfidenceScore:  r.ConfidenceScore,
		Explanation:      r.Explanation,
		ShortExplanation: r.ShortExplanation,
		ExtractedText:    r.ExtractedText,
		ReviewType:       r.ReviewType,
		UserOverride:     r.UserOverride,
		UserComment:      r.UserComment,
		InputTokens:      r.InputTokens,
		OutputTokens:     r.OutputTokens,
		TotalCost:        r.TotalCost,
		ErrorDetail:      r.ErrorDetail,
	}
	if r.SourceReferences != nil {
		for _, ref := range r.SourceReferences.Data {
			apiRef := api.SourceReference{DocumentId: ref.DocumentID, PageNumber: ref.PageNumber}
			if ref.BoundingBox != nil {
				apiRef.BoundingBox = &api.BoundingBox{Label: ref.BoundingBox.Label, Coordinates: ref.BoundingBox.Coordinates}
			}
			out.SourceReferences = append(out.SourceReferences, apiRef)
		}
	}
	return out
}

func ReviewResultListToApi(results model.ReviewResultList) []api.ReviewResult {
	out := make([]api.ReviewResult, 0, len(results))
	for _, r := range results {
		out = append(out, ReviewResultToApi(r))
	}
	return out
}

func ChecklistSetToApi(set model.ChecklistSet) api.ChecklistSet {
	return api.ChecklistSet{
		Id:          set.ID,
		Name:        set.Name,
		Description: set.Description,
		Status:      string(model.DocumentStatusPending),
		IsEditable:  true,
		CreatedAt:   set.CreatedAt,
	}
}

func ChecklistSetViewToApi(view service.ChecklistSetView) api.ChecklistSet {
	out := ChecklistSetToApi(view.ChecklistSet)
	out.Status = string(view.Status)
	out.IsEditable = view.IsEditable
	return out
}

func ChecklistItemToApi(item model.ChecklistItem, hasChildren bool) api.ChecklistItem {
	out := api.ChecklistItem{
		Id:              item.ID,
		SetId:           item.SetID,
		ParentId:        item.ParentID,
		Name:            item.Name,
		Description:     item.Description,
		HasChildren:     hasChildren,
		FeedbackSummary: item.FeedbackSummary,
	}
	if item.AmbiguityReview != nil {
		out.AmbiguitySuggestions = item.AmbiguityReview.Data.Suggestions
	}
	return out
}

func ChecklistItemListToApi(items []model.ChecklistItemNode) []api.ChecklistItem {
	out := make([]api.ChecklistItem, 0, len(items))
	for _, item := range items {
		out = append(out, ChecklistItemToApi(item.ChecklistItem, item.HasChildren))
	}
	return out
}

func AmbiguitySummaryToApi(s ambiguity.Summary) api.AmbiguityReviewSummary {
	return api.AmbiguityReviewSummary{
		Candidates: s.Candidates,
		Ambiguous:  s.Ambiguous,
		Clear:      s.Clear,
		Failed:     s.Failed,
	}
}

func FeedbackRunToApi(s feedback.RunSummary) api.FeedbackSummaryRun {
	return api.FeedbackSummaryRun{
		Items:      s.Items,
		Summarized: s.Summarized,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
	}
}
