package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	api "github.com/kubev2v/document-review/api/v1alpha1"
	"github.com/kubev2v/document-review/internal/auth"
	"github.com/kubev2v/document-review/internal/handlers/v1alpha1/mappers"
	"github.com/kubev2v/document-review/pkg/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// (GET /api/v1/review-jobs)
func (h *ServiceHandler) ListReviewJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.reviewSrv.ListJobs(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReviewJobListToApi(jobs))
}

// (POST /api/v1/review-jobs)
func (h *ServiceHandler) SubmitReviewJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("review_job_handler").WithContext(ctx).Operation("submit_review_job").Build()

	user, found := auth.UserFromContext(ctx)
	if !found {
		respondError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body api.ReviewJobCreate
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode body: %v", err))
		return
	}
	if err := h.validator.Struct(body); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.reviewSrv.SubmitJob(ctx, mappers.ReviewJobFormApi(body, user))
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().WithUUID("job_id", job.ID).Log()
	respond(w, r, http.StatusCreated, mappers.ReviewJobToApi(*job))
}

// (GET /api/v1/review-jobs/{id})
func (h *ServiceHandler) GetReviewJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid review job id")
		return
	}

	job, err := h.reviewSrv.GetJobStatus(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReviewJobToApi(*job))
}

// (DELETE /api/v1/review-jobs/{id})
func (h *ServiceHandler) DeleteReviewJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid review job id")
		return
	}
	logger := log.NewDebugLogger("review_job_handler").WithContext(ctx).Operation("delete_review_job").WithUUID("job_id", id).Build()

	if err := h.reviewSrv.DeleteJob(ctx, id); err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().Log()
	w.WriteHeader(http.StatusNoContent)
}

// (GET /api/v1/review-jobs/{id}/results)
func (h *ServiceHandler) ListReviewResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid review job id")
		return
	}

	results, err := h.reviewSrv.ListResults(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReviewResultListToApi(results))
}

// (PUT /api/v1/review-jobs/{id}/results/{resultId})
func (h *ServiceHandler) OverrideReviewResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid review job id")
		return
	}
	resultID, err := pathUUID(r, "resultId")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid review result id")
		return
	}
	logger := log.NewDebugLogger("review_job_handler").
		WithContext(ctx).
		Operation("override_review_result").
		WithUUID("job_id", jobID).
		WithUUID("result_id", resultID).
		Build()

	var body api.ResultOverride
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode body: %v", err))
		return
	}
	if err := h.validator.Struct(body); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.reviewSrv.OverrideResult(ctx, mappers.OverrideFormApi(jobID, resultID, body))
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().WithString("result", body.Result).Log()
	respond(w, r, http.StatusOK, mappers.ReviewResultToApi(*result))
}

// (GET /api/v1/review-jobs/{id}/export)
func (h *ServiceHandler) ExportReviewJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid review job id")
		return
	}

	data, err := h.reviewSrv.Export(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=review-%s.xlsx", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
