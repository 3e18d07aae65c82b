package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	api "github.com/kubev2v/document-review/api/v1alpha1"
	"github.com/kubev2v/document-review/internal/handlers/v1alpha1/mappers"
	"github.com/kubev2v/document-review/pkg/log"
)

// (POST /api/v1/checklist-sets)
func (h *ServiceHandler) CreateChecklistSet(w http.ResponseWriter, r *http.Request) {
	var body api.ChecklistSetCreate
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode body: %v", err))
		return
	}
	if err := h.validator.Struct(body); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	set, err := h.checklistSrv.CreateSet(r.Context(), mappers.ChecklistSetFormApi(body))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, mappers.ChecklistSetToApi(*set))
}

// (GET /api/v1/checklist-sets/{id})
func (h *ServiceHandler) GetChecklistSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}

	view, err := h.checklistSrv.GetSet(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ChecklistSetViewToApi(*view))
}

// (DELETE /api/v1/checklist-sets/{id})
func (h *ServiceHandler) DeleteChecklistSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}

	if err := h.checklistSrv.DeleteSet(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// (GET /api/v1/checklist-sets/{id}/items)
func (h *ServiceHandler) ListChecklistItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}

	items, err := h.checklistSrv.ListItems(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ChecklistItemListToApi(items))
}

// (POST /api/v1/checklist-sets/{id}/items)
func (h *ServiceHandler) CreateChecklistItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}

	var body api.ChecklistItemCreate
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode body: %v", err))
		return
	}
	if err := h.validator.Struct(body); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.checklistSrv.CreateItem(r.Context(), mappers.ChecklistItemFormApi(id, body))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, mappers.ChecklistItemToApi(*item, false))
}

// (DELETE /api/v1/checklist-sets/{id}/items/{itemId})
func (h *ServiceHandler) DeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	setID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}
	itemID, err := pathUUID(r, "itemId")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist item id")
		return
	}

	if err := h.checklistSrv.DeleteItem(r.Context(), setID, itemID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/v1/checklist-sets/{id}/ambiguity-review)
func (h *ServiceHandler) RunAmbiguityReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}
	logger := log.NewDebugLogger("checklist_handler").WithContext(ctx).Operation("run_ambiguity_review").WithUUID("set_id", id).Build()

	summary, err := h.checklistSrv.RunAmbiguityReview(ctx, id)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().WithInt("ambiguous", summary.Ambiguous).Log()
	respond(w, r, http.StatusOK, mappers.AmbiguitySummaryToApi(summary))
}

// (POST /api/v1/checklist-sets/{id}/feedback-summaries)
func (h *ServiceHandler) RunFeedbackSummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid checklist set id")
		return
	}
	logger := log.NewDebugLogger("checklist_handler").WithContext(ctx).Operation("run_feedback_summaries").WithUUID("set_id", id).Build()

	summary, err := h.checklistSrv.RunFeedbackSummaries(ctx, id)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err)
		return
	}

	logger.Success().WithInt("summarized", summary.Summarized).Log()
	respond(w, r, http.StatusOK, mappers.FeedbackRunToApi(summary))
}
