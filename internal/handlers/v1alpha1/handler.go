package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/kubev2v/document-review/api/v1alpha1"
	"github.com/kubev2v/document-review/internal/handlers/validator"
	"github.com/kubev2v/document-review/internal/service"
	"github.com/kubev2v/document-review/pkg/requestid"
)

type ServiceHandler struct {
	reviewSrv    *service.ReviewService
	checklistSrv *service.ChecklistService
	validator    *validator.Validator
}

func NewServiceHandler(reviewService *service.ReviewService, checklistService *service.ChecklistService) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewReviewJobValidationRules()...)

	return &ServiceHandler{
		reviewSrv:    reviewService,
		checklistSrv: checklistService,
		validator:    v,
	}
}

// Routes mounts the v1 API on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/review-jobs", func(r chi.Router) {
			r.Get("/", h.ListReviewJobs)
			r.Post("/", h.SubmitReviewJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetReviewJob)
				r.Delete("/", h.DeleteReviewJob)
				r.Get("/results", h.ListReviewResults)
				r.Put("/results/{resultId}", h.OverrideReviewResult)
				r.Get("/export", h.ExportReviewJob)
			})
		})
		r.Route("/checklist-sets", func(r chi.Router) {
			r.Post("/", h.CreateChecklistSet)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetChecklistSet)
				r.Delete("/", h.DeleteChecklistSet)
				r.Get("/items", h.ListChecklistItems)
				r.Post("/items", h.CreateChecklistItem)
				r.Delete("/items/{itemId}", h.DeleteChecklistItem)
				r.Post("/ambiguity-review", h.RunAmbiguityReview)
				r.Post("/feedback-summaries", h.RunFeedbackSummaries)
			})
		})
	})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func requestIDPtr(r *http.Request) *string {
	id := requestid.FromRequest(r)
	if id == "" {
		return nil
	}
	return &id
}

func respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respond(w, r, status, api.Error{Message: message, RequestId: requestIDPtr(r)})
}

// respondServiceError maps the service error types onto status codes.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch err.(type) {
	case *service.ErrValidation:
		return http.StatusBadRequest
	case *service.ErrResourceNotFound:
		return http.StatusNotFound
	case *service.ErrForbidden:
		return http.StatusForbidden
	case *service.ErrQueueLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
