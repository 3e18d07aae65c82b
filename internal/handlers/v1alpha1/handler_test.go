package v1alpha1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/kubev2v/document-review/api/v1alpha1"
	"github.com/kubev2v/document-review/internal/admission"
	"github.com/kubev2v/document-review/internal/auth"
	"github.com/kubev2v/document-review/internal/config"
	handlers "github.com/kubev2v/document-review/internal/handlers/v1alpha1"
	"github.com/kubev2v/document-review/internal/queue"
	"github.com/kubev2v/document-review/internal/service"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/migrations"
	"github.com/kubev2v/document-review/pkg/opa"
)

const testUserHeader = "X-Test-User"

type fakeGate struct {
	limited bool
}

func (f *fakeGate) Check(context.Context) admission.Decision {
	return admission.Decision{Limited: f.limited, Depth: 50}
}

type fakeQueue struct {
	jobs []uuid.UUID
}

func (f *fakeQueue) Enqueue(_ context.Context, jobID uuid.UUID) (*queue.Message, error) {
	f.jobs = append(f.jobs, jobID)
	return &queue.Message{ID: uuid.NewString(), JobID: jobID}, nil
}

// withTestUser authenticates the request as the user named by the test header.
func withTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := r.Header.Get(testUserHeader); name != "" {
			r = r.WithContext(auth.NewUserContext(r.Context(), auth.User{Username: name, Organization: "org"}))
		}
		next.ServeHTTP(w, r)
	})
}

var _ = Describe("review handlers", Ordered, func() {
	var (
		s      store.Store
		gormDB *gorm.DB
		gate   *fakeGate
		q      *fakeQueue
		router chi.Router
	)

	do := func(method, path, user string, body any) *httptest.ResponseRecorder {
		var payload bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&payload).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &payload)
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.Header.Set(testUserHeader, user)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	createSet := func() uuid.UUID {
		rec := do(http.MethodPost, "/api/v1/checklist-sets", "batman", api.ChecklistSetCreate{Name: "contract"})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var set api.ChecklistSet
		Expect(json.Unmarshal(rec.Body.Bytes(), &set)).To(Succeed())
		return set.Id
	}

	createItem := func(setID uuid.UUID, parent *uuid.UUID, name string) api.ChecklistItem {
		rec := do(http.MethodPost, fmt.Sprintf("/api/v1/checklist-sets/%s/items", setID), "batman",
			api.ChecklistItemCreate{ParentId: parent, Name: name})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var item api.ChecklistItem
		Expect(json.Unmarshal(rec.Body.Bytes(), &item)).To(Succeed())
		return item
	}

	jobBody := func(setID uuid.UUID) api.ReviewJobCreate {
		return api.ReviewJobCreate{
			ChecklistSetId: setID,
			Name:           "contract review",
			Documents: []api.DocumentCreate{
				{Filename: "contract.pdf", S3Key: "uploads/contract.pdf", FileType: "pdf"},
			},
		}
	}

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		Expect(migrations.MigrateStore(db, cfg.Database.Type, "")).To(Succeed())
		s = store.NewStore(db)
		gormDB = db
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		gate = &fakeGate{}
		q = &fakeQueue{}
		validator, err := opa.NewValidatorFromDir("")
		Expect(err).To(BeNil())

		reviewSrv := service.NewReviewService(s, gate, q, nil, validator, service.Limits{MaxDocuments: 5})
		checklistSrv := service.NewChecklistService(s, nil, 1, nil)

		r := chi.NewRouter()
		r.Use(withTestUser)
		handlers.NewServiceHandler(reviewSrv, checklistSrv).Routes(r)
		router = r
	})

	AfterEach(func() {
		for _, table := range []string{"review_results", "review_documents", "review_jobs", "checklist_items", "checklist_sets"} {
			Expect(gormDB.Exec("DELETE FROM " + table).Error).To(BeNil())
		}
	})

	Context("submit", func() {
		It("accepts a job", func() {
			setID := createSet()
			createItem(setID, nil, "Signed")

			rec := do(http.MethodPost, "/api/v1/review-jobs", "batman", jobBody(setID))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var job api.ReviewJob
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(Succeed())
			Expect(job.Status).To(Equal(string(model.JobStatusPending)))
			Expect(q.jobs).To(Equal([]uuid.UUID{job.Id}))
		})

		It("answers 429 while the queue is limited", func() {
			setID := createSet()
			gate.limited = true

			rec := do(http.MethodPost, "/api/v1/review-jobs", "batman", jobBody(setID))
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))

			var body api.Error
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Message).To(ContainSubstring("50"))
		})

		It("answers 400 for an unsupported file type", func() {
			setID := createSet()
			form := jobBody(setID)
			form.Documents[0].FileType = "docx"

			rec := do(http.MethodPost, "/api/v1/review-jobs", "batman", form)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("answers 404 for an unknown checklist set", func() {
			rec := do(http.MethodPost, "/api/v1/review-jobs", "batman", jobBody(uuid.New()))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("answers 401 without a user", func() {
			rec := do(http.MethodPost, "/api/v1/review-jobs", "", jobBody(uuid.New()))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("jobs", func() {
		var jobID uuid.UUID

		BeforeEach(func() {
			setID := createSet()
			createItem(setID, nil, "Signed")
			rec := do(http.MethodPost, "/api/v1/review-jobs", "batman", jobBody(setID))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var job api.ReviewJob
			Expect(json.Unmarshal(rec.Body.Bytes(), &job)).To(Succeed())
			jobID = job.Id
		})

		It("returns the job to its owner only", func() {
			rec := do(http.MethodGet, "/api/v1/review-jobs/"+jobID.String(), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = do(http.MethodGet, "/api/v1/review-jobs/"+jobID.String(), "joker", nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("answers 400 for a malformed id", func() {
			rec := do(http.MethodGet, "/api/v1/review-jobs/not-a-uuid", "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("lists the results", func() {
			rec := do(http.MethodGet, fmt.Sprintf("/api/v1/review-jobs/%s/results", jobID), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var results []api.ReviewResult
			Expect(json.Unmarshal(rec.Body.Bytes(), &results)).To(Succeed())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Status).To(Equal(string(model.ResultStatusPending)))
		})

		It("rejects overriding a pending result", func() {
			results, err := s.ReviewResult().List(context.TODO(), store.NewReviewResultQueryFilter().ByJobID(jobID))
			Expect(err).To(BeNil())

			rec := do(http.MethodPut, fmt.Sprintf("/api/v1/review-jobs/%s/results/%s", jobID, results[0].ID), "batman",
				api.ResultOverride{Result: "pass"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unknown judgment", func() {
			rec := do(http.MethodPut, fmt.Sprintf("/api/v1/review-jobs/%s/results/%s", jobID, uuid.New()), "batman",
				api.ResultOverride{Result: "maybe"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("exports the results as a workbook", func() {
			rec := do(http.MethodGet, fmt.Sprintf("/api/v1/review-jobs/%s/export", jobID), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
			Expect(rec.Body.Len()).To(BeNumerically(">", 0))
		})

		It("deletes the job", func() {
			rec := do(http.MethodDelete, "/api/v1/review-jobs/"+jobID.String(), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			rec = do(http.MethodGet, "/api/v1/review-jobs/"+jobID.String(), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("checklists", func() {
		It("reports the set status and locks it once used", func() {
			setID := createSet()
			root := createItem(setID, nil, "Root")
			createItem(setID, &root.Id, "Signed")

			rec := do(http.MethodGet, "/api/v1/checklist-sets/"+setID.String(), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var set api.ChecklistSet
			Expect(json.Unmarshal(rec.Body.Bytes(), &set)).To(Succeed())
			Expect(set.IsEditable).To(BeTrue())
			Expect(set.Status).To(Equal(string(model.DocumentStatusPending)))

			rec = do(http.MethodGet, fmt.Sprintf("/api/v1/checklist-sets/%s/items", setID), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var items []api.ChecklistItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
			Expect(items).To(HaveLen(2))

			rec = do(http.MethodPost, "/api/v1/review-jobs", "batman", jobBody(setID))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = do(http.MethodPost, fmt.Sprintf("/api/v1/checklist-sets/%s/items", setID), "batman", api.ChecklistItemCreate{Name: "Late"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("deletes the set", func() {
			setID := createSet()

			rec := do(http.MethodDelete, "/api/v1/checklist-sets/"+setID.String(), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			rec = do(http.MethodGet, "/api/v1/checklist-sets/"+setID.String(), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("answers 500 when the batch jobs are not configured", func() {
			setID := createSet()

			rec := do(http.MethodPost, fmt.Sprintf("/api/v1/checklist-sets/%s/ambiguity-review", setID), "batman", nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
