package temporalx_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/testsuite"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/config"
	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/pipeline"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/internal/temporalx"
	"github.com/kubev2v/document-review/pkg/migrations"
)

type countingEvaluator struct {
	calls atomic.Int32
	err   error
}

func (e *countingEvaluator) Evaluate(_ context.Context, _ llm.EvaluationInput) (*llm.EvaluationOutput, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return &llm.EvaluationOutput{ReviewType: model.ReviewTypePDF, Result: model.JudgmentPass, Confidence: 0.9, Pages: []int{1}}, nil
}

var _ = Describe("review job workflow over the store", Ordered, func() {
	const maxAttempts = 5

	var (
		s         store.Store
		gormDB    *gorm.DB
		evaluator *countingEvaluator
		job       *model.ReviewJob
		leaf      *model.ChecklistItem
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		Expect(migrations.MigrateStore(db, cfg.Database.Type, "")).To(Succeed())
		gormDB = db
		s = store.NewStore(db)
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		evaluator = &countingEvaluator{}

		set, err := s.Checklist().CreateSet(context.TODO(), model.ChecklistSet{Name: "contract"})
		Expect(err).To(BeNil())
		leaf, err = s.Checklist().CreateItem(context.TODO(), model.ChecklistItem{SetID: set.ID, Name: "A", Description: "signed"})
		Expect(err).To(BeNil())
		job, err = s.ReviewJob().Create(context.TODO(), model.ReviewJob{
			ChecklistSetID: set.ID,
			Name:           "job",
			UserID:         "u1",
			Documents:      []model.ReviewDocument{{Filename: "a.pdf", S3Path: "jobs/a.pdf", FileType: model.FileTypePDF}},
		})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		for _, table := range []string{"review_results", "review_documents", "review_jobs", "checklist_items", "checklist_sets"} {
			Expect(gormDB.Exec("DELETE FROM " + table).Error).To(BeNil())
		}
	})

	// The worker builds its stage with the configured retry policy, the
	// same one the in-process runner uses.
	run := func() {
		stage := pipeline.NewItemStage(s, evaluator, "English", pipeline.RetryPolicy{BaseInterval: time.Millisecond, MaxAttempts: maxAttempts})
		activities := &temporalx.Activities{Orchestrator: pipeline.NewOrchestrator(s, stage, 1, nil)}

		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()
		env.RegisterActivity(activities)
		env.ExecuteWorkflow(temporalx.ReviewJobWorkflow, temporalx.ReviewInput{
			JobID:             job.ID,
			MaxConcurrency:    1,
			RetryBaseInterval: time.Millisecond,
			MaxAttempts:       maxAttempts,
		})
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).To(BeNil())
	}

	result := func() *model.ReviewResult {
		r, err := s.ReviewResult().GetByJobAndCheck(context.TODO(), job.ID, leaf.ID)
		Expect(err).To(BeNil())
		return r
	}

	It("calls a throttled evaluator at most the configured number of times", func() {
		evaluator.err = &llm.APIError{StatusCode: http.StatusTooManyRequests}

		run()

		Expect(evaluator.calls.Load()).To(Equal(int32(maxAttempts)))
		r := result()
		Expect(r.Status).To(Equal(model.ResultStatusFailed))
		Expect(*r.ErrorDetail).To(ContainSubstring("429"))

		j, err := s.ReviewJob().Get(context.TODO(), job.ID)
		Expect(err).To(BeNil())
		Expect(j.Status).To(Equal(model.JobStatusCompleted))
	})

	It("evaluates each item once when the evaluator answers", func() {
		run()

		Expect(evaluator.calls.Load()).To(Equal(int32(1)))
		r := result()
		Expect(r.Status).To(Equal(model.ResultStatusCompleted))
		Expect(*r.Result).To(Equal(model.JudgmentPass))
	})
})
