package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/config"
	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/pipeline"
	"github.com/kubev2v/document-review/internal/queue"
	st "github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/migrations"
)

// scriptedEvaluator answers per item name. Errors are returned while the
// item's failure budget lasts.
type scriptedEvaluator struct {
	mu       sync.Mutex
	answers  map[string]*llm.EvaluationOutput
	errs     map[string]error
	failures map[string]int
	calls    map[string]int
	inputs   map[string]llm.EvaluationInput
	block    chan struct{}
	started  chan string
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newScriptedEvaluator() *scriptedEvaluator {
	return &scriptedEvaluator{
		answers:  map[string]*llm.EvaluationOutput{},
		errs:     map[string]error{},
		failures: map[string]int{},
		calls:    map[string]int{},
		inputs:   map[string]llm.EvaluationInput{},
	}
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, in llm.EvaluationInput) (*llm.EvaluationOutput, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if e.started != nil {
		e.started <- in.ItemName
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[in.ItemName]++
	e.inputs[in.ItemName] = in

	if err, ok := e.errs[in.ItemName]; ok && (e.failures[in.ItemName] < 0 || e.calls[in.ItemName] <= e.failures[in.ItemName]) {
		return nil, err
	}
	if out, ok := e.answers[in.ItemName]; ok {
		copied := *out
		return &copied, nil
	}
	return &llm.EvaluationOutput{ReviewType: model.ReviewTypePDF, Result: model.JudgmentPass, Confidence: 0.9, Pages: []int{1}}, nil
}

func (e *scriptedEvaluator) callsFor(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

type fakeNextAction struct {
	text string
	err  error
}

func (f *fakeNextAction) Generate(_ context.Context, _ uuid.UUID) (string, error) {
	return f.text, f.err
}

func newTestStore() (st.Store, *gorm.DB) {
	cfg := config.NewDefault()
	db, err := st.InitDB(cfg)
	Expect(err).To(BeNil())
	Expect(migrations.MigrateStore(db, cfg.Database.Type, "")).To(Succeed())
	return st.NewStore(db), db
}

func truncateAll(db *gorm.DB) {
	for _, table := range []string{"review_results", "review_documents", "review_jobs", "checklist_items", "checklist_sets", "tool_configurations", "user_preferences"} {
		Expect(db.Exec("DELETE FROM " + table).Error).To(BeNil())
	}
}

var retryPolicy = pipeline.RetryPolicy{BaseInterval: time.Millisecond, MaxAttempts: 5}

var _ = Describe("review pipeline", Ordered, func() {
	var (
		s         st.Store
		gormDB    *gorm.DB
		evaluator *scriptedEvaluator
		set       *model.ChecklistSet
		root      *model.ChecklistItem
		a, b      *model.ChecklistItem
		job       *model.ReviewJob
	)

	BeforeAll(func() {
		s, gormDB = newTestStore()
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		evaluator = newScriptedEvaluator()

		var err error
		set, err = s.Checklist().CreateSet(context.TODO(), model.ChecklistSet{Name: "contract"})
		Expect(err).To(BeNil())
		root, err = s.Checklist().CreateItem(context.TODO(), model.ChecklistItem{SetID: set.ID, Name: "Root"})
		Expect(err).To(BeNil())
		a, err = s.Checklist().CreateItem(context.TODO(), model.ChecklistItem{SetID: set.ID, ParentID: &root.ID, Name: "A", Description: "signed"})
		Expect(err).To(BeNil())
		b, err = s.Checklist().CreateItem(context.TODO(), model.ChecklistItem{SetID: set.ID, ParentID: &root.ID, Name: "B", Description: "dated"})
		Expect(err).To(BeNil())

		job, err = s.ReviewJob().Create(context.TODO(), model.ReviewJob{
			ChecklistSetID: set.ID,
			Name:           "job",
			UserID:         "u1",
			Documents: []model.ReviewDocument{
				{Filename: "b.png", S3Path: "jobs/b.png", FileType: model.FileTypeImage},
				{Filename: "a.pdf", S3Path: "jobs/a.pdf", FileType: model.FileTypePDF},
			},
		})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		truncateAll(gormDB)
	})

	orchestrator := func(concurrency int, next pipeline.NextActionGenerator) *pipeline.Orchestrator {
		stage := pipeline.NewItemStage(s, evaluator, "English", retryPolicy)
		return pipeline.NewOrchestrator(s, stage, concurrency, next)
	}

	result := func(checkID uuid.UUID) *model.ReviewResult {
		r, err := s.ReviewResult().GetByJobAndCheck(context.TODO(), job.ID, checkID)
		Expect(err).To(BeNil())
		return r
	}

	reload := func() *model.ReviewJob {
		j, err := s.ReviewJob().Get(context.TODO(), job.ID)
		Expect(err).To(BeNil())
		return j
	}

	It("evaluates leaves and rolls the parent up", func() {
		evaluator.answers["B"] = &llm.EvaluationOutput{
			ReviewType:   model.ReviewTypePDF,
			Result:       model.JudgmentFail,
			Confidence:   0.8,
			Pages:        []int{2, 3},
			InputTokens:  100,
			OutputTokens: 10,
			Cost:         0.5,
		}

		Expect(orchestrator(2, nil).Run(context.TODO(), job.ID)).To(Succeed())

		Expect(*result(a.ID).Result).To(Equal(model.JudgmentPass))
		rb := result(b.ID)
		Expect(rb.Status).To(Equal(model.ResultStatusCompleted))
		Expect(*rb.Result).To(Equal(model.JudgmentFail))
		Expect(rb.SourceReferences.Data).To(HaveLen(2))

		rr := result(root.ID)
		Expect(rr.Status).To(Equal(model.ResultStatusCompleted))
		Expect(*rr.Result).To(Equal(model.JudgmentFail))
		Expect(evaluator.callsFor("Root")).To(Equal(0))

		j := reload()
		Expect(j.Status).To(Equal(model.JobStatusCompleted))
		Expect(j.CompletedAt).NotTo(BeNil())
		Expect(j.TotalInputTokens).To(Equal(int64(100)))
		Expect(j.TotalCost).To(BeNumerically("~", 0.5, 1e-9))
		Expect(*j.NextActionStatus).To(Equal(model.NextActionStatusSkipped))
	})

	It("isolates a failing item from its siblings", func() {
		evaluator.errs["B"] = fmt.Errorf("bad answer: %w", llm.ErrInvalidOutput)
		evaluator.failures["B"] = -1

		Expect(orchestrator(1, nil).Run(context.TODO(), job.ID)).To(Succeed())

		Expect(result(a.ID).Status).To(Equal(model.ResultStatusCompleted))
		rb := result(b.ID)
		Expect(rb.Status).To(Equal(model.ResultStatusFailed))
		Expect(*rb.ErrorDetail).To(ContainSubstring("bad answer"))
		Expect(evaluator.callsFor("B")).To(Equal(1))

		Expect(result(root.ID).Status).To(Equal(model.ResultStatusFailed))
		Expect(reload().Status).To(Equal(model.JobStatusCompleted))
	})

	It("retries throttled evaluations", func() {
		evaluator.errs["A"] = &llm.APIError{StatusCode: http.StatusTooManyRequests}
		evaluator.failures["A"] = 2

		Expect(orchestrator(1, nil).Run(context.TODO(), job.ID)).To(Succeed())

		Expect(evaluator.callsFor("A")).To(Equal(3))
		Expect(result(a.ID).Status).To(Equal(model.ResultStatusCompleted))
	})

	It("gives up after five attempts", func() {
		evaluator.errs["A"] = &llm.APIError{StatusCode: http.StatusServiceUnavailable}
		evaluator.failures["A"] = -1

		Expect(orchestrator(1, nil).Run(context.TODO(), job.ID)).To(Succeed())

		Expect(evaluator.callsFor("A")).To(Equal(5))
		ra := result(a.ID)
		Expect(ra.Status).To(Equal(model.ResultStatusFailed))
		Expect(*ra.ErrorDetail).To(ContainSubstring("503"))
	})

	It("stores the tool calls of an evaluation", func() {
		long := strings.Repeat("x", 600)
		evaluator.answers["A"] = &llm.EvaluationOutput{
			ReviewType: model.ReviewTypePDF,
			Result:     model.JudgmentPass,
			Confidence: 0.9,
			Pages:      []int{1},
			ToolTraces: []llm.ToolTrace{
				{ID: "call-1", Name: llm.ToolKnowledgeBaseQuery, Input: `{"query":"limits"}`, Output: long, Status: "success"},
				{ID: "call-2", Name: llm.ToolCodeInterpreter, Input: `{"code":"1/0"}`, Output: "division by zero", Status: "error"},
			},
		}

		Expect(orchestrator(1, nil).Run(context.TODO(), job.ID)).To(Succeed())

		executions := result(a.ID).ToolExecutions.Data
		Expect(executions).To(HaveLen(2))
		Expect(executions[0].ToolName).To(Equal(llm.ToolKnowledgeBaseQuery))
		Expect(executions[0].Output).To(Equal("<!TRUNCATED>" + strings.Repeat("x", 500)))
		Expect(executions[1].Status).To(Equal("error"))
		Expect(executions[1].Output).To(Equal("division by zero"))
	})

	It("overwrites the previous outcome when an item runs again", func() {
		stage := pipeline.NewItemStage(s, evaluator, "English", retryPolicy)
		_, err := s.ReviewResult().CreatePlaceholders(context.TODO(), job.ID, []uuid.UUID{a.ID})
		Expect(err).To(BeNil())

		evaluator.answers["A"] = &llm.EvaluationOutput{ReviewType: model.ReviewTypePDF, Result: model.JudgmentFail, Confidence: 0.6, Pages: []int{4}}
		Expect(stage.Run(context.TODO(), job.ID, a.ID)).To(Succeed())

		evaluator.answers["A"] = &llm.EvaluationOutput{ReviewType: model.ReviewTypePDF, Result: model.JudgmentPass, Confidence: 0.95, Pages: []int{1}}
		Expect(stage.Run(context.TODO(), job.ID, a.ID)).To(Succeed())

		results, err := s.ReviewResult().List(context.TODO(), st.NewReviewResultQueryFilter().ByJobID(job.ID))
		Expect(err).To(BeNil())
		Expect(results).To(HaveLen(1))
		Expect(*results[0].Result).To(Equal(model.JudgmentPass))
		Expect(*results[0].ConfidenceScore).To(Equal(0.95))
		Expect(*results[0].SourceReferences.Data[0].PageNumber).To(Equal(1))
	})

	It("gathers documents and preferences", func() {
		Expect(s.UserPreference().Upsert(context.TODO(), model.UserPreference{UserID: "u1", Language: "Japanese"})).To(Succeed())
		summary := "reviewers want both signatures"
		Expect(s.Checklist().UpdateFeedbackSummary(context.TODO(), a.ID, summary, time.Now())).To(Succeed())

		in, err := pipeline.NewItemStage(s, evaluator, "English", retryPolicy).Gather(context.TODO(), job.ID, a.ID)
		Expect(err).To(BeNil())
		Expect(in.Language).To(Equal("Japanese"))
		Expect(in.FeedbackSummary).To(Equal(summary))
		Expect(in.Tools).To(BeNil())
		Expect(in.Documents).To(HaveLen(2))
		Expect(in.Documents[0].Filename).To(Equal("a.pdf"))
		Expect(in.Documents[1].Filename).To(Equal("b.png"))
	})

	It("falls back to the default language", func() {
		in, err := pipeline.NewItemStage(s, evaluator, "English", retryPolicy).Gather(context.TODO(), job.ID, b.ID)
		Expect(err).To(BeNil())
		Expect(in.Language).To(Equal("English"))
	})

	It("fails the job when its checklist is gone", func() {
		Expect(gormDB.Exec("DELETE FROM checklist_sets").Error).To(BeNil())

		err := orchestrator(1, nil).Run(context.TODO(), job.ID)
		Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())

		j := reload()
		Expect(j.Status).To(Equal(model.JobStatusFailed))
		Expect(*j.ErrorDetail).To(ContainSubstring("prepare"))
	})

	It("keeps at most the configured number of items in flight", func() {
		for _, name := range []string{"C", "D", "E", "F"} {
			_, err := s.Checklist().CreateItem(context.TODO(), model.ChecklistItem{SetID: set.ID, ParentID: &root.ID, Name: name, Description: "present"})
			Expect(err).To(BeNil())
		}
		evaluator.delay = 50 * time.Millisecond

		Expect(orchestrator(3, nil).Run(context.TODO(), job.ID)).To(Succeed())

		Expect(evaluator.peak.Load()).To(BeNumerically("<=", 3))
		Expect(evaluator.peak.Load()).To(BeNumerically(">", 1))
		results, err := s.ReviewResult().List(context.TODO(), st.NewReviewResultQueryFilter().ByJobID(job.ID))
		Expect(err).To(BeNil())
		Expect(results).To(HaveLen(7))
		for _, r := range results {
			Expect(r.Status).To(Equal(model.ResultStatusCompleted))
		}
		Expect(*result(root.ID).Result).To(Equal(model.JudgmentPass))
	})

	It("fails the job when it is cancelled during the fan out", func() {
		evaluator.block = make(chan struct{})
		evaluator.started = make(chan string, 4)
		ctx, cancel := context.WithCancel(context.TODO())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- orchestrator(1, nil).Run(ctx, job.ID)
		}()

		var first string
		Eventually(evaluator.started).Should(Receive(&first))
		cancel()

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())

		j := reload()
		Expect(j.Status).To(Equal(model.JobStatusFailed))
		Expect(*j.ErrorDetail).To(ContainSubstring("fan out"))
		Expect(*j.ErrorDetail).To(ContainSubstring("context canceled"))
		Expect(j.CompletedAt).To(BeNil())

		interrupted := map[string]uuid.UUID{"A": a.ID, "B": b.ID}[first]
		r := result(interrupted)
		Expect(r.Status).To(Equal(model.ResultStatusFailed))
		Expect(*r.ErrorDetail).To(ContainSubstring("context canceled"))
	})

	It("records the next action", func() {
		Expect(orchestrator(1, &fakeNextAction{text: "Ask for the missing signature."}).Run(context.TODO(), job.ID)).To(Succeed())

		j := reload()
		Expect(*j.NextActionStatus).To(Equal(model.NextActionStatusCompleted))
		Expect(*j.NextAction).To(Equal("Ask for the missing signature."))
	})

	It("keeps the job completed when the next action fails", func() {
		Expect(orchestrator(1, &fakeNextAction{err: errors.New("boom")}).Run(context.TODO(), job.ID)).To(Succeed())

		j := reload()
		Expect(j.Status).To(Equal(model.JobStatusCompleted))
		Expect(*j.NextActionStatus).To(Equal(model.NextActionStatusFailed))
	})

	It("finalizes idempotently", func() {
		o := orchestrator(1, nil)
		Expect(o.Run(context.TODO(), job.ID)).To(Succeed())
		first := reload()

		Expect(o.Finalize(context.TODO(), job.ID)).To(Succeed())
		second := reload()
		Expect(second.TotalInputTokens).To(Equal(first.TotalInputTokens))
		Expect(second.Status).To(Equal(model.JobStatusCompleted))
		Expect(*result(root.ID).Result).To(Equal(model.JudgmentPass))
	})

	Context("runner", func() {
		It("runs jobs once at a time", func() {
			evaluator.block = make(chan struct{})
			runner := pipeline.NewRunner(context.TODO(), orchestrator(1, nil))

			Expect(runner.Start(context.TODO(), job.ID)).To(Succeed())
			Expect(runner.Start(context.TODO(), job.ID)).To(MatchError(queue.ErrAlreadyStarted))
			running, err := runner.Running(context.TODO())
			Expect(err).To(BeNil())
			Expect(running).To(Equal(1))

			close(evaluator.block)
			runner.Wait()

			running, err = runner.Running(context.TODO())
			Expect(err).To(BeNil())
			Expect(running).To(Equal(0))
			Expect(reload().Status).To(Equal(model.JobStatusCompleted))
		})

		It("fails jobs on request", func() {
			runner := pipeline.NewRunner(context.TODO(), orchestrator(1, nil))
			Expect(runner.FailJob(context.TODO(), job.ID, queue.QueueTimeoutError)).To(Succeed())

			j := reload()
			Expect(j.Status).To(Equal(model.JobStatusFailed))
			Expect(*j.ErrorDetail).To(Equal(queue.QueueTimeoutError))
		})
	})
})
