package temporalx_test

import (
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/temporalx"
)

var _ = Describe("review job workflow", func() {
	var (
		env        *testsuite.TestWorkflowEnvironment
		activities *temporalx.Activities
		jobID      uuid.UUID
		itemA      uuid.UUID
		itemB      uuid.UUID
		input      temporalx.ReviewInput
	)

	BeforeEach(func() {
		var suite testsuite.WorkflowTestSuite
		env = suite.NewTestWorkflowEnvironment()
		activities = &temporalx.Activities{}
		env.RegisterActivity(activities)

		jobID, itemA, itemB = uuid.New(), uuid.New(), uuid.New()
		input = temporalx.ReviewInput{
			JobID:             jobID,
			MaxConcurrency:    2,
			RetryBaseInterval: time.Millisecond,
			MaxAttempts:       5,
		}
	})

	gather := func(checkID uuid.UUID, name string) {
		env.OnActivity(activities.GatherItem, mock.Anything, jobID, checkID).Return(llm.EvaluationInput{ItemName: name}, nil).Once()
	}

	run := func() error {
		env.ExecuteWorkflow(temporalx.ReviewJobWorkflow, input)
		require.True(GinkgoT(), env.IsWorkflowCompleted())
		return env.GetWorkflowError()
	}

	It("evaluates every item then finalizes", func() {
		env.OnActivity(activities.Prepare, mock.Anything, jobID).Return([]uuid.UUID{itemA, itemB}, nil).Once()
		gather(itemA, "A")
		gather(itemB, "B")
		env.OnActivity(activities.EvaluateItem, mock.Anything, jobID, itemA, mock.Anything).Return(nil).Once()
		env.OnActivity(activities.EvaluateItem, mock.Anything, jobID, itemB, mock.Anything).Return(nil).Once()
		env.OnActivity(activities.Finalize, mock.Anything, jobID).Return(nil).Once()
		env.OnActivity(activities.NextAction, mock.Anything, jobID).Return(nil).Once()

		Expect(run()).To(Succeed())
		env.AssertExpectations(GinkgoT())
	})

	It("records terminal item failures and still finalizes", func() {
		env.OnActivity(activities.Prepare, mock.Anything, jobID).Return([]uuid.UUID{itemA, itemB}, nil).Once()
		gather(itemA, "A")
		gather(itemB, "B")
		env.OnActivity(activities.EvaluateItem, mock.Anything, jobID, itemA, mock.Anything).Return(nil).Once()
		env.OnActivity(activities.EvaluateItem, mock.Anything, jobID, itemB, mock.Anything).
			Return(temporal.NewNonRetryableApplicationError("schema mismatch", "ItemEvaluationError", nil)).Once()
		env.OnActivity(activities.FailItem, mock.Anything, jobID, itemB, mock.MatchedBy(func(detail string) bool {
			return detail != ""
		})).Return(nil).Once()
		env.OnActivity(activities.Finalize, mock.Anything, jobID).Return(nil).Once()
		env.OnActivity(activities.NextAction, mock.Anything, jobID).Return(nil).Once()

		Expect(run()).To(Succeed())
		env.AssertExpectations(GinkgoT())
	})

	It("retries retryable evaluation errors", func() {
		env.OnActivity(activities.Prepare, mock.Anything, jobID).Return([]uuid.UUID{itemA}, nil).Once()
		gather(itemA, "A")
		env.OnActivity(activities.EvaluateItem, mock.Anything, jobID, itemA, mock.Anything).Return(errors.New("throttled")).Twice()
		env.OnActivity(activities.EvaluateItem, mock.Anything, jobID, itemA, mock.Anything).Return(nil).Once()
		env.OnActivity(activities.Finalize, mock.Anything, jobID).Return(nil).Once()
		env.OnActivity(activities.NextAction, mock.Anything, jobID).Return(nil).Once()

		Expect(run()).To(Succeed())
		env.AssertExpectations(GinkgoT())
	})

	It("fails the job when prepare fails", func() {
		env.OnActivity(activities.Prepare, mock.Anything, jobID).
			Return(nil, temporal.NewNonRetryableApplicationError("checklist set not found", "NotFound", nil))
		env.OnActivity(activities.HandleError, mock.Anything, jobID, mock.MatchedBy(func(detail string) bool {
			return len(detail) > len("prepare: ") && detail[:len("prepare: ")] == "prepare: "
		})).Return(nil).Once()

		Expect(run()).NotTo(Succeed())
		env.AssertExpectations(GinkgoT())
	})

	It("fails the job when finalize fails", func() {
		env.OnActivity(activities.Prepare, mock.Anything, jobID).Return([]uuid.UUID{}, nil).Once()
		env.OnActivity(activities.Finalize, mock.Anything, jobID).
			Return(temporal.NewNonRetryableApplicationError("database gone", "StoreError", nil))
		env.OnActivity(activities.HandleError, mock.Anything, jobID, mock.Anything).Return(nil).Once()

		Expect(run()).NotTo(Succeed())
		env.AssertExpectations(GinkgoT())
	})

	It("records items whose input cannot be gathered", func() {
		env.OnActivity(activities.Prepare, mock.Anything, jobID).Return([]uuid.UUID{itemA}, nil).Once()
		env.OnActivity(activities.GatherItem, mock.Anything, jobID, itemA).
			Return(llm.EvaluationInput{}, temporal.NewNonRetryableApplicationError("item not found", "NotFound", nil)).Once()
		env.OnActivity(activities.FailItem, mock.Anything, jobID, itemA, mock.Anything).Return(nil).Once()
		env.OnActivity(activities.Finalize, mock.Anything, jobID).Return(nil).Once()
		env.OnActivity(activities.NextAction, mock.Anything, jobID).Return(nil).Once()

		Expect(run()).To(Succeed())
		env.AssertExpectations(GinkgoT())
	})
})
