package service_test

import (
	"context"
	"reflect"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/ambiguity"
	"github.com/kubev2v/document-review/internal/feedback"
	"github.com/kubev2v/document-review/internal/service"
	"github.com/kubev2v/document-review/internal/service/mappers"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
)

type fakeAmbiguity struct {
	concurrency int
}

func (f *fakeAmbiguity) Run(_ context.Context, _ uuid.UUID, concurrency int) (ambiguity.Summary, error) {
	f.concurrency = concurrency
	return ambiguity.Summary{Candidates: 1, Ambiguous: 1}, nil
}

type fakeFeedback struct{}

func (fakeFeedback) Run(context.Context, uuid.UUID) (feedback.RunSummary, error) {
	return feedback.RunSummary{Items: 2, Summarized: 1, Skipped: 1}, nil
}

var _ = Describe("checklist service", Ordered, func() {
	var (
		s      store.Store
		gormDB *gorm.DB
		runner *fakeAmbiguity
		srv    *service.ChecklistService
		set    *model.ChecklistSet
		root   *model.ChecklistItem
	)

	BeforeAll(func() {
		s, gormDB = newTestStore()
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		runner = &fakeAmbiguity{}
		srv = service.NewChecklistService(s, runner, 4, fakeFeedback{})

		var err error
		set, err = srv.CreateSet(context.TODO(), mappers.ChecklistSetForm{Name: "contract"})
		Expect(err).To(BeNil())
		root, err = srv.CreateItem(context.TODO(), mappers.ChecklistItemForm{SetID: set.ID, Name: "Root"})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		truncateAll(gormDB)
	})

	It("reports an editable set without documents as pending", func() {
		view, err := srv.GetSet(context.TODO(), set.ID)
		Expect(err).To(BeNil())
		Expect(view.Name).To(Equal("contract"))
		Expect(view.Status).To(Equal(model.DocumentStatusPending))
		Expect(view.IsEditable).To(BeTrue())
	})

	It("derives the child flag of listed items", func() {
		_, err := srv.CreateItem(context.TODO(), mappers.ChecklistItemForm{SetID: set.ID, ParentID: &root.ID, Name: "Signed"})
		Expect(err).To(BeNil())

		items, err := srv.ListItems(context.TODO(), set.ID)
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(2))
		for _, item := range items {
			Expect(item.HasChildren).To(Equal(item.ID == root.ID))
		}
	})

	It("rejects a parent from another set", func() {
		other, err := srv.CreateSet(context.TODO(), mappers.ChecklistSetForm{Name: "other"})
		Expect(err).To(BeNil())

		_, err = srv.CreateItem(context.TODO(), mappers.ChecklistItemForm{SetID: other.ID, ParentID: &root.ID, Name: "Stray"})
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrValidation{})))
	})

	It("locks the set once a job references it", func() {
		_, err := s.ReviewJob().Create(context.TODO(), model.ReviewJob{ChecklistSetID: set.ID, Name: "job", UserID: "batman"})
		Expect(err).To(BeNil())

		view, err := srv.GetSet(context.TODO(), set.ID)
		Expect(err).To(BeNil())
		Expect(view.IsEditable).To(BeFalse())

		_, err = srv.CreateItem(context.TODO(), mappers.ChecklistItemForm{SetID: set.ID, Name: "Late"})
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrValidation{})))

		err = srv.DeleteItem(context.TODO(), set.ID, root.ID)
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrValidation{})))
	})

	It("deletes an item with its subtree", func() {
		child, err := srv.CreateItem(context.TODO(), mappers.ChecklistItemForm{SetID: set.ID, ParentID: &root.ID, Name: "Signed"})
		Expect(err).To(BeNil())
		_, err = srv.CreateItem(context.TODO(), mappers.ChecklistItemForm{SetID: set.ID, ParentID: &child.ID, Name: "Both parties"})
		Expect(err).To(BeNil())

		Expect(srv.DeleteItem(context.TODO(), set.ID, root.ID)).To(Succeed())

		items, err := srv.ListItems(context.TODO(), set.ID)
		Expect(err).To(BeNil())
		Expect(items).To(BeEmpty())
	})

	It("does not delete items of another set", func() {
		err := srv.DeleteItem(context.TODO(), uuid.New(), root.ID)
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
	})

	It("deletes the set and tolerates a second delete", func() {
		Expect(srv.DeleteSet(context.TODO(), set.ID)).To(Succeed())
		Expect(srv.DeleteSet(context.TODO(), set.ID)).To(Succeed())

		_, err := srv.GetSet(context.TODO(), set.ID)
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
	})

	It("runs the batch jobs", func() {
		summary, err := srv.RunAmbiguityReview(context.TODO(), set.ID)
		Expect(err).To(BeNil())
		Expect(summary.Ambiguous).To(Equal(1))
		Expect(runner.concurrency).To(Equal(4))

		feedbackSummary, err := srv.RunFeedbackSummaries(context.TODO(), set.ID)
		Expect(err).To(BeNil())
		Expect(feedbackSummary.Summarized).To(Equal(1))

		_, err = srv.RunAmbiguityReview(context.TODO(), uuid.New())
		Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
	})
})
