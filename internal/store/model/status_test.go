package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/document-review/internal/store/model"
)

var _ = Describe("ComputeStatus", func() {
	DescribeTable("derives the set status",
		func(statuses []model.DocumentStatus, expected model.DocumentStatus) {
			Expect(model.ComputeStatus(statuses)).To(Equal(expected))
		},
		Entry("no documents", []model.DocumentStatus{}, model.DocumentStatusPending),
		Entry("nil documents", nil, model.DocumentStatusPending),
		Entry("processing wins over everything",
			[]model.DocumentStatus{model.DocumentStatusFailed, model.DocumentStatusProcessing, model.DocumentStatusDetecting},
			model.DocumentStatusProcessing),
		Entry("detecting wins over failed",
			[]model.DocumentStatus{model.DocumentStatusFailed, model.DocumentStatusDetecting},
			model.DocumentStatusDetecting),
		Entry("all completed",
			[]model.DocumentStatus{model.DocumentStatusCompleted, model.DocumentStatusCompleted},
			model.DocumentStatusCompleted),
		Entry("completed and failed",
			[]model.DocumentStatus{model.DocumentStatusCompleted, model.DocumentStatusFailed},
			model.DocumentStatusFailed),
		Entry("completed and pending",
			[]model.DocumentStatus{model.DocumentStatusCompleted, model.DocumentStatusPending},
			model.DocumentStatusPending),
	)

	It("does not depend on the order of the input", func() {
		a := []model.DocumentStatus{model.DocumentStatusPending, model.DocumentStatusFailed, model.DocumentStatusCompleted}
		b := []model.DocumentStatus{model.DocumentStatusCompleted, model.DocumentStatusPending, model.DocumentStatusFailed}
		Expect(model.ComputeStatus(a)).To(Equal(model.ComputeStatus(b)))
	})
})
