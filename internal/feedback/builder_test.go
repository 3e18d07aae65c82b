package feedback_test

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/document-review/internal/feedback"
)

// hashCounter counts one token per '#', so test blocks have exact sizes.
type hashCounter struct{}

func (hashCounter) Count(text string) int {
	return strings.Count(text, "#")
}

func tokens(n int) string {
	return strings.Repeat("#", n)
}

var _ = Describe("context builder", func() {
	now := time.Now()

	records := func(sizes ...int) []feedback.Record {
		out := make([]feedback.Record, 0, len(sizes))
		for i, size := range sizes {
			out = append(out, feedback.Record{Comment: tokens(size), CreatedAt: now.Add(-time.Duration(i) * time.Hour)})
		}
		return out
	}

	It("includes whole blocks while they fit", func() {
		b := feedback.NewBuilder(hashCounter{}, 1000, 0)
		out, err := b.Build(tokens(200), "", "", records(300, 300, 300, 300))
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("Feedback items included: 2"))
		Expect(strings.Count(out, "#")).To(Equal(800))
	})

	It("stops at the first block that does not fit", func() {
		b := feedback.NewBuilder(hashCounter{}, 1000, 0)
		out, err := b.Build(tokens(200), "", "", records(300, 600, 100))
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("Feedback items included: 1"))
		Expect(strings.Count(out, "#")).To(Equal(500))
	})

	It("fails when the mandatory blocks exhaust the budget", func() {
		b := feedback.NewBuilder(hashCounter{}, 150, 0)
		_, err := b.Build(tokens(200), "", "", records(10))
		Expect(errors.Is(err, feedback.ErrNoFeedbackFits)).To(BeTrue())
	})

	It("subtracts the system reserve", func() {
		b := feedback.NewBuilder(hashCounter{}, 1000, 600)
		Expect(b.Budget()).To(Equal(400))
		_, err := b.Build(tokens(200), "", "", records(300))
		Expect(errors.Is(err, feedback.ErrNoFeedbackFits)).To(BeTrue())
	})

	It("counts the previous summary as mandatory", func() {
		b := feedback.NewBuilder(hashCounter{}, 1000, 0)
		out, err := b.Build(tokens(100), "", tokens(300), records(300, 300))
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("Previous summary:"))
		Expect(out).To(ContainSubstring("Feedback items included: 2"))
	})

	It("prefers the newest feedback", func() {
		b := feedback.NewBuilder(hashCounter{}, 1000, 0)
		out, err := b.Build("Signature", "signed by both parties", "", []feedback.Record{
			{Comment: "old " + tokens(600), CreatedAt: now.Add(-time.Hour)},
			{Comment: "new " + tokens(600), CreatedAt: now},
		})
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("new"))
		Expect(out).NotTo(ContainSubstring("old"))
	})

	It("keeps the optional parts of a block together", func() {
		b := feedback.NewBuilder(hashCounter{}, 1000, 0)
		out, err := b.Build("Signature", "", "", []feedback.Record{
			{Comment: "missing", ExtractedText: "page 2 signature", Explanation: "looked signed", CreatedAt: now},
		})
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("Reviewer comment: missing\nDocument excerpt: page 2 signature\nAI reasoning: looked signed"))
	})
})

// runeCounter charges every character, separators and headers included.
type runeCounter struct{}

func (runeCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}

var _ = Describe("context budget", func() {
	comments := []feedback.Record{
		{Comment: tokens(40), CreatedAt: time.Now()},
		{Comment: tokens(40), CreatedAt: time.Now().Add(-time.Minute)},
		{Comment: tokens(40), CreatedAt: time.Now().Add(-2 * time.Minute)},
	}

	DescribeTable("never exceeds the budget",
		func(budget int) {
			out, err := feedback.NewBuilder(runeCounter{}, budget, 0).Build("A", "", "", comments)
			if err != nil {
				Expect(errors.Is(err, feedback.ErrNoFeedbackFits)).To(BeTrue())
				return
			}
			Expect(utf8.RuneCountInString(out)).To(BeNumerically("<=", budget))
		},
		Entry("mandatory block and one comment without room for the header", 100),
		Entry("one block", 130),
		Entry("two blocks", 200),
		Entry("everything", 400),
	)

	It("rejects a budget that only fits the blocks without their header", func() {
		mandatory := utf8.RuneCountInString("Checklist item: A\nDescription: ")
		block := utf8.RuneCountInString("Feedback 1\nReviewer comment: " + tokens(40))

		_, err := feedback.NewBuilder(runeCounter{}, mandatory+block, 0).Build("A", "", "", comments[:1])
		Expect(errors.Is(err, feedback.ErrNoFeedbackFits)).To(BeTrue())
	})
})

var _ = Describe("tiktoken counter", func() {
	It("counts cl100k tokens offline", func() {
		c, err := feedback.NewTiktokenCounter()
		Expect(err).To(BeNil())
		Expect(c.Count("hello world")).To(Equal(2))
		Expect(c.Count("")).To(Equal(0))
	})
})
