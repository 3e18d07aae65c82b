package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/document-review/internal/llm"
)

var _ = Describe("pricing", func() {
	It("prices known models per thousand tokens", func() {
		Expect(llm.Cost("gpt-4o", 1000, 1000)).To(BeNumerically("~", 0.0125, 1e-9))
	})

	It("ignores cross region prefixes", func() {
		direct := llm.Cost("anthropic.claude-sonnet-4-20250514-v1:0", 2000, 500)
		Expect(direct).To(BeNumerically(">", 0))
		Expect(llm.Cost("us.anthropic.claude-sonnet-4-20250514-v1:0", 2000, 500)).To(Equal(direct))
		Expect(llm.Cost("global.anthropic.claude-sonnet-4-20250514-v1:0", 2000, 500)).To(Equal(direct))
	})

	It("charges nothing for unknown models", func() {
		Expect(llm.Cost("local-llama", 5000, 5000)).To(BeZero())
		_, ok := llm.PriceOf("eu.local-llama")
		Expect(ok).To(BeFalse())
	})
})
