package llm_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store/model"
)

type fakeObjects struct {
	data map[string][]byte
	err  error
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[key], nil
}

func (f *fakeObjects) PresignedGet(_ context.Context, key string) (string, error) {
	return "https://objects.local/" + key, f.err
}

var _ = Describe("evaluator", func() {
	var (
		objects *fakeObjects
		input   llm.EvaluationInput
	)

	BeforeEach(func() {
		objects = &fakeObjects{data: map[string][]byte{"a.pdf": []byte("%PDF-1.7")}}
		input = llm.EvaluationInput{
			ItemName:        "Signature",
			ItemDescription: "The contract is signed by both parties",
			Language:        "English",
			Documents: []llm.Document{
				{ID: uuid.New(), Filename: "a.pdf", Key: "a.pdf", FileType: model.FileTypePDF},
			},
		}
	})

	It("evaluates pdf documents with the document model", func() {
		var seen llm.ChatRequest
		srv := chatServer(http.StatusOK, answer(`<<JSON_START>>{"result":"pass","confidence":0.95,"pageNumber":2}<<JSON_END>>`), &seen)
		defer srv.Close()

		e := llm.NewEvaluator(llm.NewClient(srv.URL, "", time.Second), objects, "gpt-4o", "gpt-4.1")
		out, err := e.Evaluate(context.TODO(), input)
		Expect(err).To(BeNil())
		Expect(out.ReviewType).To(Equal(model.ReviewTypePDF))
		Expect(out.Model).To(Equal("gpt-4o"))
		Expect(out.Result).To(Equal("pass"))
		Expect(out.Pages).To(Equal([]int{2}))
		Expect(out.InputTokens).To(Equal(int64(1000)))
		Expect(out.Cost).To(BeNumerically(">", 0))
		Expect(seen.Model).To(Equal("gpt-4o"))
	})

	It("switches to the image model when an image is attached", func() {
		var seen llm.ChatRequest
		srv := chatServer(http.StatusOK, answer(`{"result":"fail","usedImageIndexes":[0]}`), &seen)
		defer srv.Close()

		input.Documents = append(input.Documents, llm.Document{ID: uuid.New(), Filename: "b.png", Key: "b.png", FileType: model.FileTypeImage})
		e := llm.NewEvaluator(llm.NewClient(srv.URL, "", time.Second), objects, "gpt-4o", "gpt-4.1")
		out, err := e.Evaluate(context.TODO(), input)
		Expect(err).To(BeNil())
		Expect(out.ReviewType).To(Equal(model.ReviewTypeImage))
		Expect(out.UsedImageIndexes).To(Equal([]int{0}))
		Expect(seen.Model).To(Equal("gpt-4.1"))
	})

	It("reports unreadable documents", func() {
		objects.err = errors.New("no such key")
		srv := chatServer(http.StatusOK, answer(`{}`), nil)
		defer srv.Close()

		e := llm.NewEvaluator(llm.NewClient(srv.URL, "", time.Second), objects, "gpt-4o", "gpt-4.1")
		_, err := e.Evaluate(context.TODO(), input)
		Expect(err).To(MatchError(ContainSubstring("no such key")))
	})

	It("passes throttling through as retryable", func() {
		srv := chatServer(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, nil)
		defer srv.Close()

		e := llm.NewEvaluator(llm.NewClient(srv.URL, "", time.Second), objects, "gpt-4o", "gpt-4.1")
		_, err := e.Evaluate(context.TODO(), input)
		Expect(llm.IsRetryable(err)).To(BeTrue())
	})
})
