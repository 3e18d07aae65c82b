package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/store/model"
)

// ObjectReader serves document content to the evaluator.
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PresignedGet(ctx context.Context, key string) (string, error)
}

const defaultMaxToolRounds = 5

type Evaluator struct {
	client        *Client
	objects       ObjectReader
	documentModel string
	imageModel    string
	temperature   float64
	retriever     KnowledgeBaseRetriever
	codeRunner    CodeRunner
	maxToolRounds int
	log           *zap.SugaredLogger
}

type EvaluatorOption func(*Evaluator)

func WithTemperature(t float64) EvaluatorOption {
	return func(e *Evaluator) {
		e.temperature = t
	}
}

// WithKnowledgeBase offers the knowledge base query tool to items that
// reference knowledge bases.
func WithKnowledgeBase(r KnowledgeBaseRetriever) EvaluatorOption {
	return func(e *Evaluator) {
		e.retriever = r
	}
}

// WithCodeInterpreter offers the code interpreter tool to items that enable
// it.
func WithCodeInterpreter(r CodeRunner) EvaluatorOption {
	return func(e *Evaluator) {
		e.codeRunner = r
	}
}

// WithMaxToolRounds bounds the tool calling turns of one evaluation. The
// turn after the last one is sent without tools so the model has to answer.
func WithMaxToolRounds(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n >= 0 {
			e.maxToolRounds = n
		}
	}
}

func NewEvaluator(client *Client, objects ObjectReader, documentModel, imageModel string, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		client:        client,
		objects:       objects,
		documentModel: documentModel,
		imageModel:    imageModel,
		maxToolRounds: defaultMaxToolRounds,
		log:           zap.S().Named("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate judges the documents of in against one checklist item. Tool calls
// requested by the model are executed and answered until the model replies
// with its judgment.
func (e *Evaluator) Evaluate(ctx context.Context, in EvaluationInput) (*EvaluationOutput, error) {
	reviewType := ReviewTypeOf(in.Documents)

	modelID := e.documentModel
	prompt := documentReviewPrompt(in)
	if reviewType == model.ReviewTypeImage {
		modelID = e.imageModel
		prompt = imageReviewPrompt(in)
	}

	parts, err := e.contentParts(ctx, prompt, in.Documents)
	if err != nil {
		return nil, err
	}

	messages := []Message{
		{Role: "system", Content: reviewSystemPrompt},
		{Role: "user", Content: parts},
	}
	box := newToolbox(in.Tools, e.retriever, e.codeRunner)
	temperature := e.temperature

	var (
		usage  Usage
		traces []ToolTrace
		resp   *ChatResponse
	)
	for round := 0; ; round++ {
		req := ChatRequest{Model: modelID, Messages: messages, Temperature: &temperature}
		if box != nil && round < e.maxToolRounds {
			req.Tools = box.definitions()
		}

		resp, err = e.client.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens

		calls := resp.ToolCalls()
		if len(calls) == 0 || len(req.Tools) == 0 {
			break
		}

		var content any
		if text := resp.Content(); text != "" {
			content = text
		}
		messages = append(messages, Message{Role: "assistant", Content: content, ToolCalls: calls})
		for _, call := range calls {
			trace, answer := box.call(ctx, call)
			traces = append(traces, trace)
			messages = append(messages, Message{Role: "tool", Content: answer, ToolCallID: call.ID})
			e.log.Debugw("tool executed", "item", in.ItemName, "tool", trace.Name, "status", trace.Status)
		}
	}

	out, err := ParseReview(resp.Content(), reviewType)
	if err != nil {
		return nil, err
	}

	out.Model = modelID
	out.InputTokens = usage.PromptTokens
	out.OutputTokens = usage.CompletionTokens
	out.Cost = Cost(modelID, out.InputTokens, out.OutputTokens)
	out.ToolTraces = traces

	e.log.Debugw("item evaluated", "item", in.ItemName, "review_type", reviewType, "model", modelID,
		"result", out.Result, "tool_calls", len(traces), "input_tokens", out.InputTokens, "output_tokens", out.OutputTokens)
	return out, nil
}

func (e *Evaluator) contentParts(ctx context.Context, prompt string, docs []Document) ([]ContentPart, error) {
	parts := []ContentPart{{Type: "text", Text: prompt}}
	for _, d := range docs {
		if d.IsImage() {
			url, err := e.objects.PresignedGet(ctx, d.Key)
			if err != nil {
				return nil, fmt.Errorf("presign image %s: %w", d.Filename, err)
			}
			parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}})
			continue
		}

		data, err := e.objects.Get(ctx, d.Key)
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", d.Filename, err)
		}
		parts = append(parts, ContentPart{
			Type: "file",
			File: &File{
				Filename: d.Filename,
				FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
			},
		})
	}
	return parts, nil
}
