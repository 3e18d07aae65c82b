package pipeline

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
	"github.com/kubev2v/document-review/pkg/metrics"
)

var tracer = otel.Tracer("github.com/kubev2v/document-review/internal/pipeline")

type Evaluator interface {
	Evaluate(ctx context.Context, in llm.EvaluationInput) (*llm.EvaluationOutput, error)
}

// ItemStage evaluates a single checklist item of a job: Gather, Evaluate
// and Persist. Only Evaluate is retried.
type ItemStage struct {
	store           store.Store
	evaluator       Evaluator
	defaultLanguage string
	retry           RetryPolicy
	log             *zap.SugaredLogger
}

func NewItemStage(s store.Store, evaluator Evaluator, defaultLanguage string, retry RetryPolicy) *ItemStage {
	return &ItemStage{
		store:           s,
		evaluator:       evaluator,
		defaultLanguage: defaultLanguage,
		retry:           retry,
		log:             zap.S().Named("item_stage"),
	}
}

// Run evaluates one item and records its outcome. A failure is written to
// the item's result and returned; it never touches other items.
func (s *ItemStage) Run(ctx context.Context, jobID, checkID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "pipeline.item", trace.WithAttributes(
		attribute.String("job_id", jobID.String()),
		attribute.String("check_id", checkID.String()),
	))
	defer span.End()

	start := time.Now()
	err := s.Process(ctx, jobID, checkID)
	metrics.ObserveItemDuration(time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.IncreaseItemEvaluationsMetric(string(model.ResultStatusFailed))
		if markErr := s.Fail(ctx, jobID, checkID, err); markErr != nil {
			s.log.Errorw("failed to record item failure", "job_id", jobID, "check_id", checkID, "error", markErr)
		}
		return err
	}

	metrics.IncreaseItemEvaluationsMetric(string(model.ResultStatusCompleted))
	return nil
}

// Process runs the three steps once, without recording a failure.
func (s *ItemStage) Process(ctx context.Context, jobID, checkID uuid.UUID) error {
	op := log.NewDebugLogger("item_stage").
		WithContext(ctx).
		Operation("evaluate_item").
		WithUUID("job_id", jobID).
		WithUUID("check_id", checkID).
		Build()

	in, err := s.Begin(ctx, jobID, checkID)
	if err != nil {
		op.Error(err).WithString("step", "gather").Log()
		return err
	}

	op.Step("evaluate").WithInt("documents", len(in.Documents)).Log()
	out, err := retry(ctx, s.retry, func() (*llm.EvaluationOutput, error) {
		return s.Evaluate(ctx, in)
	})
	if err != nil {
		op.Error(err).WithString("step", "evaluate").Log()
		return err
	}

	if err := s.Persist(ctx, jobID, checkID, in, out); err != nil {
		op.Error(err).WithString("step", "persist").Log()
		return err
	}

	op.Success().WithString("result", out.Result).Log()
	return nil
}

// Begin gathers the evaluation input and marks the item's result as
// PROCESSING.
func (s *ItemStage) Begin(ctx context.Context, jobID, checkID uuid.UUID) (llm.EvaluationInput, error) {
	in, err := s.Gather(ctx, jobID, checkID)
	if err != nil {
		return llm.EvaluationInput{}, err
	}
	if err := s.store.ReviewResult().MarkProcessing(ctx, jobID, checkID); err != nil {
		return llm.EvaluationInput{}, err
	}
	return in, nil
}

// EvaluateOnce makes a single evaluator call and persists its answer. The
// caller owns retries of a RetryableInfraError.
func (s *ItemStage) EvaluateOnce(ctx context.Context, jobID, checkID uuid.UUID, in llm.EvaluationInput) error {
	out, err := s.Evaluate(ctx, in)
	if err != nil {
		return err
	}
	return s.Persist(ctx, jobID, checkID, in, out)
}

// Fail records err on the item's result. It runs even when ctx is done.
func (s *ItemStage) Fail(ctx context.Context, jobID, checkID uuid.UUID, err error) error {
	return s.store.ReviewResult().MarkFailed(context.WithoutCancel(ctx), jobID, checkID, err.Error())
}

// Gather collects everything the evaluator needs for one item. Missing user
// preferences and tool configurations are not errors.
func (s *ItemStage) Gather(ctx context.Context, jobID, checkID uuid.UUID) (llm.EvaluationInput, error) {
	job, err := s.store.ReviewJob().Get(ctx, jobID)
	if err != nil {
		return llm.EvaluationInput{}, err
	}

	item, err := s.store.Checklist().GetItem(ctx, checkID)
	if err != nil {
		return llm.EvaluationInput{}, err
	}

	in := llm.EvaluationInput{
		ItemName:        item.Name,
		ItemDescription: item.Description,
		Language:        s.language(ctx, job.UserID),
		Documents:       orderedDocuments(job.Documents),
		Tools:           s.tools(ctx, item),
	}
	if item.FeedbackSummary != nil {
		in.FeedbackSummary = *item.FeedbackSummary
	}
	return in, nil
}

// Evaluate calls the evaluator once and classifies its failure.
func (s *ItemStage) Evaluate(ctx context.Context, in llm.EvaluationInput) (*llm.EvaluationOutput, error) {
	out, err := s.evaluator.Evaluate(ctx, in)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Persist writes the evaluation over the item's result in one statement.
func (s *ItemStage) Persist(ctx context.Context, jobID, checkID uuid.UUID, in llm.EvaluationInput, out *llm.EvaluationOutput) error {
	result := model.ReviewResult{
		Status:           model.ResultStatusCompleted,
		Result:           &out.Result,
		ConfidenceScore:  &out.Confidence,
		Explanation:      &out.Explanation,
		ShortExplanation: &out.ShortExplanation,
		ReviewType:       &out.ReviewType,
		SourceReferences: model.MakeJSONField(sourceReferences(in.Documents, out)),
		ToolExecutions:   model.MakeJSONField(toolExecutions(out.ToolTraces)),
		InputTokens:      out.InputTokens,
		OutputTokens:     out.OutputTokens,
		TotalCost:        out.Cost,
	}
	if out.ReviewType == model.ReviewTypePDF {
		result.ExtractedText = &out.ExtractedText
	}
	return s.store.ReviewResult().SaveEvaluation(ctx, jobID, checkID, result)
}

func (s *ItemStage) language(ctx context.Context, userID string) string {
	pref, err := s.store.UserPreference().Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			s.log.Warnw("failed to read user language", "user_id", userID, "error", err)
		}
		return s.defaultLanguage
	}
	if pref.Language == "" {
		return s.defaultLanguage
	}
	return pref.Language
}

func (s *ItemStage) tools(ctx context.Context, item *model.ChecklistItem) *llm.Tools {
	if item.ToolConfigurationID == nil {
		return nil
	}

	cfg, err := s.store.ToolConfiguration().Get(ctx, *item.ToolConfigurationID)
	if err != nil {
		s.log.Warnw("failed to read tool configuration", "check_id", item.ID,
			"tool_configuration_id", *item.ToolConfigurationID, "error", err)
		return nil
	}

	tools := &llm.Tools{CodeInterpreter: cfg.CodeInterpreter}
	if cfg.KnowledgeBase != nil {
		for _, kb := range cfg.KnowledgeBase.Data {
			tools.KnowledgeBases = append(tools.KnowledgeBases, llm.KnowledgeBase{ID: kb.KnowledgeBaseID, Description: kb.Description})
		}
	}
	if cfg.McpConfig != nil {
		servers := cfg.McpConfig.Data
		if nested, ok := servers["mcpServers"].(map[string]any); ok {
			servers = nested
		}
		tools.MCPServers = slices.Sorted(maps.Keys(servers))
	}
	return tools
}

// orderedDocuments lists PDFs first and images after, keeping upload order
// within each kind.
func orderedDocuments(docs []model.ReviewDocument) []llm.Document {
	out := make([]llm.Document, 0, len(docs))
	for _, images := range []bool{false, true} {
		for _, d := range docs {
			if (d.FileType == model.FileTypeImage) != images {
				continue
			}
			out = append(out, llm.Document{ID: d.ID, Filename: d.Filename, Key: d.S3Path, FileType: d.FileType})
		}
	}
	return out
}
