package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
	"github.com/kubev2v/document-review/pkg/metrics"
)

const summarySystemPrompt = "You maintain a short guide for an AI document reviewer. " +
	"Summarize what human reviewers corrected about its past judgments of one checklist item, " +
	"merging the previous summary with the new feedback. Answer with the summary only."

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (llm.Completion, error)
}

type RunSummary struct {
	Items      int
	Summarized int
	Skipped    int
	Failed     int
}

// Summarizer refreshes the feedback summaries of the items of a set.
type Summarizer struct {
	store     store.Store
	builder   *Builder
	completer Completer
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewSummarizer(s store.Store, builder *Builder, completer Completer) *Summarizer {
	return &Summarizer{
		store:     s,
		builder:   builder,
		completer: completer,
		now:       time.Now,
		log:       zap.S().Named("feedback_summarizer"),
	}
}

// Run processes the items one at a time. An item without feedback is
// skipped; a failure on one item does not stop the others.
func (s *Summarizer) Run(ctx context.Context, setID uuid.UUID) (RunSummary, error) {
	tracer := log.NewDebugLogger("feedback_summarizer").
		WithContext(ctx).
		Operation("summarize_feedback").
		WithUUID("set_id", setID).
		Build()

	items, err := s.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(setID))
	if err != nil {
		tracer.Error(err).Log()
		return RunSummary{}, err
	}

	summary := RunSummary{Items: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome := s.summarize(ctx, item.ChecklistItem)
		metrics.IncreaseFeedbackSummariesMetric(outcome)
		switch outcome {
		case "summarized":
			summary.Summarized++
		case "skipped":
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	tracer.Success().
		WithInt("summarized", summary.Summarized).
		WithInt("skipped", summary.Skipped).
		WithInt("failed", summary.Failed).
		Log()
	return summary, nil
}

func (s *Summarizer) summarize(ctx context.Context, item model.ChecklistItem) string {
	feedback, err := s.store.ReviewResult().ListFeedback(ctx, item.ID)
	if err != nil {
		s.log.Warnw("failed to load feedback", "item_id", item.ID, "error", err)
		return "failed"
	}
	if len(feedback) == 0 {
		return "skipped"
	}

	previous := ""
	if item.FeedbackSummary != nil {
		previous = *item.FeedbackSummary
	}

	prompt, err := s.builder.Build(item.Name, item.Description, previous, records(feedback))
	if err != nil {
		if errors.Is(err, ErrNoFeedbackFits) {
			s.log.Warnw("feedback does not fit the context", "item_id", item.ID, "error", err)
			return "no_fit"
		}
		return "failed"
	}

	completion, err := s.completer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		s.log.Warnw("feedback summarization failed", "item_id", item.ID, "error", err)
		return "failed"
	}

	if err := s.store.Checklist().UpdateFeedbackSummary(ctx, item.ID, completion.Text, s.now().UTC()); err != nil {
		s.log.Warnw("failed to save feedback summary", "item_id", item.ID, "error", err)
		return "failed"
	}
	return "summarized"
}

func records(results model.ReviewResultList) []Record {
	out := make([]Record, 0, len(results))
	for _, r := range results {
		rec := Record{CreatedAt: r.UpdatedAt}
		if r.UserComment != nil {
			rec.Comment = *r.UserComment
		}
		if r.ExtractedText != nil {
			rec.ExtractedText = *r.ExtractedText
		}
		if r.Explanation != nil {
			rec.Explanation = *r.Explanation
		}
		out = append(out, rec)
	}
	return out
}
