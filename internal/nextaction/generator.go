package nextaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kubev2v/document-review/internal/llm"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
)

const systemPrompt = "You turn document review results into a short, actionable to-do list for the person who submitted the documents."

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (llm.Completion, error)
}

// Generator writes the next action text of a finished review job.
type Generator struct {
	store     store.Store
	completer Completer
	template  string
}

func NewGenerator(s store.Store, completer Completer, template string) *Generator {
	if template == "" {
		template = DefaultTemplate
	}
	return &Generator{store: s, completer: completer, template: template}
}

func (g *Generator) Generate(ctx context.Context, jobID uuid.UUID) (string, error) {
	tracer := log.NewDebugLogger("next_action").
		WithContext(ctx).
		Operation("generate_next_action").
		WithUUID("job_id", jobID).
		Build()

	data, err := g.Data(ctx, jobID)
	if err != nil {
		tracer.Error(err).Log()
		return "", err
	}

	completion, err := g.completer.Complete(ctx, systemPrompt, Expand(g.template, data))
	if err != nil {
		tracer.Error(err).Log()
		return "", fmt.Errorf("generate next action: %w", err)
	}

	tracer.Success().
		WithInt("pass_count", data.PassCount).
		WithInt("fail_count", data.FailCount).
		Log()
	return completion.Text, nil
}

// Data collects the template data of a job.
func (g *Generator) Data(ctx context.Context, jobID uuid.UUID) (Data, error) {
	job, err := g.store.ReviewJob().Get(ctx, jobID)
	if err != nil {
		return Data{}, fmt.Errorf("load job: %w", err)
	}
	set, err := g.store.Checklist().GetSet(ctx, job.ChecklistSetID)
	if err != nil {
		return Data{}, fmt.Errorf("load checklist set: %w", err)
	}
	items, err := g.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(set.ID))
	if err != nil {
		return Data{}, fmt.Errorf("load checklist items: %w", err)
	}
	results, err := g.store.ReviewResult().List(ctx, store.NewReviewResultQueryFilter().ByJobID(jobID))
	if err != nil {
		return Data{}, fmt.Errorf("load results: %w", err)
	}

	byCheck := make(map[uuid.UUID]model.ReviewResult, len(results))
	for _, r := range results {
		byCheck[r.CheckID] = r
	}

	data := Data{ChecklistName: set.Name}
	for _, node := range items {
		r, ok := byCheck[node.ID]
		if !ok {
			continue
		}
		item := toItem(node.ChecklistItem, r)
		data.AllResults = append(data.AllResults, item)

		switch item.Result {
		case model.JudgmentPass:
			data.PassCount++
		case model.JudgmentFail:
			data.FailCount++
			data.FailedItems = append(data.FailedItems, item)
		}
		if item.UserOverride {
			data.UserOverrides = append(data.UserOverrides, item)
		}
	}

	for _, d := range job.Documents {
		data.Documents = append(data.Documents, d.Filename)
	}
	return data, nil
}

func toItem(check model.ChecklistItem, r model.ReviewResult) Item {
	item := Item{
		Name:         check.Name,
		Description:  check.Description,
		Confidence:   r.ConfidenceScore,
		UserOverride: r.UserOverride,
	}
	if r.Result != nil {
		item.Result = *r.Result
	}
	if r.Explanation != nil {
		item.Explanation = *r.Explanation
	}
	if r.ExtractedText != nil {
		item.ExtractedText = *r.ExtractedText
	}
	if r.UserComment != nil {
		item.UserComment = *r.UserComment
	}
	return item
}
