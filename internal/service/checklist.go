package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/ambiguity"
	"github.com/kubev2v/document-review/internal/feedback"
	"github.com/kubev2v/document-review/internal/service/mappers"
	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
	"github.com/kubev2v/document-review/pkg/log"
)

type AmbiguityRunner interface {
	Run(ctx context.Context, setID uuid.UUID, concurrency int) (ambiguity.Summary, error)
}

type FeedbackRunner interface {
	Run(ctx context.Context, setID uuid.UUID) (feedback.RunSummary, error)
}

// ChecklistSetView is a set with its derived document status.
type ChecklistSetView struct {
	model.ChecklistSet
	Status     model.DocumentStatus
	IsEditable bool
}

type ChecklistService struct {
	store                store.Store
	ambiguity            AmbiguityRunner
	ambiguityConcurrency int
	feedback             FeedbackRunner
	log                  *zap.SugaredLogger
}

func NewChecklistService(s store.Store, ambiguityRunner AmbiguityRunner, ambiguityConcurrency int, feedbackRunner FeedbackRunner) *ChecklistService {
	return &ChecklistService{
		store:                s,
		ambiguity:            ambiguityRunner,
		ambiguityConcurrency: ambiguityConcurrency,
		feedback:             feedbackRunner,
		log:                  zap.S().Named("checklist_service"),
	}
}

func (c *ChecklistService) CreateSet(ctx context.Context, form mappers.ChecklistSetForm) (*model.ChecklistSet, error) {
	if form.Name == "" {
		return nil, NewErrValidation("checklist set name is required")
	}
	return c.store.Checklist().CreateSet(ctx, form.ToChecklistSet())
}

func (c *ChecklistService) GetSet(ctx context.Context, setID uuid.UUID) (*ChecklistSetView, error) {
	set, err := c.getSet(ctx, setID)
	if err != nil {
		return nil, err
	}

	status, err := c.store.Checklist().Status(ctx, setID)
	if err != nil {
		return nil, err
	}
	editable, err := c.store.Checklist().IsEditable(ctx, setID)
	if err != nil {
		return nil, err
	}

	return &ChecklistSetView{ChecklistSet: *set, Status: status, IsEditable: editable}, nil
}

// DeleteSet removes the set and everything attached to it. Deleting a
// missing set succeeds.
func (c *ChecklistService) DeleteSet(ctx context.Context, setID uuid.UUID) error {
	tracer := log.NewDebugLogger("checklist_service").
		WithContext(ctx).
		Operation("delete_checklist_set").
		WithUUID("set_id", setID).
		Build()

	rounds, err := c.store.Checklist().Delete(ctx, setID)
	if err != nil {
		tracer.Error(err).Log()
		return err
	}

	tracer.Success().WithInt("pruning_rounds", rounds).Log()
	return nil
}

func (c *ChecklistService) ListItems(ctx context.Context, setID uuid.UUID) ([]model.ChecklistItemNode, error) {
	if _, err := c.getSet(ctx, setID); err != nil {
		return nil, err
	}
	return c.store.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(setID))
}

func (c *ChecklistService) CreateItem(ctx context.Context, form mappers.ChecklistItemForm) (*model.ChecklistItem, error) {
	if form.Name == "" {
		return nil, NewErrValidation("checklist item name is required")
	}
	if err := c.editable(ctx, form.SetID); err != nil {
		return nil, err
	}

	item, err := c.store.Checklist().CreateItem(ctx, form.ToChecklistItem())
	if err != nil {
		if errors.Is(err, store.ErrInvalidParent) {
			return nil, NewErrValidation("parent item %s does not belong to checklist set %s", *form.ParentID, form.SetID)
		}
		return nil, err
	}
	return item, nil
}

func (c *ChecklistService) DeleteItem(ctx context.Context, setID, itemID uuid.UUID) error {
	if err := c.editable(ctx, setID); err != nil {
		return err
	}

	item, err := c.store.Checklist().GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrChecklistItemNotFound(itemID)
		}
		return err
	}
	if item.SetID != setID {
		return NewErrChecklistItemNotFound(itemID)
	}

	rounds, err := c.store.Checklist().DeleteItem(ctx, setID, itemID)
	if err != nil {
		return err
	}
	c.log.Debugw("checklist item deleted", "set_id", setID, "item_id", itemID, "rounds", rounds)
	return nil
}

// RunAmbiguityReview flags the ambiguous leaf items of a set.
func (c *ChecklistService) RunAmbiguityReview(ctx context.Context, setID uuid.UUID) (ambiguity.Summary, error) {
	if c.ambiguity == nil {
		return ambiguity.Summary{}, NewErrApplication("ambiguity review is not configured")
	}
	if _, err := c.getSet(ctx, setID); err != nil {
		return ambiguity.Summary{}, err
	}
	return c.ambiguity.Run(ctx, setID, c.ambiguityConcurrency)
}

// RunFeedbackSummaries refreshes the feedback summaries of a set.
func (c *ChecklistService) RunFeedbackSummaries(ctx context.Context, setID uuid.UUID) (feedback.RunSummary, error) {
	if c.feedback == nil {
		return feedback.RunSummary{}, NewErrApplication("feedback summarization is not configured")
	}
	if _, err := c.getSet(ctx, setID); err != nil {
		return feedback.RunSummary{}, err
	}
	return c.feedback.Run(ctx, setID)
}

func (c *ChecklistService) getSet(ctx context.Context, setID uuid.UUID) (*model.ChecklistSet, error) {
	set, err := c.store.Checklist().GetSet(ctx, setID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrChecklistSetNotFound(setID)
		}
		return nil, err
	}
	return set, nil
}

func (c *ChecklistService) editable(ctx context.Context, setID uuid.UUID) error {
	if _, err := c.getSet(ctx, setID); err != nil {
		return err
	}
	editable, err := c.store.Checklist().IsEditable(ctx, setID)
	if err != nil {
		return err
	}
	if !editable {
		return NewErrValidation("checklist set %s is used by review jobs and cannot be edited", setID)
	}
	return nil
}
