package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/internal/store/model"
)

// RefreshRollups recomputes the parent results of a job from the stored
// results of its leaves.
func RefreshRollups(ctx context.Context, s store.Store, jobID, setID uuid.UUID) error {
	items, err := s.Checklist().ListItems(ctx, store.NewChecklistItemQueryFilter().BySetID(setID))
	if err != nil {
		return err
	}
	results, err := s.ReviewResult().List(ctx, store.NewReviewResultQueryFilter().ByJobID(jobID))
	if err != nil {
		return err
	}
	return saveRollups(ctx, s, jobID, items, results)
}

func saveRollups(ctx context.Context, s store.Store, jobID uuid.UUID, items []model.ChecklistItemNode, results model.ReviewResultList) error {
	byCheck := make(map[uuid.UUID]model.ReviewResult, len(results))
	for _, r := range results {
		byCheck[r.CheckID] = r
	}
	for _, r := range rollupParents(items, byCheck) {
		if _, ok := byCheck[r.CheckID]; !ok {
			continue
		}
		if err := s.ReviewResult().SaveRollup(ctx, jobID, r.CheckID, r.Status, r.Result); err != nil {
			return err
		}
	}
	return nil
}

type rollup struct {
	CheckID uuid.UUID
	Status  model.ResultStatus
	Result  *string
}

// rollupParents derives the result of every parent item from its children,
// deepest parents first so that nested parents see resolved children.
func rollupParents(items []model.ChecklistItemNode, results map[uuid.UUID]model.ReviewResult) []rollup {
	children := map[uuid.UUID][]uuid.UUID{}
	for _, item := range items {
		if item.ParentID != nil {
			children[*item.ParentID] = append(children[*item.ParentID], item.ID)
		}
	}

	resolved := map[uuid.UUID]model.ReviewResult{}
	var out []rollup

	var resolve func(id uuid.UUID) model.ReviewResult
	resolve = func(id uuid.UUID) model.ReviewResult {
		if r, ok := resolved[id]; ok {
			return r
		}
		r := results[id]
		kids := children[id]
		if len(kids) == 0 {
			resolved[id] = r
			return r
		}

		childResults := make([]model.ReviewResult, 0, len(kids))
		for _, kid := range kids {
			childResults = append(childResults, resolve(kid))
		}
		status, judgment := combine(childResults)
		r.Status = status
		r.Result = judgment
		resolved[id] = r
		out = append(out, rollup{CheckID: id, Status: status, Result: judgment})
		return r
	}

	for _, item := range items {
		if item.ParentID == nil {
			resolve(item.ID)
		}
	}
	return out
}

func combine(children []model.ReviewResult) (model.ResultStatus, *string) {
	allPass := true
	anyFailed := false
	for _, c := range children {
		if c.Status == model.ResultStatusCompleted && c.Result != nil && *c.Result == model.JudgmentFail {
			fail := model.JudgmentFail
			return model.ResultStatusCompleted, &fail
		}
		if c.Status == model.ResultStatusFailed {
			anyFailed = true
		}
		if c.Status != model.ResultStatusCompleted || c.Result == nil || *c.Result != model.JudgmentPass {
			allPass = false
		}
	}
	if allPass {
		pass := model.JudgmentPass
		return model.ResultStatusCompleted, &pass
	}
	if anyFailed {
		return model.ResultStatusFailed, nil
	}
	return model.ResultStatusPending, nil
}

func jobTotals(results model.ReviewResultList) store.JobTotals {
	var totals store.JobTotals
	for _, r := range results {
		totals.InputTokens += r.InputTokens
		totals.OutputTokens += r.OutputTokens
		totals.Cost += r.TotalCost
	}
	return totals
}
