package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kubev2v/document-review/internal/store/model"
)

type Checklist interface {
	GetSet(ctx context.Context, id uuid.UUID) (*model.ChecklistSet, error)
	CreateSet(ctx context.Context, set model.ChecklistSet) (*model.ChecklistSet, error)
	IsEditable(ctx context.Context, setID uuid.UUID) (bool, error)
	Status(ctx context.Context, setID uuid.UUID) (model.DocumentStatus, error)
	Delete(ctx context.Context, setID uuid.UUID) (int, error)

	ListItems(ctx context.Context, filter *ChecklistItemQueryFilter) ([]model.ChecklistItemNode, error)
	GetItem(ctx context.Context, id uuid.UUID) (*model.ChecklistItem, error)
	CreateItem(ctx context.Context, item model.ChecklistItem) (*model.ChecklistItem, error)
	DeleteItem(ctx context.Context, setID, itemID uuid.UUID) (int, error)
	UpdateAmbiguityReview(ctx context.Context, itemID uuid.UUID, review model.AmbiguityReview) error
	UpdateFeedbackSummary(ctx context.Context, itemID uuid.UUID, summary string, updatedAt time.Time) error

	CreateDocument(ctx context.Context, doc model.ChecklistDocument) (*model.ChecklistDocument, error)
	ListDocuments(ctx context.Context, setID uuid.UUID) ([]model.ChecklistDocument, error)
}

type ChecklistStore struct {
	db *gorm.DB
}

// Make sure we conform to Checklist interface
var _ Checklist = (*ChecklistStore)(nil)

func NewChecklistStore(db *gorm.DB) Checklist {
	return &ChecklistStore{db: db}
}

func (c *ChecklistStore) GetSet(ctx context.Context, id uuid.UUID) (*model.ChecklistSet, error) {
	var set model.ChecklistSet
	if err := c.getDB(ctx).First(&set, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &set, nil
}

func (c *ChecklistStore) CreateSet(ctx context.Context, set model.ChecklistSet) (*model.ChecklistSet, error) {
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	if err := c.getDB(ctx).Create(&set).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &set, nil
}

// IsEditable reports whether no review job references the set yet.
func (c *ChecklistStore) IsEditable(ctx context.Context, setID uuid.UUID) (bool, error) {
	var count int64
	if err := c.getDB(ctx).Model(&model.ReviewJob{}).Where("check_list_set_id = ?", setID).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

func (c *ChecklistStore) Status(ctx context.Context, setID uuid.UUID) (model.DocumentStatus, error) {
	var statuses []model.DocumentStatus
	if err := c.getDB(ctx).Model(&model.ChecklistDocument{}).Where("check_list_set_id = ?", setID).Pluck("status", &statuses).Error; err != nil {
		return "", err
	}
	return model.ComputeStatus(statuses), nil
}

// ListItems returns the matching items with HasChildren resolved in a second
// query over the fetched ids, independent of how many items matched.
func (c *ChecklistStore) ListItems(ctx context.Context, filter *ChecklistItemQueryFilter) ([]model.ChecklistItemNode, error) {
	var items model.ChecklistItemList
	tx := c.getDB(ctx).Model(&model.ChecklistItem{}).Order("created_at, id")
	if filter != nil {
		tx = apply(tx, filter.QueryFn)
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []model.ChecklistItemNode{}, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	var parents []uuid.UUID
	if err := c.getDB(ctx).Model(&model.ChecklistItem{}).
		Distinct("parent_id").
		Where("parent_id IN ?", ids).
		Pluck("parent_id", &parents).Error; err != nil {
		return nil, err
	}

	hasChildren := make(map[uuid.UUID]struct{}, len(parents))
	for _, p := range parents {
		hasChildren[p] = struct{}{}
	}

	nodes := make([]model.ChecklistItemNode, 0, len(items))
	for _, item := range items {
		_, found := hasChildren[item.ID]
		nodes = append(nodes, model.ChecklistItemNode{ChecklistItem: item, HasChildren: found})
	}
	return nodes, nil
}

func (c *ChecklistStore) GetItem(ctx context.Context, id uuid.UUID) (*model.ChecklistItem, error) {
	var item model.ChecklistItem
	if err := c.getDB(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateItem inserts an item after checking its parent lives in the same set.
func (c *ChecklistStore) CreateItem(ctx context.Context, item model.ChecklistItem) (*model.ChecklistItem, error) {
	if item.ParentID != nil {
		var parent model.ChecklistItem
		err := c.getDB(ctx).Select("id", "check_list_set_id").First(&parent, "id = ?", *item.ParentID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidParent
			}
			return nil, err
		}
		if parent.SetID != item.SetID {
			return nil, ErrInvalidParent
		}
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := c.getDB(ctx).Create(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes itemID and its whole subtree. It returns the number of
// pruning rounds that removed rows.
func (c *ChecklistStore) DeleteItem(ctx context.Context, setID, itemID uuid.UUID) (int, error) {
	var rounds int
	err := c.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		subtree, err := collectSubtree(tx, setID, itemID)
		if err != nil {
			return err
		}
		if len(subtree) == 0 {
			return nil
		}

		rounds, err = pruneItems(tx, func(q *gorm.DB) *gorm.DB {
			return q.Where("id IN ?", subtree)
		})
		return err
	})
	return rounds, err
}

// Delete removes a checklist set and every row depending on it in one
// transaction. Deleting a missing set is a no-op.
func (c *ChecklistStore) Delete(ctx context.Context, setID uuid.UUID) (int, error) {
	var rounds int
	err := c.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		jobs := tx.Model(&model.ReviewJob{}).Select("id").Where("check_list_set_id = ?", setID)

		if err := tx.Where("review_job_id IN (?)", jobs).Delete(&model.ReviewResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("review_job_id IN (?)", jobs).Delete(&model.ReviewDocument{}).Error; err != nil {
			return err
		}
		if err := tx.Where("check_list_set_id = ?", setID).Delete(&model.ChecklistDocument{}).Error; err != nil {
			return err
		}
		if err := tx.Where("check_list_set_id = ?", setID).Delete(&model.ReviewJob{}).Error; err != nil {
			return err
		}

		var err error
		rounds, err = pruneItems(tx, func(q *gorm.DB) *gorm.DB {
			return q.Where("check_list_set_id = ?", setID)
		})
		if err != nil {
			return err
		}

		return tx.Where("id = ?", setID).Delete(&model.ChecklistSet{}).Error
	})
	return rounds, err
}

// pruneItems deletes the target items leaves first: each round removes every
// target row that no remaining row names as its parent, until a round removes
// nothing. A forest of height h is gone after h productive rounds.
func pruneItems(tx *gorm.DB, target func(*gorm.DB) *gorm.DB) (int, error) {
	rounds := 0
	for {
		parents := tx.Model(&model.ChecklistItem{}).Select("parent_id").Where("parent_id IS NOT NULL")
		result := target(tx.Where("id NOT IN (?)", parents)).Delete(&model.ChecklistItem{})
		if result.Error != nil {
			return rounds, result.Error
		}
		if result.RowsAffected == 0 {
			return rounds, nil
		}
		rounds++
	}
}

// collectSubtree walks down from rootID one level per query.
func collectSubtree(tx *gorm.DB, setID, rootID uuid.UUID) ([]uuid.UUID, error) {
	var root []uuid.UUID
	if err := tx.Model(&model.ChecklistItem{}).
		Where("id = ? AND check_list_set_id = ?", rootID, setID).
		Pluck("id", &root).Error; err != nil {
		return nil, err
	}

	all := root
	frontier := root
	for len(frontier) > 0 {
		var children []uuid.UUID
		if err := tx.Model(&model.ChecklistItem{}).
			Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		all = append(all, children...)
		frontier = children
	}
	return all, nil
}

func (c *ChecklistStore) UpdateAmbiguityReview(ctx context.Context, itemID uuid.UUID, review model.AmbiguityReview) error {
	result := c.getDB(ctx).Model(&model.ChecklistItem{}).
		Where("id = ?", itemID).
		Update("ambiguity_review", model.MakeJSONField(review))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (c *ChecklistStore) UpdateFeedbackSummary(ctx context.Context, itemID uuid.UUID, summary string, updatedAt time.Time) error {
	result := c.getDB(ctx).Model(&model.ChecklistItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"feedback_summary":            summary,
			"feedback_summary_updated_at": updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (c *ChecklistStore) CreateDocument(ctx context.Context, doc model.ChecklistDocument) (*model.ChecklistDocument, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = model.DocumentStatusPending
	}
	if err := c.getDB(ctx).Create(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *ChecklistStore) ListDocuments(ctx context.Context, setID uuid.UUID) ([]model.ChecklistDocument, error) {
	var docs []model.ChecklistDocument
	if err := c.getDB(ctx).Where("check_list_set_id = ?", setID).Order("created_at").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *ChecklistStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return c.db.WithContext(ctx)
}
