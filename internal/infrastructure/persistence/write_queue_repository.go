package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormWriteQueueRepository implements writequeue.Repository using GORM
type GormWriteQueueRepository struct {
	db *gorm.DB
}

// NewGormWriteQueueRepository creates a new GormWriteQueueRepository
func NewGormWriteQueueRepository(db *gorm.DB) *GormWriteQueueRepository {
	return &GormWriteQueueRepository{db: db}
}

// Save persists one or more items
func (r *GormWriteQueueRepository) Save(ctx context.Context, items ...*writequeue.Item) error {
	if len(items) == 0 {
		return nil
	}

	itemModels := make([]*models.WriteQueueItemModel, len(items))
	for i, item := range items {
		itemModels[i] = models.WriteQueueItemModelFromDomain(item)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(itemModels).Error
}

// FindByID returns an item by ID within an organization
func (r *GormWriteQueueRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*writequeue.Item, error) {
	var model models.WriteQueueItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, writequeue.ErrItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDue returns pending items whose next attempt time has passed (or was
// never set), ordered by priority descending then age, up to limit
func (r *GormWriteQueueRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*writequeue.Item, error) {
	var itemModels []models.WriteQueueItemModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", writequeue.ItemStatusPending, now).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&itemModels).Error
	if err != nil {
		return nil, err
	}

	items := make([]*writequeue.Item, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, nil
}

// MarkProcessing atomically claims the given items and returns the ones
// actually claimed. Uses FOR UPDATE SKIP LOCKED so concurrent workers never
// process the same item twice.
func (r *GormWriteQueueRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*writequeue.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var claimed []*writequeue.Item

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var itemModels []models.WriteQueueItemModel
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("id IN ? AND status = ?", ids, writequeue.ItemStatusPending).
			Find(&itemModels).Error; err != nil {
			return err
		}

		if len(itemModels) == 0 {
			return nil
		}

		claimedIDs := make([]uuid.UUID, len(itemModels))
		for i := range itemModels {
			claimedIDs[i] = itemModels[i].ID
		}

		now := time.Now()
		if err := tx.Model(&models.WriteQueueItemModel{}).
			Where("id IN ?", claimedIDs).
			Updates(map[string]interface{}{
				"status":     writequeue.ItemStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		claimed = make([]*writequeue.Item, len(itemModels))
		for i := range itemModels {
			item := itemModels[i].ToDomain()
			item.Status = writequeue.ItemStatusProcessing
			item.UpdatedAt = now
			claimed[i] = item
		}
		return nil
	})

	return claimed, err
}

// Update updates an existing item
func (r *GormWriteQueueRepository) Update(ctx context.Context, item *writequeue.Item) error {
	model := models.WriteQueueItemModelFromDomain(item)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindDead lists dead-letter items for an organization with pagination
func (r *GormWriteQueueRepository) FindDead(ctx context.Context, orgID uuid.UUID, page, pageSize int) ([]*writequeue.Item, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WriteQueueItemModel{}).
		Where("org_id = ? AND status = ?", orgID, writequeue.ItemStatusFailed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var itemModels []models.WriteQueueItemModel
	if err := query.
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&itemModels).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*writequeue.Item, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, total, nil
}

// FindByModification returns the most recent item for a modification
func (r *GormWriteQueueRepository) FindByModification(ctx context.Context, modificationID uuid.UUID) (*writequeue.Item, error) {
	var model models.WriteQueueItemModel
	err := r.db.WithContext(ctx).
		Where("modification_id = ?", modificationID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, writequeue.ErrItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CountByStatus returns item counts per status for an organization
func (r *GormWriteQueueRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[writequeue.ItemStatus]int64, error) {
	type statusCount struct {
		Status writequeue.ItemStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.WriteQueueItemModel{}).
		Where("org_id = ?", orgID).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[writequeue.ItemStatus]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Ensure GormWriteQueueRepository implements writequeue.Repository
var _ writequeue.Repository = (*GormWriteQueueRepository)(nil)
