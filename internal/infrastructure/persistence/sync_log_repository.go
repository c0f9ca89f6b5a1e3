package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormSyncLogRepository implements SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Save appends a log entry
func (r *GormSyncLogRepository) Save(ctx context.Context, log *writequeue.SyncLog) error {
	model := models.SyncLogModelFromDomain(log)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindRecent lists the newest entries for an organization
func (r *GormSyncLogRepository) FindRecent(ctx context.Context, orgID uuid.UUID, limit int) ([]*writequeue.SyncLog, error) {
	var logModels []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logModels).Error; err != nil {
		return nil, err
	}

	logs := make([]*writequeue.SyncLog, len(logModels))
	for i := range logModels {
		logs[i] = logModels[i].ToDomain()
	}
	return logs, nil
}

// FindByItem lists entries for one queue item, oldest first
func (r *GormSyncLogRepository) FindByItem(ctx context.Context, itemID uuid.UUID) ([]*writequeue.SyncLog, error) {
	var logModels []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Find(&logModels).Error; err != nil {
		return nil, err
	}

	logs := make([]*writequeue.SyncLog, len(logModels))
	for i := range logModels {
		logs[i] = logModels[i].ToDomain()
	}
	return logs, nil
}

// Ensure GormSyncLogRepository implements SyncLogRepository
var _ writequeue.SyncLogRepository = (*GormSyncLogRepository)(nil)
