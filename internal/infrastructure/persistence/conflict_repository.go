package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormConflictRepository implements ConflictRepository using GORM
type GormConflictRepository struct {
	db *gorm.DB
}

// NewGormConflictRepository creates a new GormConflictRepository
func NewGormConflictRepository(db *gorm.DB) *GormConflictRepository {
	return &GormConflictRepository{db: db}
}

// Save creates or updates a conflict
func (r *GormConflictRepository) Save(ctx context.Context, c *conflict.SyncConflict) error {
	model := models.SyncConflictModelFromDomain(c)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByID returns a conflict by ID within an organization
func (r *GormConflictRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*conflict.SyncConflict, error) {
	var model models.SyncConflictModel
	if err := r.db.WithContext(ctx).First(&model, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conflict.ErrConflictNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnresolvedByModification returns the unresolved conflict of a modification
func (r *GormConflictRepository) FindUnresolvedByModification(ctx context.Context, modificationID uuid.UUID) (*conflict.SyncConflict, error) {
	var model models.SyncConflictModel
	err := r.db.WithContext(ctx).
		Where("modification_id = ? AND status = ?", modificationID, conflict.ConflictStatusUnresolved).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conflict.ErrConflictNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists conflicts matching the filter
func (r *GormConflictRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter conflict.ConflictFilter) ([]*conflict.SyncConflict, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("org_id = ?", orgID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RecordID != nil {
		query = query.Where("record_id = ?", *filter.RecordID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var conflictModels []models.SyncConflictModel
	if err := query.
		Order("detected_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&conflictModels).Error; err != nil {
		return nil, 0, err
	}

	conflicts := make([]*conflict.SyncConflict, len(conflictModels))
	for i := range conflictModels {
		conflicts[i] = conflictModels[i].ToDomain()
	}
	return conflicts, total, nil
}

// Ensure GormConflictRepository implements ConflictRepository
var _ conflict.ConflictRepository = (*GormConflictRepository)(nil)
