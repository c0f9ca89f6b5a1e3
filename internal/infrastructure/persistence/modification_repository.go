package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// liveStatuses are the modification states still pending against the mirror
var liveStatuses = []mirror.ModificationStatus{
	mirror.ModificationStatusModified,
	mirror.ModificationStatusPendingSync,
	mirror.ModificationStatusSyncError,
}

// GormModificationRepository implements ModificationRepository using GORM
type GormModificationRepository struct {
	db *gorm.DB
}

// NewGormModificationRepository creates a new GormModificationRepository
func NewGormModificationRepository(db *gorm.DB) *GormModificationRepository {
	return &GormModificationRepository{db: db}
}

// Save creates or updates a modification
func (r *GormModificationRepository) Save(ctx context.Context, mod *mirror.Modification) error {
	model := models.ModificationModelFromDomain(mod)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByID returns a modification by ID
func (r *GormModificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*mirror.Modification, error) {
	var model models.ModificationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mirror.ErrModificationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLive returns the live modification for a (user, record) pair
func (r *GormModificationRepository) FindLive(ctx context.Context, orgID, userID, recordID uuid.UUID) (*mirror.Modification, error) {
	var model models.ModificationModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND record_id = ? AND status IN ?", orgID, userID, recordID, liveStatuses).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mirror.ErrModificationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLiveByUser returns all live modifications of a user
func (r *GormModificationRepository) FindLiveByUser(ctx context.Context, orgID, userID uuid.UUID) ([]*mirror.Modification, error) {
	var modModels []models.ModificationModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND status IN ?", orgID, userID, liveStatuses).
		Order("updated_at DESC").
		Find(&modModels).Error; err != nil {
		return nil, err
	}

	mods := make([]*mirror.Modification, len(modModels))
	for i := range modModels {
		mods[i] = modModels[i].ToDomain()
	}
	return mods, nil
}

// FindLiveByRecords returns live modifications of a user keyed by record ID
func (r *GormModificationRepository) FindLiveByRecords(ctx context.Context, orgID, userID uuid.UUID, recordIDs []uuid.UUID) (map[uuid.UUID]*mirror.Modification, error) {
	result := make(map[uuid.UUID]*mirror.Modification)
	if len(recordIDs) == 0 {
		return result, nil
	}

	var modModels []models.ModificationModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND record_id IN ? AND status IN ?", orgID, userID, recordIDs, liveStatuses).
		Find(&modModels).Error; err != nil {
		return nil, err
	}

	for i := range modModels {
		mod := modModels[i].ToDomain()
		result[mod.RecordID] = mod
	}
	return result, nil
}

// Delete removes a modification
func (r *GormModificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.ModificationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mirror.ErrModificationNotFound
	}
	return nil
}

// Ensure GormModificationRepository implements ModificationRepository
var _ mirror.ModificationRepository = (*GormModificationRepository)(nil)
