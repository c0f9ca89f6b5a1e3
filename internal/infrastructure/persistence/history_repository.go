package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormHistoryRepository implements HistoryRepository using GORM
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new GormHistoryRepository
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	return &GormHistoryRepository{db: db}
}

// Save appends a snapshot
func (r *GormHistoryRepository) Save(ctx context.Context, snapshot *mirror.MirrorHistory) error {
	model := models.MirrorHistoryModelFromDomain(snapshot)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindBetween returns snapshots of a record with version in
// [fromVersion, toVersion), ordered by version ascending. Snapshots are
// labeled with the pre-bump version, so the snapshot at fromVersion is the
// document state a reader at that version saw.
func (r *GormHistoryRepository) FindBetween(ctx context.Context, recordID uuid.UUID, fromVersion, toVersion int64) ([]*mirror.MirrorHistory, error) {
	var historyModels []models.MirrorHistoryModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ? AND version >= ? AND version < ?", recordID, fromVersion, toVersion).
		Order("version ASC").
		Find(&historyModels).Error; err != nil {
		return nil, err
	}

	snapshots := make([]*mirror.MirrorHistory, len(historyModels))
	for i := range historyModels {
		snapshots[i] = historyModels[i].ToDomain()
	}
	return snapshots, nil
}

// Ensure GormHistoryRepository implements HistoryRepository
var _ mirror.HistoryRepository = (*GormHistoryRepository)(nil)
