package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncline/backend/internal/domain/transform"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormLineageRepository implements LineageRepository using GORM
type GormLineageRepository struct {
	db *gorm.DB
}

// NewGormLineageRepository creates a new GormLineageRepository
func NewGormLineageRepository(db *gorm.DB) *GormLineageRepository {
	return &GormLineageRepository{db: db}
}

// Save appends a lineage entry
func (r *GormLineageRepository) Save(ctx context.Context, lineage *transform.Lineage) error {
	model := models.LineageModelFromDomain(lineage)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByRecord lists lineage for a mirror record, newest first
func (r *GormLineageRepository) FindByRecord(ctx context.Context, recordID uuid.UUID) ([]*transform.Lineage, error) {
	var lineageModels []models.LineageModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at DESC").
		Find(&lineageModels).Error; err != nil {
		return nil, err
	}

	entries := make([]*transform.Lineage, len(lineageModels))
	for i := range lineageModels {
		entries[i] = lineageModels[i].ToDomain()
	}
	return entries, nil
}

// Ensure GormLineageRepository implements LineageRepository
var _ transform.LineageRepository = (*GormLineageRepository)(nil)
