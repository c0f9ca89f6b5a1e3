package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormRawRecordRepository implements RawRecordRepository using GORM
type GormRawRecordRepository struct {
	db *gorm.DB
}

// NewGormRawRecordRepository creates a new GormRawRecordRepository
func NewGormRawRecordRepository(db *gorm.DB) *GormRawRecordRepository {
	return &GormRawRecordRepository{db: db}
}

// SaveChunk persists a chunk of raw records in one transaction
func (r *GormRawRecordRepository) SaveChunk(ctx context.Context, records []*ingestion.RawRecord) error {
	if len(records) == 0 {
		return nil
	}

	recordModels := make([]*models.RawRecordModel, len(records))
	for i, record := range records {
		recordModels[i] = models.RawRecordModelFromDomain(record)
	}

	return r.db.WithContext(ctx).Create(recordModels).Error
}

// FindByBatch returns raw records for a batch ordered by ID, starting after
// the given cursor, up to limit
func (r *GormRawRecordRepository) FindByBatch(ctx context.Context, batchID uuid.UUID, afterID *uuid.UUID, limit int) ([]*ingestion.RawRecord, error) {
	query := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Limit(limit)
	if afterID != nil {
		query = query.Where("id > ?", *afterID)
	}

	var recordModels []models.RawRecordModel
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]*ingestion.RawRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// CountByBatch returns the number of raw records in a batch
func (r *GormRawRecordRepository) CountByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RawRecordModel{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	return count, err
}

// Ensure GormRawRecordRepository implements RawRecordRepository
var _ ingestion.RawRecordRepository = (*GormRawRecordRepository)(nil)
