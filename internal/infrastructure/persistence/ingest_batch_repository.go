package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormIngestBatchRepository implements IngestBatchRepository using GORM
type GormIngestBatchRepository struct {
	db *gorm.DB
}

// NewGormIngestBatchRepository creates a new GormIngestBatchRepository
func NewGormIngestBatchRepository(db *gorm.DB) *GormIngestBatchRepository {
	return &GormIngestBatchRepository{db: db}
}

// Save creates or updates a batch
func (r *GormIngestBatchRepository) Save(ctx context.Context, batch *ingestion.IngestBatch) error {
	model := models.IngestBatchModelFromDomain(batch)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByID returns a batch by ID within an organization
func (r *GormIngestBatchRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*ingestion.IngestBatch, error) {
	var model models.IngestBatchModel
	if err := r.db.WithContext(ctx).First(&model, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ingestion.ErrBatchNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLastSucceeded returns the most recent completed or partial batch for
// an endpoint. Used to seed the delta cursor of the next run.
func (r *GormIngestBatchRepository) FindLastSucceeded(ctx context.Context, orgID uuid.UUID, endpoint string) (*ingestion.IngestBatch, error) {
	var model models.IngestBatchModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND endpoint = ? AND status IN ?", orgID, endpoint, []ingestion.BatchStatus{
			ingestion.BatchStatusCompleted,
			ingestion.BatchStatusPartial,
		}).
		Order("started_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ingestion.ErrBatchNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists batches for an organization, newest first
func (r *GormIngestBatchRepository) FindAll(ctx context.Context, orgID uuid.UUID, limit int) ([]*ingestion.IngestBatch, error) {
	var batchModels []models.IngestBatchModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("started_at DESC").
		Limit(limit).
		Find(&batchModels).Error; err != nil {
		return nil, err
	}

	batches := make([]*ingestion.IngestBatch, len(batchModels))
	for i := range batchModels {
		batches[i] = batchModels[i].ToDomain()
	}
	return batches, nil
}

// Ensure GormIngestBatchRepository implements IngestBatchRepository
var _ ingestion.IngestBatchRepository = (*GormIngestBatchRepository)(nil)
