package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormMirrorRepository implements MirrorRepository using GORM
type GormMirrorRepository struct {
	db *gorm.DB
}

// NewGormMirrorRepository creates a new GormMirrorRepository
func NewGormMirrorRepository(db *gorm.DB) *GormMirrorRepository {
	return &GormMirrorRepository{db: db}
}

// Save creates or updates a mirror record
func (r *GormMirrorRepository) Save(ctx context.Context, record *mirror.MirrorRecord) error {
	model := models.MirrorRecordModelFromDomain(record)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByID returns a record by ID within an organization
func (r *GormMirrorRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*mirror.MirrorRecord, error) {
	var model models.MirrorRecordModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mirror.ErrRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalID returns a record by its source-system identity
func (r *GormMirrorRepository) FindByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*mirror.MirrorRecord, error) {
	var model models.MirrorRecordModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ? AND external_id = ?", orgID, entityType, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mirror.ErrRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists records matching the filter
func (r *GormMirrorRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter mirror.RecordFilter) ([]*mirror.MirrorRecord, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.MirrorRecordModel{}).
		Where("org_id = ?", orgID)
	query = r.applyFilter(query, filter)

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

	var recordModels []models.MirrorRecordModel
	if err := query.
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&recordModels).Error; err != nil {
		return nil, 0, err
	}

	records := make([]*mirror.MirrorRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, total, nil
}

func (r *GormMirrorRepository) applyFilter(query *gorm.DB, filter mirror.RecordFilter) *gorm.DB {
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("name ILIKE ? OR external_id ILIKE ?", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	if filter.Discontinued != nil {
		query = query.Where("discontinued = ?", *filter.Discontinued)
	} else {
		query = query.Where("discontinued = ?", false)
	}
	return query
}

// MarkOrphans flags every record of the entity type not touched by the
// given batch as discontinued. The pre-flag state of each record is
// archived first so the version bump stays reconstructable from history.
func (r *GormMirrorRepository) MarkOrphans(ctx context.Context, orgID uuid.UUID, entityType string, batchID uuid.UUID) (int64, error) {
	var flagged int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orphanModels []models.MirrorRecordModel
		if err := tx.
			Where("org_id = ? AND entity_type = ? AND discontinued = ?", orgID, entityType, false).
			Where("raw_record_id NOT IN (?)",
				tx.Model(&models.RawRecordModel{}).Select("id").Where("batch_id = ?", batchID)).
			Find(&orphanModels).Error; err != nil {
			return err
		}

		if len(orphanModels) == 0 {
			return nil
		}

		snapshots := make([]*models.MirrorHistoryModel, len(orphanModels))
		ids := make([]uuid.UUID, len(orphanModels))
		for i := range orphanModels {
			record := orphanModels[i].ToDomain()
			snapshots[i] = models.MirrorHistoryModelFromDomain(record.Snapshot(mirror.ChangeOriginTransform))
			ids[i] = record.ID
		}
		if err := tx.Create(snapshots).Error; err != nil {
			return err
		}

		result := tx.Model(&models.MirrorRecordModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"discontinued": true,
				"version":      gorm.Expr("version + 1"),
				"updated_at":   time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		flagged = result.RowsAffected
		return nil
	})

	return flagged, err
}

// Ensure GormMirrorRepository implements MirrorRepository
var _ mirror.MirrorRepository = (*GormMirrorRepository)(nil)
