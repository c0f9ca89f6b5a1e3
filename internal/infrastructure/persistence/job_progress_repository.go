package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/job"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormJobProgressRepository implements ProgressRepository using GORM
type GormJobProgressRepository struct {
	db *gorm.DB
}

// NewGormJobProgressRepository creates a new GormJobProgressRepository
func NewGormJobProgressRepository(db *gorm.DB) *GormJobProgressRepository {
	return &GormJobProgressRepository{db: db}
}

// Save creates or updates a progress row
func (r *GormJobProgressRepository) Save(ctx context.Context, progress *job.Progress) error {
	model := models.JobProgressModelFromDomain(progress)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindByJob returns the progress row for a job within an organization
func (r *GormJobProgressRepository) FindByJob(ctx context.Context, orgID, jobID uuid.UUID) (*job.Progress, error) {
	var model models.JobProgressModel
	if err := r.db.WithContext(ctx).First(&model, "job_id = ? AND org_id = ?", jobID, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrProgressNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormJobProgressRepository implements ProgressRepository
var _ job.ProgressRepository = (*GormJobProgressRepository)(nil)
