package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/transform"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormRuleSetRepository implements RuleSetRepository using GORM
type GormRuleSetRepository struct {
	db *gorm.DB
}

// NewGormRuleSetRepository creates a new GormRuleSetRepository
func NewGormRuleSetRepository(db *gorm.DB) *GormRuleSetRepository {
	return &GormRuleSetRepository{db: db}
}

// Save creates or updates a ruleset version
func (r *GormRuleSetRepository) Save(ctx context.Context, rs *transform.RuleSet) error {
	model := models.RuleSetModelFromDomain(rs)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindActiveAt returns the ruleset version active at the given instant.
// This is the time-travel lookup: replaying a historical batch passes the
// batch's original ingestion time here.
func (r *GormRuleSetRepository) FindActiveAt(ctx context.Context, orgID uuid.UUID, entityType string, at time.Time) (*transform.RuleSet, error) {
	var model models.RuleSetModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ? AND valid_from <= ?", orgID, entityType, at).
		Where("valid_until IS NULL OR valid_until > ?", at).
		Order("version DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transform.ErrNoActiveRuleset
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByVersion returns a specific ruleset version
func (r *GormRuleSetRepository) FindByVersion(ctx context.Context, orgID uuid.UUID, entityType string, version int) (*transform.RuleSet, error) {
	var model models.RuleSetModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ? AND version = ?", orgID, entityType, version).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transform.ErrRulesetNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists all versions for an entity type, newest first
func (r *GormRuleSetRepository) FindAll(ctx context.Context, orgID uuid.UUID, entityType string) ([]*transform.RuleSet, error) {
	var rulesetModels []models.RuleSetModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ?", orgID, entityType).
		Order("version DESC").
		Find(&rulesetModels).Error; err != nil {
		return nil, err
	}

	rulesets := make([]*transform.RuleSet, len(rulesetModels))
	for i := range rulesetModels {
		rulesets[i] = rulesetModels[i].ToDomain()
	}
	return rulesets, nil
}

// Ensure GormRuleSetRepository implements RuleSetRepository
var _ transform.RuleSetRepository = (*GormRuleSetRepository)(nil)
