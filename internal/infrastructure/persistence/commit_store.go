package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/writequeue"
	"github.com/syncline/backend/internal/infrastructure/persistence/models"
)

// GormCommitStore applies the success path of a write-back in one database
// transaction: archive the pre-write snapshot, apply the delta to the
// mirror, update the modification, and complete the queue item. Either all
// of it lands or none of it does.
type GormCommitStore struct {
	db *gorm.DB
}

// NewGormCommitStore creates a new GormCommitStore
func NewGormCommitStore(db *gorm.DB) *GormCommitStore {
	return &GormCommitStore{db: db}
}

// CommitWrite persists the outcome of a successful upstream write
func (s *GormCommitStore) CommitWrite(ctx context.Context, snapshot *mirror.MirrorHistory, record *mirror.MirrorRecord, mod *mirror.Modification, item *writequeue.Item) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.MirrorHistoryModelFromDomain(snapshot)).Error; err != nil {
			return err
		}
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(models.MirrorRecordModelFromDomain(record)).Error; err != nil {
			return err
		}
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(models.ModificationModelFromDomain(mod)).Error; err != nil {
			return err
		}
		return tx.Save(models.WriteQueueItemModelFromDomain(item)).Error
	})
}
