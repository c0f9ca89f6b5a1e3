package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/job"
)

// JobProgressModel is the persistence model for batch job progress.
type JobProgressModel struct {
	JobID     uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind      job.Kind  `gorm:"type:varchar(20);not null"`
	State     job.State `gorm:"type:varchar(20);not null"`
	Phase     string    `gorm:"type:varchar(100)"`
	Processed int       `gorm:"not null;default:0"`
	Total     int       `gorm:"not null;default:0"`
	Message   string    `gorm:"type:text"`
	StartedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobProgressModel) TableName() string {
	return "job_progress"
}

// ToDomain converts the persistence model to a domain Progress
func (m *JobProgressModel) ToDomain() *job.Progress {
	return &job.Progress{
		JobID:     m.JobID,
		OrgID:     m.OrgID,
		Kind:      m.Kind,
		State:     m.State,
		Phase:     m.Phase,
		Processed: m.Processed,
		Total:     m.Total,
		Message:   m.Message,
		StartedAt: m.StartedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// JobProgressModelFromDomain creates a new persistence model from a domain Progress
func JobProgressModelFromDomain(p *job.Progress) *JobProgressModel {
	return &JobProgressModel{
		JobID:     p.JobID,
		OrgID:     p.OrgID,
		Kind:      p.Kind,
		State:     p.State,
		Phase:     p.Phase,
		Processed: p.Processed,
		Total:     p.Total,
		Message:   p.Message,
		StartedAt: p.StartedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
