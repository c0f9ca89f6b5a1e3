package job

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// ErrProgressNotFound is returned when no progress row exists for a job
var ErrProgressNotFound = shared.NewDomainError("JOB_PROGRESS_NOT_FOUND", "Job progress not found")

// Kind identifies which batch job a progress row belongs to
type Kind string

const (
	KindIngestion Kind = "ingestion"
	KindTransform Kind = "transform"
)

// State is the lifecycle state of a batch job
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Progress is a persisted progress row for a long-running batch job,
// updated transactionally alongside the batch's own state so polling
// survives process restarts and works across multiple workers.
type Progress struct {
	JobID     uuid.UUID
	OrgID     uuid.UUID
	Kind      Kind
	State     State
	Phase     string
	Processed int
	Total     int
	Message   string
	StartedAt time.Time
	UpdatedAt time.Time
}

// NewProgress starts tracking a batch job
func NewProgress(jobID, orgID uuid.UUID, kind Kind) *Progress {
	now := time.Now()
	return &Progress{
		JobID:     jobID,
		OrgID:     orgID,
		Kind:      kind,
		State:     StateRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Advance updates the job's phase and counters
func (p *Progress) Advance(phase string, processed, total int) {
	p.Phase = phase
	p.Processed = processed
	p.Total = total
	p.UpdatedAt = time.Now()
}

// Complete marks the job as finished
func (p *Progress) Complete(message string) {
	p.State = StateCompleted
	p.Message = message
	p.UpdatedAt = time.Now()
}

// Fail marks the job as failed
func (p *Progress) Fail(message string) {
	p.State = StateFailed
	p.Message = message
	p.UpdatedAt = time.Now()
}

// ProgressRepository defines persistence for job progress rows
type ProgressRepository interface {
	// Save creates or updates a progress row
	Save(ctx context.Context, progress *Progress) error
	// FindByJob returns the progress row for a job within an organization
	FindByJob(ctx context.Context, orgID, jobID uuid.UUID) (*Progress, error)
}
