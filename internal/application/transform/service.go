package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/job"
	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/transform"
	"github.com/syncline/backend/internal/infrastructure/config"
)

// Options tunes one transformation run
type Options struct {
	// ReplayAt overrides the instant used to select the ruleset version.
	// Zero uses the batch's own start time, so replaying a historical batch
	// picks the ruleset that was active when it was ingested.
	ReplayAt time.Time
}

// Result summarizes one transformation run. Errors holds a bounded sample;
// the full count is in ErrorCount.
type Result struct {
	BatchID        uuid.UUID
	RulesetVersion int
	Promoted       int
	Inserted       int
	Updated        int
	Unchanged      int
	Skipped        int
	OrphansFlagged int64
	ErrorCount     int
	Errors         []string
}

// Service promotes raw records into the mirror layer by applying the
// versioned mapping ruleset active for the batch's entity type.
type Service struct {
	batchRepo       ingestion.IngestBatchRepository
	rawRepo         ingestion.RawRecordRepository
	rulesetRepo     transform.RuleSetRepository
	mirrorRepo      mirror.MirrorRepository
	historyRepo     mirror.HistoryRepository
	lineageRepo     transform.LineageRepository
	progressRepo    job.ProgressRepository
	batchSize       int
	errorSampleSize int
	logger          *zap.Logger
}

// NewService creates a transformation service
func NewService(
	batchRepo ingestion.IngestBatchRepository,
	rawRepo ingestion.RawRecordRepository,
	rulesetRepo transform.RuleSetRepository,
	mirrorRepo mirror.MirrorRepository,
	historyRepo mirror.HistoryRepository,
	lineageRepo transform.LineageRepository,
	progressRepo job.ProgressRepository,
	cfg config.IngestionConfig,
	logger *zap.Logger,
) *Service {
	batchSize := cfg.TransformBatchSize
	if batchSize < 1 {
		batchSize = 200
	}
	errorSampleSize := cfg.ErrorSampleSize
	if errorSampleSize < 1 {
		errorSampleSize = 20
	}
	return &Service{
		batchRepo:       batchRepo,
		rawRepo:         rawRepo,
		rulesetRepo:     rulesetRepo,
		mirrorRepo:      mirrorRepo,
		historyRepo:     historyRepo,
		lineageRepo:     lineageRepo,
		progressRepo:    progressRepo,
		batchSize:       batchSize,
		errorSampleSize: errorSampleSize,
		logger:          logger,
	}
}

// Transform runs one batch through the active ruleset. Records are
// processed in order; a failing record is counted and sampled but never
// aborts its siblings. Full-mode batches flag mirror records the batch no
// longer saw as discontinued.
func (s *Service) Transform(ctx context.Context, jobID, orgID, batchID uuid.UUID, opts Options) (*Result, error) {
	batch, err := s.batchRepo.FindByID(ctx, orgID, batchID)
	if err != nil {
		return nil, err
	}

	at := opts.ReplayAt
	if at.IsZero() {
		at = batch.StartedAt
	}
	rs, err := s.rulesetRepo.FindActiveAt(ctx, batch.OrgID, batch.EntityType, at)
	if err != nil {
		return nil, err
	}

	if jobID == uuid.Nil {
		jobID = uuid.New()
	}
	progress := job.NewProgress(jobID, batch.OrgID, job.KindTransform)
	if err := s.progressRepo.Save(ctx, progress); err != nil {
		return nil, err
	}

	total, err := s.rawRepo.CountByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transformation started",
		zap.String("batch_id", batchID.String()),
		zap.String("entity_type", batch.EntityType),
		zap.Int("ruleset_version", rs.Version),
		zap.Int64("records", total),
	)

	result := &Result{BatchID: batchID, RulesetVersion: rs.Version}
	processed := 0
	var cursor *uuid.UUID
	for {
		if err := ctx.Err(); err != nil {
			progress.Fail(err.Error())
			_ = s.progressRepo.Save(ctx, progress)
			return result, err
		}

		records, err := s.rawRepo.FindByBatch(ctx, batchID, cursor, s.batchSize)
		if err != nil {
			progress.Fail(err.Error())
			_ = s.progressRepo.Save(ctx, progress)
			return result, err
		}
		if len(records) == 0 {
			break
		}

		for _, raw := range records {
			s.transformRecord(ctx, batch, rs, raw, result)
		}
		processed += len(records)
		cursor = &records[len(records)-1].ID

		progress.Advance("transforming", processed, int(total))
		if err := s.progressRepo.Save(ctx, progress); err != nil {
			s.logger.Error("failed to persist progress", zap.Error(err))
		}
	}

	if batch.Mode == ingestion.SyncModeFull {
		flagged, err := s.mirrorRepo.MarkOrphans(ctx, batch.OrgID, batch.EntityType, batchID)
		if err != nil {
			progress.Fail(err.Error())
			_ = s.progressRepo.Save(ctx, progress)
			return result, err
		}
		result.OrphansFlagged = flagged
	}

	progress.Advance("done", processed, int(total))
	progress.Complete(fmt.Sprintf("%d inserted, %d updated, %d unchanged, %d skipped, %d errors",
		result.Inserted, result.Updated, result.Unchanged, result.Skipped, result.ErrorCount))
	if err := s.progressRepo.Save(ctx, progress); err != nil {
		s.logger.Error("failed to persist progress", zap.Error(err))
	}

	s.logger.Info("transformation finished",
		zap.String("batch_id", batchID.String()),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped", result.Skipped),
		zap.Int64("orphans_flagged", result.OrphansFlagged),
		zap.Int("errors", result.ErrorCount),
	)
	return result, nil
}

// transformRecord promotes one raw record into the mirror
func (s *Service) transformRecord(ctx context.Context, batch *ingestion.IngestBatch, rs *transform.RuleSet, raw *ingestion.RawRecord, result *Result) {
	promoted, err := transform.EvaluatePromotionRule(rs.PromotionRule, raw.Payload)
	if err != nil {
		// A broken predicate promotes rather than silently dropping data
		s.recordError(result, fmt.Sprintf("record %s: promotion rule error: %v", raw.ExternalID, err))
		promoted = true
	}
	if !promoted {
		result.Skipped++
		return
	}
	result.Promoted++

	mapped, err := transform.ApplyMappings(rs, raw.Payload)
	if err != nil {
		s.recordError(result, fmt.Sprintf("record %s: %v", raw.ExternalID, err))
		return
	}

	sourceVersion := extractSourceVersion(raw.Payload)

	existing, err := s.mirrorRepo.FindByExternalID(ctx, batch.OrgID, batch.EntityType, raw.ExternalID)
	switch {
	case err == nil:
		if !existing.Discontinued && len(shared.ChangedFields(existing.Document, mapped.Document)) == 0 {
			// Re-running a batch with an unchanged document must not bump
			// the version or stack no-op history rows. The raw pointer is
			// still refreshed so orphan flagging sees the record.
			existing.RawRecordID = raw.ID
			existing.RulesetVersion = rs.Version
			if err := s.mirrorRepo.Save(ctx, existing); err != nil {
				s.recordError(result, fmt.Sprintf("record %s: %v", raw.ExternalID, err))
				return
			}
			result.Unchanged++
			return
		}
		snapshot := existing.Snapshot(mirror.ChangeOriginTransform)
		if err := s.historyRepo.Save(ctx, snapshot); err != nil {
			s.recordError(result, fmt.Sprintf("record %s: history: %v", raw.ExternalID, err))
			return
		}
		existing.ApplyUpstream(mapped.Document, sourceVersion)
		applyPromotedColumns(existing, mapped.Promoted)
		existing.RawRecordID = raw.ID
		existing.RulesetVersion = rs.Version
		if err := s.mirrorRepo.Save(ctx, existing); err != nil {
			s.recordError(result, fmt.Sprintf("record %s: %v", raw.ExternalID, err))
			return
		}
		s.saveLineage(ctx, batch, rs, raw, existing, result)
		result.Updated++
	case errors.Is(err, mirror.ErrRecordNotFound):
		record := mirror.NewMirrorRecord(batch.OrgID, batch.EntityType, raw.ExternalID, mapped.Document)
		record.SourceVersion = sourceVersion
		applyPromotedColumns(record, mapped.Promoted)
		record.RawRecordID = raw.ID
		record.RulesetVersion = rs.Version
		if err := s.mirrorRepo.Save(ctx, record); err != nil {
			s.recordError(result, fmt.Sprintf("record %s: %v", raw.ExternalID, err))
			return
		}
		s.saveLineage(ctx, batch, rs, raw, record, result)
		result.Inserted++
	default:
		s.recordError(result, fmt.Sprintf("record %s: %v", raw.ExternalID, err))
	}
}

func (s *Service) saveLineage(ctx context.Context, batch *ingestion.IngestBatch, rs *transform.RuleSet, raw *ingestion.RawRecord, record *mirror.MirrorRecord, result *Result) {
	lineage := transform.NewLineage(batch.OrgID, record.ID, raw.ID, batch.ID, rs.Version, record.Version)
	if err := s.lineageRepo.Save(ctx, lineage); err != nil {
		s.recordError(result, fmt.Sprintf("record %s: lineage: %v", raw.ExternalID, err))
	}
}

// recordError counts the error and keeps a bounded sample for the result
func (s *Service) recordError(result *Result, msg string) {
	result.ErrorCount++
	if len(result.Errors) < s.errorSampleSize {
		result.Errors = append(result.Errors, msg)
	}
}

// GetProgress returns the progress row for a transformation job
func (s *Service) GetProgress(ctx context.Context, orgID, jobID uuid.UUID) (*job.Progress, error) {
	return s.progressRepo.FindByJob(ctx, orgID, jobID)
}

// CreateRuleSet publishes a new ruleset version valid from the given time.
// The previously open version has its validity window closed at the same
// instant, so every moment in time maps to exactly one version.
func (s *Service) CreateRuleSet(ctx context.Context, orgID uuid.UUID, entityType, promotionRule string, mappings []transform.FieldMapping, validFrom time.Time) (*transform.RuleSet, error) {
	if validFrom.IsZero() {
		validFrom = time.Now()
	}

	version := 1
	current, err := s.rulesetRepo.FindActiveAt(ctx, orgID, entityType, validFrom)
	switch {
	case err == nil:
		version = current.Version + 1
		current.ValidUntil = &validFrom
		if err := s.rulesetRepo.Save(ctx, current); err != nil {
			return nil, err
		}
	case errors.Is(err, transform.ErrNoActiveRuleset):
		// First version for this entity type
	default:
		return nil, err
	}

	rs, err := transform.NewRuleSet(orgID, entityType, version, promotionRule, mappings, validFrom)
	if err != nil {
		return nil, err
	}
	if err := s.rulesetRepo.Save(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// ListRuleSets lists all ruleset versions for an entity type
func (s *Service) ListRuleSets(ctx context.Context, orgID uuid.UUID, entityType string) ([]*transform.RuleSet, error) {
	return s.rulesetRepo.FindAll(ctx, orgID, entityType)
}

// GetLineage lists the transformation lineage of a mirror record
func (s *Service) GetLineage(ctx context.Context, recordID uuid.UUID) ([]*transform.Lineage, error) {
	return s.lineageRepo.FindByRecord(ctx, recordID)
}

// applyPromotedColumns copies promoted fields into the scalar mirror columns
func applyPromotedColumns(record *mirror.MirrorRecord, promoted map[string]any) {
	if v, ok := promoted["name"].(string); ok {
		record.Name = v
	}
	if v, ok := promoted["status"].(string); ok {
		record.Status = v
	}
	switch v := promoted["amount"].(type) {
	case float64:
		record.Amount = v
	case int:
		record.Amount = float64(v)
	case int64:
		record.Amount = float64(v)
	}
}

func extractSourceVersion(doc shared.Document) string {
	if v, ok := doc["version"]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
