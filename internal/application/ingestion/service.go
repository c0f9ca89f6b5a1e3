package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/job"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/infrastructure/config"
	"github.com/syncline/backend/internal/infrastructure/sourceapi"
)

// ErrUnknownEndpoint is returned when no endpoint configuration exists
var ErrUnknownEndpoint = shared.NewDomainError("INGEST_UNKNOWN_ENDPOINT", "No configuration for the requested endpoint")

// SourceReader is the paginated read side of the source system
type SourceReader interface {
	FetchPage(ctx context.Context, endpoint string, offset, limit int, delta *sourceapi.DeltaFilter) (*sourceapi.Page, error)
}

// Service runs ingestion batches: it pulls raw records from the source
// system page by page and appends them, unmodified, into the raw layer.
type Service struct {
	batchRepo    ingestion.IngestBatchRepository
	rawRepo      ingestion.RawRecordRepository
	progressRepo job.ProgressRepository
	reader       SourceReader
	endpoints    map[string]ingestion.EndpointConfig
	chunkSize    int
	pageSize     int
	logger       *zap.Logger
}

// NewService creates an ingestion service
func NewService(
	batchRepo ingestion.IngestBatchRepository,
	rawRepo ingestion.RawRecordRepository,
	progressRepo job.ProgressRepository,
	reader SourceReader,
	endpoints []ingestion.EndpointConfig,
	ingestCfg config.IngestionConfig,
	sourceCfg config.SourceConfig,
	logger *zap.Logger,
) *Service {
	endpointMap := make(map[string]ingestion.EndpointConfig, len(endpoints))
	for _, ep := range endpoints {
		endpointMap[ep.Endpoint] = ep
	}

	chunkSize := ingestCfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = 500
	}
	pageSize := sourceCfg.PageSize
	if pageSize < 1 {
		pageSize = 100
	}

	return &Service{
		batchRepo:    batchRepo,
		rawRepo:      rawRepo,
		progressRepo: progressRepo,
		reader:       reader,
		endpoints:    endpointMap,
		chunkSize:    chunkSize,
		pageSize:     pageSize,
		logger:       logger,
	}
}

// Ingest pulls all records for an endpoint and appends them to the raw
// layer. The first sync for an endpoint is always full; delta mode needs a
// prior succeeded batch to seed its cursor. Failure mid-fetch fails the
// whole batch; failure mid-persist preserves the chunks already written.
// Progress is persisted under jobID so callers can poll while the batch
// runs in the background.
func (s *Service) Ingest(ctx context.Context, jobID, orgID uuid.UUID, endpoint string, mode ingestion.SyncMode) (*ingestion.IngestBatch, error) {
	epCfg, ok := s.endpoints[endpoint]
	if !ok {
		return nil, ErrUnknownEndpoint
	}

	previous, err := s.batchRepo.FindLastSucceeded(ctx, orgID, endpoint)
	if err != nil {
		if !errors.Is(err, ingestion.ErrBatchNotFound) {
			return nil, err
		}
		previous = nil
	}

	var delta *sourceapi.DeltaFilter
	if mode == ingestion.SyncModeDelta {
		if previous == nil || previous.Cursor == "" {
			// First sync for an endpoint is always full
			mode = ingestion.SyncModeFull
		} else {
			delta = &sourceapi.DeltaFilter{
				CursorType:  epCfg.CursorType,
				CursorField: epCfg.CursorField,
				Cursor:      previous.Cursor,
			}
		}
	}

	batch, err := ingestion.NewIngestBatch(orgID, endpoint, epCfg.EntityType, mode)
	if err != nil {
		return nil, err
	}
	if err := s.batchRepo.Save(ctx, batch); err != nil {
		return nil, err
	}

	if jobID == uuid.Nil {
		jobID = batch.ID
	}
	progress := job.NewProgress(jobID, orgID, job.KindIngestion)
	if err := s.progressRepo.Save(ctx, progress); err != nil {
		return nil, err
	}

	s.logger.Info("ingestion started",
		zap.String("batch_id", batch.ID.String()),
		zap.String("endpoint", endpoint),
		zap.String("mode", string(mode)),
	)

	docs, err := s.fetchAll(ctx, batch, epCfg, delta, progress)
	if err != nil {
		batch.Fail(0, err.Error())
		if saveErr := s.batchRepo.Save(ctx, batch); saveErr != nil {
			s.logger.Error("failed to persist failed batch", zap.Error(saveErr))
		}
		progress.Fail(err.Error())
		_ = s.progressRepo.Save(ctx, progress)
		return batch, err
	}

	batch.Fingerprint = ingestion.FingerprintSample(docs)
	if previous != nil {
		if drift := batch.Fingerprint.Drift(previous.Fingerprint); drift != "" {
			batch.DriftAlert = drift
			s.logger.Warn("schema drift detected",
				zap.String("batch_id", batch.ID.String()),
				zap.String("endpoint", endpoint),
				zap.String("drift", drift),
			)
		}
	}

	written, err := s.persistChunks(ctx, batch, epCfg, docs, progress)
	if err != nil {
		// Chunks already written stay in the raw layer
		batch.Fail(written, err.Error())
		if saveErr := s.batchRepo.Save(ctx, batch); saveErr != nil {
			s.logger.Error("failed to persist failed batch", zap.Error(saveErr))
		}
		progress.Fail(err.Error())
		_ = s.progressRepo.Save(ctx, progress)
		return batch, err
	}

	batch.Cursor = s.nextCursor(batch, epCfg, docs)
	if err := batch.Complete(written); err != nil {
		return nil, err
	}
	if err := s.batchRepo.Save(ctx, batch); err != nil {
		return nil, err
	}

	progress.Advance("done", written, written)
	progress.Complete(fmt.Sprintf("%d records ingested", written))
	if err := s.progressRepo.Save(ctx, progress); err != nil {
		s.logger.Error("failed to persist progress", zap.Error(err))
	}

	s.logger.Info("ingestion finished",
		zap.String("batch_id", batch.ID.String()),
		zap.String("status", string(batch.Status)),
		zap.Int("records", written),
	)
	return batch, nil
}

// fetchAll accumulates every page in memory before any chunk is persisted,
// so the raw layer only ever sees a consistent prefix of the batch
func (s *Service) fetchAll(ctx context.Context, batch *ingestion.IngestBatch, epCfg ingestion.EndpointConfig, delta *sourceapi.DeltaFilter, progress *job.Progress) ([]shared.Document, error) {
	pageSize := epCfg.PageSize
	if pageSize < 1 {
		pageSize = s.pageSize
	}

	var docs []shared.Document
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.reader.FetchPage(ctx, batch.Endpoint, offset, pageSize, delta)
		if err != nil {
			return nil, err
		}
		docs = append(docs, page.Records...)

		progress.Advance("fetching", len(docs), page.Total)
		if err := s.progressRepo.Save(ctx, progress); err != nil {
			s.logger.Error("failed to persist progress", zap.Error(err))
		}

		if !page.HasMore || len(page.Records) == 0 {
			return docs, nil
		}
		offset += len(page.Records)
	}
}

// persistChunks writes fixed-size transactional chunks and returns how many
// records made it in before any error
func (s *Service) persistChunks(ctx context.Context, batch *ingestion.IngestBatch, epCfg ingestion.EndpointConfig, docs []shared.Document, progress *job.Progress) (int, error) {
	written := 0
	chunk := make([]*ingestion.RawRecord, 0, s.chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := s.rawRepo.SaveChunk(ctx, chunk); err != nil {
			return err
		}
		written += len(chunk)
		chunk = chunk[:0]

		progress.Advance("persisting", written, len(docs))
		if err := s.progressRepo.Save(ctx, progress); err != nil {
			s.logger.Error("failed to persist progress", zap.Error(err))
		}
		return nil
	}

	for _, doc := range docs {
		externalID := extractExternalID(doc)
		if externalID == "" {
			batch.RecordError("record without id field skipped")
			continue
		}
		chunk = append(chunk, ingestion.NewRawRecord(batch.OrgID, batch.ID, epCfg.EntityType, externalID, doc))
		if len(chunk) >= s.chunkSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

// nextCursor derives the delta cursor the next run will send to the source
func (s *Service) nextCursor(batch *ingestion.IngestBatch, epCfg ingestion.EndpointConfig, docs []shared.Document) string {
	switch epCfg.CursorType {
	case ingestion.CursorTypeID:
		var maxID string
		for _, doc := range docs {
			if v, ok := doc[epCfg.CursorField]; ok {
				id := fmt.Sprintf("%v", v)
				if idAfter(id, maxID) {
					maxID = id
				}
			}
		}
		return maxID
	default:
		// Timestamp cursors use the batch start rather than the max record
		// timestamp, so records written upstream during the run are not lost
		return sourceapi.TimestampCursor(batch.StartedAt)
	}
}

// idAfter reports whether id sorts after max as a delta cursor. Numeric
// external IDs compare numerically so "10" does not sort before "9".
func idAfter(id, max string) bool {
	if max == "" {
		return id != ""
	}
	a, errA := strconv.ParseInt(id, 10, 64)
	b, errB := strconv.ParseInt(max, 10, 64)
	if errA == nil && errB == nil {
		return a > b
	}
	return id > max
}

// GetBatch returns a batch by ID within an organization
func (s *Service) GetBatch(ctx context.Context, orgID, batchID uuid.UUID) (*ingestion.IngestBatch, error) {
	return s.batchRepo.FindByID(ctx, orgID, batchID)
}

// ListBatches lists recent batches for an organization
func (s *Service) ListBatches(ctx context.Context, orgID uuid.UUID, limit int) ([]*ingestion.IngestBatch, error) {
	if limit < 1 {
		limit = 50
	}
	return s.batchRepo.FindAll(ctx, orgID, limit)
}

// GetProgress returns the progress row for an ingestion job
func (s *Service) GetProgress(ctx context.Context, orgID, jobID uuid.UUID) (*job.Progress, error) {
	return s.progressRepo.FindByJob(ctx, orgID, jobID)
}

func extractExternalID(doc shared.Document) string {
	if v, ok := doc["id"]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
