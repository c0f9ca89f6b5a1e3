package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/shared"
)

// RawRecordModel is the persistence model for the immutable raw layer.
type RawRecordModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID       uuid.UUID `gorm:"type:uuid;not null;index:idx_raw_org,priority:1"`
	BatchID     uuid.UUID `gorm:"type:uuid;not null;index:idx_raw_batch,priority:1"`
	EntityType  string    `gorm:"type:varchar(100);not null"`
	ExternalID  string    `gorm:"type:varchar(100);not null;index"`
	PayloadJSON string    `gorm:"type:jsonb;column:payload"`
	Fingerprint string    `gorm:"type:text"`
	IngestedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RawRecordModel) TableName() string {
	return "raw_records"
}

// ToDomain converts the persistence model to a domain RawRecord
func (m *RawRecordModel) ToDomain() *ingestion.RawRecord {
	record := &ingestion.RawRecord{
		ID:          m.ID,
		OrgID:       m.OrgID,
		BatchID:     m.BatchID,
		EntityType:  m.EntityType,
		ExternalID:  m.ExternalID,
		Fingerprint: m.Fingerprint,
		IngestedAt:  m.IngestedAt,
	}
	if m.PayloadJSON != "" {
		var doc shared.Document
		if err := json.Unmarshal([]byte(m.PayloadJSON), &doc); err == nil {
			record.Payload = doc
		}
	}
	return record
}

// FromDomain populates the persistence model from a domain RawRecord
func (m *RawRecordModel) FromDomain(r *ingestion.RawRecord) {
	m.ID = r.ID
	m.OrgID = r.OrgID
	m.BatchID = r.BatchID
	m.EntityType = r.EntityType
	m.ExternalID = r.ExternalID
	m.Fingerprint = r.Fingerprint
	m.IngestedAt = r.IngestedAt
	if jsonBytes, err := json.Marshal(r.Payload); err == nil {
		m.PayloadJSON = string(jsonBytes)
	}
}

// RawRecordModelFromDomain creates a new persistence model from a domain RawRecord
func RawRecordModelFromDomain(r *ingestion.RawRecord) *RawRecordModel {
	m := &RawRecordModel{}
	m.FromDomain(r)
	return m
}

// IngestBatchModel is the persistence model for ingestion run metadata.
type IngestBatchModel struct {
	ID              uuid.UUID             `gorm:"type:uuid;primary_key"`
	OrgID           uuid.UUID             `gorm:"type:uuid;not null;index:idx_batch_org_endpoint,priority:1"`
	Endpoint        string                `gorm:"type:varchar(255);not null;index:idx_batch_org_endpoint,priority:2"`
	EntityType      string                `gorm:"type:varchar(100);not null"`
	Mode            ingestion.SyncMode    `gorm:"type:varchar(10);not null"`
	Status          ingestion.BatchStatus `gorm:"type:varchar(20);not null;index"`
	RecordCount     int                   `gorm:"not null;default:0"`
	FingerprintJSON string                `gorm:"type:jsonb;column:fingerprint"`
	DriftAlert      string                `gorm:"type:text"`
	Cursor          string                `gorm:"type:varchar(255)"`
	ErrorsJSON      string                `gorm:"type:jsonb;column:errors"`
	StartedAt       time.Time             `gorm:"not null"`
	CompletedAt     *time.Time
}

// TableName returns the table name for GORM
func (IngestBatchModel) TableName() string {
	return "ingest_batches"
}

// ToDomain converts the persistence model to a domain IngestBatch
func (m *IngestBatchModel) ToDomain() *ingestion.IngestBatch {
	batch := &ingestion.IngestBatch{
		ID:          m.ID,
		OrgID:       m.OrgID,
		Endpoint:    m.Endpoint,
		EntityType:  m.EntityType,
		Mode:        m.Mode,
		Status:      m.Status,
		RecordCount: m.RecordCount,
		DriftAlert:  m.DriftAlert,
		Cursor:      m.Cursor,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	if m.FingerprintJSON != "" {
		var fp ingestion.SchemaFingerprint
		if err := json.Unmarshal([]byte(m.FingerprintJSON), &fp); err == nil {
			batch.Fingerprint = &fp
		}
	}
	if m.ErrorsJSON != "" {
		var errs []string
		if err := json.Unmarshal([]byte(m.ErrorsJSON), &errs); err == nil {
			batch.Errors = errs
		}
	}
	return batch
}

// FromDomain populates the persistence model from a domain IngestBatch
func (m *IngestBatchModel) FromDomain(b *ingestion.IngestBatch) {
	m.ID = b.ID
	m.OrgID = b.OrgID
	m.Endpoint = b.Endpoint
	m.EntityType = b.EntityType
	m.Mode = b.Mode
	m.Status = b.Status
	m.RecordCount = b.RecordCount
	m.DriftAlert = b.DriftAlert
	m.Cursor = b.Cursor
	m.StartedAt = b.StartedAt
	m.CompletedAt = b.CompletedAt
	if b.Fingerprint != nil {
		if jsonBytes, err := json.Marshal(b.Fingerprint); err == nil {
			m.FingerprintJSON = string(jsonBytes)
		}
	}
	if jsonBytes, err := json.Marshal(b.Errors); err == nil {
		m.ErrorsJSON = string(jsonBytes)
	}
}

// IngestBatchModelFromDomain creates a new persistence model from a domain IngestBatch
func IngestBatchModelFromDomain(b *ingestion.IngestBatch) *IngestBatchModel {
	m := &IngestBatchModel{}
	m.FromDomain(b)
	return m
}
