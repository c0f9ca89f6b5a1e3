package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/conflict"
	"github.com/syncline/backend/internal/domain/shared"
)

// SyncConflictModel is the persistence model for sync conflicts.
type SyncConflictModel struct {
	ID                 uuid.UUID                   `gorm:"type:uuid;primary_key"`
	OrgID              uuid.UUID                   `gorm:"type:uuid;not null;index:idx_conflict_org_status,priority:1"`
	ModificationID     uuid.UUID                   `gorm:"type:uuid;not null;index"`
	RecordID           uuid.UUID                   `gorm:"type:uuid;not null;index"`
	BaseVersion        int64                       `gorm:"not null"`
	MirrorVersion      int64                       `gorm:"not null"`
	LocalDeltaJSON     string                      `gorm:"type:jsonb;column:local_delta"`
	SourceDocumentJSON string                      `gorm:"type:jsonb;column:source_document"`
	ConflictFieldsJSON string                      `gorm:"type:jsonb;column:conflict_fields"`
	Status             conflict.ConflictStatus     `gorm:"type:varchar(20);not null;index:idx_conflict_org_status,priority:2"`
	Strategy           conflict.ResolutionStrategy `gorm:"type:varchar(20)"`
	MergedResultJSON   string                      `gorm:"type:jsonb;column:merged_result"`
	DetectedAt         time.Time                   `gorm:"not null"`
	ResolvedAt         *time.Time
}

// TableName returns the table name for GORM
func (SyncConflictModel) TableName() string {
	return "sync_conflicts"
}

// ToDomain converts the persistence model to a domain SyncConflict
func (m *SyncConflictModel) ToDomain() *conflict.SyncConflict {
	c := &conflict.SyncConflict{
		ID:             m.ID,
		OrgID:          m.OrgID,
		ModificationID: m.ModificationID,
		RecordID:       m.RecordID,
		BaseVersion:    m.BaseVersion,
		MirrorVersion:  m.MirrorVersion,
		Status:         m.Status,
		Strategy:       m.Strategy,
		DetectedAt:     m.DetectedAt,
		ResolvedAt:     m.ResolvedAt,
	}
	if m.LocalDeltaJSON != "" {
		var delta shared.Document
		if err := json.Unmarshal([]byte(m.LocalDeltaJSON), &delta); err == nil {
			c.LocalDelta = delta
		}
	}
	if m.SourceDocumentJSON != "" {
		var doc shared.Document
		if err := json.Unmarshal([]byte(m.SourceDocumentJSON), &doc); err == nil {
			c.SourceDocument = doc
		}
	}
	if m.ConflictFieldsJSON != "" {
		var fields []string
		if err := json.Unmarshal([]byte(m.ConflictFieldsJSON), &fields); err == nil {
			c.ConflictFields = fields
		}
	}
	if m.MergedResultJSON != "" {
		var merged shared.Document
		if err := json.Unmarshal([]byte(m.MergedResultJSON), &merged); err == nil {
			c.MergedResult = merged
		}
	}
	return c
}

// FromDomain populates the persistence model from a domain SyncConflict
func (m *SyncConflictModel) FromDomain(c *conflict.SyncConflict) {
	m.ID = c.ID
	m.OrgID = c.OrgID
	m.ModificationID = c.ModificationID
	m.RecordID = c.RecordID
	m.BaseVersion = c.BaseVersion
	m.MirrorVersion = c.MirrorVersion
	m.Status = c.Status
	m.Strategy = c.Strategy
	m.DetectedAt = c.DetectedAt
	m.ResolvedAt = c.ResolvedAt
	if jsonBytes, err := json.Marshal(c.LocalDelta); err == nil {
		m.LocalDeltaJSON = string(jsonBytes)
	}
	if jsonBytes, err := json.Marshal(c.SourceDocument); err == nil {
		m.SourceDocumentJSON = string(jsonBytes)
	}
	if jsonBytes, err := json.Marshal(c.ConflictFields); err == nil {
		m.ConflictFieldsJSON = string(jsonBytes)
	}
	if c.MergedResult != nil {
		if jsonBytes, err := json.Marshal(c.MergedResult); err == nil {
			m.MergedResultJSON = string(jsonBytes)
		}
	}
}

// SyncConflictModelFromDomain creates a new persistence model from a domain SyncConflict
func SyncConflictModelFromDomain(c *conflict.SyncConflict) *SyncConflictModel {
	m := &SyncConflictModel{}
	m.FromDomain(c)
	return m
}
