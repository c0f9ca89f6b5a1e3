package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/mirror"
	"github.com/syncline/backend/internal/domain/shared"
)

// MirrorRecordModel is the persistence model for the mirror layer.
// The scalar columns (name, status, amount) duplicate promoted document
// fields for fast filtering without touching the JSONB payload.
type MirrorRecordModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID          uuid.UUID `gorm:"type:uuid;not null;index:idx_mirror_org_entity,priority:1"`
	EntityType     string    `gorm:"type:varchar(100);not null;index:idx_mirror_org_entity,priority:2"`
	ExternalID     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_mirror_external"`
	Version        int64     `gorm:"not null;default:1"`
	SourceVersion  string    `gorm:"type:varchar(100)"`
	DocumentJSON   string    `gorm:"type:jsonb;column:document"`
	Name           string    `gorm:"type:varchar(255);index"`
	Status         string    `gorm:"type:varchar(50);index"`
	Amount         float64
	Discontinued   bool      `gorm:"not null;default:false;index"`
	LastSyncedAt   time.Time `gorm:"not null"`
	RawRecordID    uuid.UUID `gorm:"type:uuid"`
	RulesetVersion int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MirrorRecordModel) TableName() string {
	return "mirror_records"
}

// ToDomain converts the persistence model to a domain MirrorRecord
func (m *MirrorRecordModel) ToDomain() *mirror.MirrorRecord {
	record := &mirror.MirrorRecord{
		ID:             m.ID,
		OrgID:          m.OrgID,
		EntityType:     m.EntityType,
		ExternalID:     m.ExternalID,
		Version:        m.Version,
		SourceVersion:  m.SourceVersion,
		Name:           m.Name,
		Status:         m.Status,
		Amount:         m.Amount,
		Discontinued:   m.Discontinued,
		LastSyncedAt:   m.LastSyncedAt,
		RawRecordID:    m.RawRecordID,
		RulesetVersion: m.RulesetVersion,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.DocumentJSON != "" {
		var doc shared.Document
		if err := json.Unmarshal([]byte(m.DocumentJSON), &doc); err == nil {
			record.Document = doc
		}
	}
	return record
}

// FromDomain populates the persistence model from a domain MirrorRecord
func (m *MirrorRecordModel) FromDomain(r *mirror.MirrorRecord) {
	m.ID = r.ID
	m.OrgID = r.OrgID
	m.EntityType = r.EntityType
	m.ExternalID = r.ExternalID
	m.Version = r.Version
	m.SourceVersion = r.SourceVersion
	m.Name = r.Name
	m.Status = r.Status
	m.Amount = r.Amount
	m.Discontinued = r.Discontinued
	m.LastSyncedAt = r.LastSyncedAt
	m.RawRecordID = r.RawRecordID
	m.RulesetVersion = r.RulesetVersion
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	if jsonBytes, err := json.Marshal(r.Document); err == nil {
		m.DocumentJSON = string(jsonBytes)
	}
}

// MirrorRecordModelFromDomain creates a new persistence model from a domain MirrorRecord
func MirrorRecordModelFromDomain(r *mirror.MirrorRecord) *MirrorRecordModel {
	m := &MirrorRecordModel{}
	m.FromDomain(r)
	return m
}

// MirrorHistoryModel is the persistence model for append-only mirror snapshots.
type MirrorHistoryModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primary_key"`
	OrgID         uuid.UUID           `gorm:"type:uuid;not null;index"`
	RecordID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_history_record_version,priority:1"`
	Version       int64               `gorm:"not null;index:idx_history_record_version,priority:2"`
	SourceVersion string              `gorm:"type:varchar(100)"`
	DocumentJSON  string              `gorm:"type:jsonb;column:document"`
	Origin        mirror.ChangeOrigin `gorm:"type:varchar(20);not null"`
	ArchivedAt    time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MirrorHistoryModel) TableName() string {
	return "mirror_history"
}

// ToDomain converts the persistence model to a domain MirrorHistory
func (m *MirrorHistoryModel) ToDomain() *mirror.MirrorHistory {
	h := &mirror.MirrorHistory{
		ID:            m.ID,
		OrgID:         m.OrgID,
		RecordID:      m.RecordID,
		Version:       m.Version,
		SourceVersion: m.SourceVersion,
		Origin:        m.Origin,
		ArchivedAt:    m.ArchivedAt,
	}
	if m.DocumentJSON != "" {
		var doc shared.Document
		if err := json.Unmarshal([]byte(m.DocumentJSON), &doc); err == nil {
			h.Document = doc
		}
	}
	return h
}

// MirrorHistoryModelFromDomain creates a new persistence model from a domain MirrorHistory
func MirrorHistoryModelFromDomain(h *mirror.MirrorHistory) *MirrorHistoryModel {
	m := &MirrorHistoryModel{
		ID:            h.ID,
		OrgID:         h.OrgID,
		RecordID:      h.RecordID,
		Version:       h.Version,
		SourceVersion: h.SourceVersion,
		Origin:        h.Origin,
		ArchivedAt:    h.ArchivedAt,
	}
	if jsonBytes, err := json.Marshal(h.Document); err == nil {
		m.DocumentJSON = string(jsonBytes)
	}
	return m
}

// ModificationModel is the persistence model for pending user edits.
type ModificationModel struct {
	ID          uuid.UUID                 `gorm:"type:uuid;primary_key"`
	OrgID       uuid.UUID                 `gorm:"type:uuid;not null;index:idx_mod_org_user,priority:1"`
	UserID      uuid.UUID                 `gorm:"type:uuid;not null;index:idx_mod_org_user,priority:2"`
	RecordID    uuid.UUID                 `gorm:"type:uuid;not null;index"`
	DeltaJSON   string                    `gorm:"type:jsonb;column:delta"`
	BaseVersion int64                     `gorm:"not null"`
	Status      mirror.ModificationStatus `gorm:"type:varchar(20);not null;index"`
	CreatedAt   time.Time                 `gorm:"not null"`
	UpdatedAt   time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ModificationModel) TableName() string {
	return "modifications"
}

// ToDomain converts the persistence model to a domain Modification
func (m *ModificationModel) ToDomain() *mirror.Modification {
	mod := &mirror.Modification{
		ID:          m.ID,
		OrgID:       m.OrgID,
		UserID:      m.UserID,
		RecordID:    m.RecordID,
		BaseVersion: m.BaseVersion,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.DeltaJSON != "" {
		var delta shared.Document
		if err := json.Unmarshal([]byte(m.DeltaJSON), &delta); err == nil {
			mod.Delta = delta
		}
	}
	return mod
}

// FromDomain populates the persistence model from a domain Modification
func (m *ModificationModel) FromDomain(mod *mirror.Modification) {
	m.ID = mod.ID
	m.OrgID = mod.OrgID
	m.UserID = mod.UserID
	m.RecordID = mod.RecordID
	m.BaseVersion = mod.BaseVersion
	m.Status = mod.Status
	m.CreatedAt = mod.CreatedAt
	m.UpdatedAt = mod.UpdatedAt
	if jsonBytes, err := json.Marshal(mod.Delta); err == nil {
		m.DeltaJSON = string(jsonBytes)
	}
}

// ModificationModelFromDomain creates a new persistence model from a domain Modification
func ModificationModelFromDomain(mod *mirror.Modification) *ModificationModel {
	m := &ModificationModel{}
	m.FromDomain(mod)
	return m
}
