package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/transform"
)

// RuleSetModel is the persistence model for versioned mapping rulesets.
type RuleSetModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID         uuid.UUID `gorm:"type:uuid;not null;index:idx_ruleset_org_entity,priority:1"`
	EntityType    string    `gorm:"type:varchar(100);not null;index:idx_ruleset_org_entity,priority:2"`
	Version       int       `gorm:"not null"`
	PromotionRule string    `gorm:"type:text"`
	MappingsJSON  string    `gorm:"type:jsonb;column:mappings"`
	ValidFrom     time.Time `gorm:"not null;index"`
	ValidUntil    *time.Time
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RuleSetModel) TableName() string {
	return "mapping_rulesets"
}

// ToDomain converts the persistence model to a domain RuleSet
func (m *RuleSetModel) ToDomain() *transform.RuleSet {
	rs := &transform.RuleSet{
		ID:            m.ID,
		OrgID:         m.OrgID,
		EntityType:    m.EntityType,
		Version:       m.Version,
		PromotionRule: m.PromotionRule,
		ValidFrom:     m.ValidFrom,
		ValidUntil:    m.ValidUntil,
		CreatedAt:     m.CreatedAt,
	}
	if m.MappingsJSON != "" {
		var mappings []transform.FieldMapping
		if err := json.Unmarshal([]byte(m.MappingsJSON), &mappings); err == nil {
			rs.Mappings = mappings
		}
	}
	return rs
}

// FromDomain populates the persistence model from a domain RuleSet
func (m *RuleSetModel) FromDomain(rs *transform.RuleSet) {
	m.ID = rs.ID
	m.OrgID = rs.OrgID
	m.EntityType = rs.EntityType
	m.Version = rs.Version
	m.PromotionRule = rs.PromotionRule
	m.ValidFrom = rs.ValidFrom
	m.ValidUntil = rs.ValidUntil
	m.CreatedAt = rs.CreatedAt
	if jsonBytes, err := json.Marshal(rs.Mappings); err == nil {
		m.MappingsJSON = string(jsonBytes)
	}
}

// RuleSetModelFromDomain creates a new persistence model from a domain RuleSet
func RuleSetModelFromDomain(rs *transform.RuleSet) *RuleSetModel {
	m := &RuleSetModel{}
	m.FromDomain(rs)
	return m
}

// LineageModel is the persistence model for transformation lineage.
type LineageModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID          uuid.UUID `gorm:"type:uuid;not null;index"`
	RecordID       uuid.UUID `gorm:"type:uuid;not null;index"`
	RawRecordID    uuid.UUID `gorm:"type:uuid;not null"`
	BatchID        uuid.UUID `gorm:"type:uuid;not null;index"`
	RulesetVersion int       `gorm:"not null"`
	MirrorVersion  int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LineageModel) TableName() string {
	return "transform_lineage"
}

// ToDomain converts the persistence model to a domain Lineage
func (m *LineageModel) ToDomain() *transform.Lineage {
	return &transform.Lineage{
		ID:             m.ID,
		OrgID:          m.OrgID,
		RecordID:       m.RecordID,
		RawRecordID:    m.RawRecordID,
		BatchID:        m.BatchID,
		RulesetVersion: m.RulesetVersion,
		MirrorVersion:  m.MirrorVersion,
		CreatedAt:      m.CreatedAt,
	}
}

// LineageModelFromDomain creates a new persistence model from a domain Lineage
func LineageModelFromDomain(l *transform.Lineage) *LineageModel {
	return &LineageModel{
		ID:             l.ID,
		OrgID:          l.OrgID,
		RecordID:       l.RecordID,
		RawRecordID:    l.RawRecordID,
		BatchID:        l.BatchID,
		RulesetVersion: l.RulesetVersion,
		MirrorVersion:  l.MirrorVersion,
		CreatedAt:      l.CreatedAt,
	}
}
