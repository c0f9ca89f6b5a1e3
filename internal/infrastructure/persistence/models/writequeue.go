package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/domain/writequeue"
)

// WriteQueueItemModel is the persistence model for outbound write work.
type WriteQueueItemModel struct {
	ID             uuid.UUID                `gorm:"type:uuid;primary_key"`
	OrgID          uuid.UUID                `gorm:"type:uuid;not null;index:idx_queue_org_status,priority:1"`
	ModificationID uuid.UUID                `gorm:"type:uuid;not null;index"`
	RecordID       uuid.UUID                `gorm:"type:uuid;not null;index"`
	EntityType     string                   `gorm:"type:varchar(100);not null"`
	ExternalID     string                   `gorm:"type:varchar(100);not null"`
	Operation      writequeue.OperationKind `gorm:"type:varchar(10);not null"`
	PayloadJSON    string                   `gorm:"type:jsonb;column:payload"`
	Status         writequeue.ItemStatus    `gorm:"type:varchar(20);not null;index:idx_queue_org_status,priority:2;index:idx_queue_status_due,priority:1"`
	Priority       int                      `gorm:"not null;default:0"`
	RetryCount     int                      `gorm:"not null;default:0"`
	MaxRetries     int                      `gorm:"not null;default:3"`
	LastError      string                   `gorm:"type:text"`
	ConflictID     *uuid.UUID               `gorm:"type:uuid"`
	NextAttemptAt  *time.Time               `gorm:"index:idx_queue_status_due,priority:2"`
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WriteQueueItemModel) TableName() string {
	return "write_queue_items"
}

// ToDomain converts the persistence model to a domain Item
func (m *WriteQueueItemModel) ToDomain() *writequeue.Item {
	item := &writequeue.Item{
		ID:             m.ID,
		OrgID:          m.OrgID,
		ModificationID: m.ModificationID,
		RecordID:       m.RecordID,
		EntityType:     m.EntityType,
		ExternalID:     m.ExternalID,
		Operation:      m.Operation,
		Status:         m.Status,
		Priority:       m.Priority,
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		LastError:      m.LastError,
		ConflictID:     m.ConflictID,
		NextAttemptAt:  m.NextAttemptAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.PayloadJSON != "" {
		var payload shared.Document
		if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err == nil {
			item.Payload = payload
		}
	}
	return item
}

// FromDomain populates the persistence model from a domain Item
func (m *WriteQueueItemModel) FromDomain(item *writequeue.Item) {
	m.ID = item.ID
	m.OrgID = item.OrgID
	m.ModificationID = item.ModificationID
	m.RecordID = item.RecordID
	m.EntityType = item.EntityType
	m.ExternalID = item.ExternalID
	m.Operation = item.Operation
	m.Status = item.Status
	m.Priority = item.Priority
	m.RetryCount = item.RetryCount
	m.MaxRetries = item.MaxRetries
	m.LastError = item.LastError
	m.ConflictID = item.ConflictID
	m.NextAttemptAt = item.NextAttemptAt
	m.CompletedAt = item.CompletedAt
	m.CreatedAt = item.CreatedAt
	m.UpdatedAt = item.UpdatedAt
	if jsonBytes, err := json.Marshal(item.Payload); err == nil {
		m.PayloadJSON = string(jsonBytes)
	}
}

// WriteQueueItemModelFromDomain creates a new persistence model from a domain Item
func WriteQueueItemModelFromDomain(item *writequeue.Item) *WriteQueueItemModel {
	m := &WriteQueueItemModel{}
	m.FromDomain(item)
	return m
}

// SyncLogModel is the persistence model for per-attempt sync logs.
type SyncLogModel struct {
	ID             uuid.UUID                `gorm:"type:uuid;primary_key"`
	OrgID          uuid.UUID                `gorm:"type:uuid;not null;index:idx_synclog_org_created,priority:1"`
	ItemID         uuid.UUID                `gorm:"type:uuid;not null;index"`
	EntityType     string                   `gorm:"type:varchar(100);not null"`
	ExternalID     string                   `gorm:"type:varchar(100);not null"`
	Operation      writequeue.OperationKind `gorm:"type:varchar(10);not null"`
	Attempt        int                      `gorm:"not null;default:0"`
	Status         writequeue.ItemStatus    `gorm:"type:varchar(20);not null"`
	UpstreamStatus int                      `gorm:"not null;default:0"`
	Message        string                   `gorm:"type:text"`
	CreatedAt      time.Time                `gorm:"not null;index:idx_synclog_org_created,priority:2"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog
func (m *SyncLogModel) ToDomain() *writequeue.SyncLog {
	return &writequeue.SyncLog{
		ID:             m.ID,
		OrgID:          m.OrgID,
		ItemID:         m.ItemID,
		EntityType:     m.EntityType,
		ExternalID:     m.ExternalID,
		Operation:      m.Operation,
		Attempt:        m.Attempt,
		Status:         m.Status,
		UpstreamStatus: m.UpstreamStatus,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
	}
}

// SyncLogModelFromDomain creates a new persistence model from a domain SyncLog
func SyncLogModelFromDomain(l *writequeue.SyncLog) *SyncLogModel {
	return &SyncLogModel{
		ID:             l.ID,
		OrgID:          l.OrgID,
		ItemID:         l.ItemID,
		EntityType:     l.EntityType,
		ExternalID:     l.ExternalID,
		Operation:      l.Operation,
		Attempt:        l.Attempt,
		Status:         l.Status,
		UpstreamStatus: l.UpstreamStatus,
		Message:        l.Message,
		CreatedAt:      l.CreatedAt,
	}
}
