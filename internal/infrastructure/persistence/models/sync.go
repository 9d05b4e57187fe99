package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/sync"
)

// SyncJobModel is the persistence model for the sync Job domain entity.
// SelectorKey materializes Selector.Key() so enqueue deduplication can run
// as a plain indexed equality check.
type SyncJobModel struct {
	ID            uuid.UUID             `gorm:"type:uuid;primary_key"`
	Mode          sync.Mode             `gorm:"type:varchar(40);not null;index:idx_sync_jobs_dedup,priority:1"`
	SelectorKey   string                `gorm:"type:varchar(255);not null;default:'';index:idx_sync_jobs_dedup,priority:2"`
	SelectorJSON  string                `gorm:"type:jsonb;column:selector"`
	State         sync.State            `gorm:"type:varchar(20);not null;index:idx_sync_jobs_dedup,priority:3;index:idx_sync_jobs_state"`
	TotalCount    int                   `gorm:"not null;default:0"`
	UpdatedCount  int                   `gorm:"not null;default:0"`
	RetryAttempts int                   `gorm:"not null;default:0"`
	StartTime     *time.Time            ``
	EndTime       *time.Time            ``
	HeartbeatAt   *time.Time            `gorm:"index"`
	ErrorMessage  string                `gorm:"type:text"`
	ErrorKind     integration.ErrorKind `gorm:"type:varchar(20)"`
	ErrorContext  string                `gorm:"type:jsonb"`
	CreatedAt     time.Time             `gorm:"not null;index"`
	UpdatedAt     time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job entity.
func (m *SyncJobModel) ToDomain() *sync.Job {
	job := &sync.Job{
		ID:            m.ID,
		Mode:          m.Mode,
		State:         m.State,
		TotalCount:    m.TotalCount,
		UpdatedCount:  m.UpdatedCount,
		RetryAttempts: m.RetryAttempts,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		HeartbeatAt:   m.HeartbeatAt,
		ErrorMessage:  m.ErrorMessage,
		ErrorKind:     m.ErrorKind,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}

	if m.SelectorJSON != "" {
		var sel sync.Selector
		if err := json.Unmarshal([]byte(m.SelectorJSON), &sel); err == nil {
			job.Selector = sel
		}
	}
	if m.ErrorContext != "" {
		job.ErrorContext = json.RawMessage(m.ErrorContext)
	}

	return job
}

// FromDomain populates the persistence model from a domain Job entity.
func (m *SyncJobModel) FromDomain(j *sync.Job) {
	m.ID = j.ID
	m.Mode = j.Mode
	m.SelectorKey = j.Selector.Key()
	m.State = j.State
	m.TotalCount = j.TotalCount
	m.UpdatedCount = j.UpdatedCount
	m.RetryAttempts = j.RetryAttempts
	m.StartTime = j.StartTime
	m.EndTime = j.EndTime
	m.HeartbeatAt = j.HeartbeatAt
	m.ErrorMessage = j.ErrorMessage
	m.ErrorKind = j.ErrorKind
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt

	if j.Selector.IsZero() {
		m.SelectorJSON = "{}"
	} else if jsonBytes, err := json.Marshal(j.Selector); err == nil {
		m.SelectorJSON = string(jsonBytes)
	}
	if len(j.ErrorContext) > 0 {
		m.ErrorContext = string(j.ErrorContext)
	} else {
		m.ErrorContext = ""
	}
}

// SyncJobModelFromDomain creates a new persistence model from a domain Job entity.
func SyncJobModelFromDomain(j *sync.Job) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(j)
	return m
}

// WatermarkModel stores the last successful import instant per resource kind.
type WatermarkModel struct {
	ResourceKind integration.ResourceKind `gorm:"type:varchar(20);primary_key"`
	LastSyncedAt time.Time                `gorm:"not null"`
	UpdatedAt    time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WatermarkModel) TableName() string {
	return "sync_watermarks"
}
