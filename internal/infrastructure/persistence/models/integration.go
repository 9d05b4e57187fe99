package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/storesync/backend/internal/domain/integration"
)

// ExternalIDMappingModel is the persistence model for the ExternalIDMapping
// domain entity. A partial unique index guarantees an external id is
// actively claimed by at most one local entity per (system, resource).
type ExternalIDMappingModel struct {
	ID           uuid.UUID                `gorm:"type:uuid;primary_key"`
	EntityKind   integration.EntityKind   `gorm:"type:varchar(20);not null;index:idx_extid_local,priority:1"`
	LocalID      uuid.UUID                `gorm:"type:uuid;not null;index:idx_extid_local,priority:2"`
	SystemCode   integration.SystemCode   `gorm:"type:varchar(20);not null;index:idx_extid_local,priority:3;index:idx_extid_external,priority:1"`
	ResourceKind integration.ResourceKind `gorm:"type:varchar(20);not null;index:idx_extid_local,priority:4;index:idx_extid_external,priority:2"`
	ExternalID   string                   `gorm:"type:varchar(100);not null;index:idx_extid_external,priority:3"`
	Active       bool                     `gorm:"not null;default:true"`
	CreatedAt    time.Time                `gorm:"not null"`
	UpdatedAt    time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExternalIDMappingModel) TableName() string {
	return "external_id_mappings"
}

// ToDomain converts the persistence model to a domain ExternalIDMapping entity.
func (m *ExternalIDMappingModel) ToDomain() *integration.ExternalIDMapping {
	return &integration.ExternalIDMapping{
		ID:           m.ID,
		EntityKind:   m.EntityKind,
		LocalID:      m.LocalID,
		SystemCode:   m.SystemCode,
		ResourceKind: m.ResourceKind,
		ExternalID:   m.ExternalID,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ExternalIDMapping entity.
func (m *ExternalIDMappingModel) FromDomain(e *integration.ExternalIDMapping) {
	m.ID = e.ID
	m.EntityKind = e.EntityKind
	m.LocalID = e.LocalID
	m.SystemCode = e.SystemCode
	m.ResourceKind = e.ResourceKind
	m.ExternalID = e.ExternalID
	m.Active = e.Active
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// ExternalIDMappingModelFromDomain creates a new persistence model from a domain entity.
func ExternalIDMappingModelFromDomain(e *integration.ExternalIDMapping) *ExternalIDMappingModel {
	m := &ExternalIDMappingModel{}
	m.FromDomain(e)
	return m
}
