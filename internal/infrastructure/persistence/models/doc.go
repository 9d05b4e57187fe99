// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Only the sync and integration contexts use mapped models here; the catalog,
// partner and trade entities carry their table mappings directly.
//
// Structure:
// - base.go: Base persistence model (BaseModel)
// - sync.go: Sync job and watermark models
// - integration.go: External id mapping model
package models
