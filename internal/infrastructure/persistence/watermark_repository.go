package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
)

// GormWatermarkStore implements sync.WatermarkStore using GORM
type GormWatermarkStore struct {
	db *gorm.DB
}

// NewGormWatermarkStore creates a new GormWatermarkStore
func NewGormWatermarkStore(db *gorm.DB) *GormWatermarkStore {
	return &GormWatermarkStore{db: db}
}

// Interface compliance check
var _ sync.WatermarkStore = (*GormWatermarkStore)(nil)

// Get returns the stored watermark, nil when the resource was never imported
func (s *GormWatermarkStore) Get(ctx context.Context, resource integration.ResourceKind) (*time.Time, error) {
	var model models.WatermarkModel
	if err := s.db.WithContext(ctx).First(&model, "resource_kind = ?", resource).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	t := model.LastSyncedAt
	return &t, nil
}

// Advance moves the watermark forward. A concurrent writer that already
// advanced further wins: the update is guarded by last_synced_at < to.
func (s *GormWatermarkStore) Advance(ctx context.Context, resource integration.ResourceKind, to time.Time) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resource_kind"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_synced_at": gorm.Expr("GREATEST(sync_watermarks.last_synced_at, EXCLUDED.last_synced_at)"),
			"updated_at":     time.Now(),
		}),
	}).Create(&models.WatermarkModel{
		ResourceKind: resource,
		LastSyncedAt: to,
		UpdatedAt:    time.Now(),
	}).Error
}
