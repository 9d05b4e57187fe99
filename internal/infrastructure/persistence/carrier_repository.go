package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/trade"
)

// GormCarrierRepository implements trade.CarrierRepository using GORM
type GormCarrierRepository struct {
	db *gorm.DB
}

// NewGormCarrierRepository creates a new GormCarrierRepository
func NewGormCarrierRepository(db *gorm.DB) *GormCarrierRepository {
	return &GormCarrierRepository{db: db}
}

// Interface compliance check
var _ trade.CarrierRepository = (*GormCarrierRepository)(nil)

// ResolveCarrier returns the local carrier for a normalized platform key
func (r *GormCarrierRepository) ResolveCarrier(ctx context.Context, platformKey string) (*trade.Carrier, error) {
	var mapping trade.CarrierMapping
	err := r.db.WithContext(ctx).
		Where("platform_key = ?", platformKey).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, trade.ErrCarrierUnmapped
		}
		return nil, err
	}

	var carrier trade.Carrier
	err = r.db.WithContext(ctx).
		Where("id = ? AND active", mapping.CarrierID).
		First(&carrier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, trade.ErrCarrierUnmapped
		}
		return nil, err
	}
	return &carrier, nil
}

// SaveMapping persists a carrier mapping
func (r *GormCarrierRepository) SaveMapping(ctx context.Context, mapping *trade.CarrierMapping) error {
	return r.db.WithContext(ctx).Save(mapping).Error
}
