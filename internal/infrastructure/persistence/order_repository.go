package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/trade"
)

// GormOrderRepository implements trade.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Interface compliance check
var _ trade.OrderRepository = (*GormOrderRepository)(nil)

// FindByID loads an order with lines and shipments
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.SalesOrder, error) {
	var order trade.SalesOrder
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Shipments").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, trade.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindByReference loads an order by its unique reference
func (r *GormOrderRepository) FindByReference(ctx context.Context, reference string) (*trade.SalesOrder, error) {
	var order trade.SalesOrder
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Shipments").
		First(&order, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, trade.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Save persists the order aggregate including lines and shipments
func (r *GormOrderRepository) Save(ctx context.Context, order *trade.SalesOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// UpdateFields applies a changed-columns patch to the order header
func (r *GormOrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	columns["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&trade.SalesOrder{}).
		Where("id = ?", id).
		Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return trade.ErrOrderNotFound
	}
	return nil
}

// SaveLine persists a single line
func (r *GormOrderRepository) SaveLine(ctx context.Context, line *trade.OrderLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

// UpdateLineFields applies a changed-columns patch to one line
func (r *GormOrderRepository) UpdateLineFields(ctx context.Context, lineID uuid.UUID, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	columns["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&trade.OrderLine{}).
		Where("id = ?", lineID).
		Updates(columns).Error
}

// DeleteLines removes lines dropped by a re-import
func (r *GormOrderRepository) DeleteLines(ctx context.Context, lineIDs []uuid.UUID) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&trade.OrderLine{}, "id IN ?", lineIDs).Error
}

// SaveShipment persists a shipment
func (r *GormOrderRepository) SaveShipment(ctx context.Context, shipment *trade.Shipment) error {
	return r.db.WithContext(ctx).Save(shipment).Error
}
