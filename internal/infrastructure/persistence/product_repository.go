package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/catalog"
)

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Interface compliance check
var _ catalog.ProductRepository = (*GormProductRepository)(nil)

// FindByID loads one product with images ordered by position
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var product catalog.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// FindBySKU loads a product by its natural key
func (r *GormProductRepository) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	var product catalog.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&product, "sku = ?", strings.ToUpper(strings.TrimSpace(sku))).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads a batch of products
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []catalog.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id IN ?", ids).
		Find(&products).Error
	return products, err
}

// FindNeedingExportRetry returns products flagged for re-export
func (r *GormProductRepository) FindNeedingExportRetry(ctx context.Context, limit int) ([]catalog.Product, error) {
	var products []catalog.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("needs_export_retry").
		Order("updated_at ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// FindChangedSince returns products written after the given instant
func (r *GormProductRepository) FindChangedSince(ctx context.Context, since time.Time, limit int) ([]catalog.Product, error) {
	var products []catalog.Product
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("updated_at > ? OR template_updated_at > ?", since, since).
		Order("updated_at ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// Save persists a new product with its images
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// UpdateFields applies a changed-columns patch in a single write
func (r *GormProductRepository) UpdateFields(ctx context.Context, id uuid.UUID, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	columns["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&catalog.Product{}).
		Where("id = ?", id).
		Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// ReplaceImages swaps the image set preserving order
func (r *GormProductRepository) ReplaceImages(ctx context.Context, productID uuid.UUID, images []catalog.ProductImage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&catalog.ProductImage{}).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		for i := range images {
			images[i].ProductID = productID
		}
		return tx.Create(&images).Error
	})
}

// Delete removes a product and its images
func (r *GormProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&catalog.ProductImage{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&catalog.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return catalog.ErrProductNotFound
		}
		return nil
	})
}
