package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storesync/backend/internal/domain/shared"
)

// Catalog errors
var (
	ErrProductInvalidSKU  = errors.New("catalog: product SKU is required")
	ErrProductInvalidName = errors.New("catalog: product name is required")
	ErrProductNotFound    = errors.New("catalog: product not found")
)

// ProductStatus represents the lifecycle status of a product
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusArchived ProductStatus = "archived"
)

// IsValid returns true if the status is valid
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusActive, ProductStatusDraft, ProductStatusArchived:
		return true
	default:
		return false
	}
}

// Product is the local catalog record the sync engine reconciles against.
// The storefront keeps SKU and bin in one composite field; locally they are
// two columns. Remote ids never appear here, only in the external-id map.
type Product struct {
	shared.BaseEntity
	SKU         string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Bin         string          `gorm:"type:varchar(50);index"`
	Name        string          `gorm:"type:varchar(255);not null"`
	Description string          `gorm:"type:text"`
	Vendor      string          `gorm:"type:varchar(200)"`
	ProductType string          `gorm:"type:varchar(100)"`
	Tags        string          `gorm:"type:text"`
	Barcode     string          `gorm:"type:varchar(100)"`
	Price       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Status      ProductStatus   `gorm:"type:varchar(20);not null;default:'active'"`
	// TemplateUpdatedAt is the write time of the shared template record the
	// product descends from; imports must not clobber template edits
	TemplateUpdatedAt time.Time
	// LastExportedAt is stamped after a successful export to the platform
	LastExportedAt *time.Time
	// NeedsExportRetry flags a product whose last export landed with the
	// wrong media count/order and must be pushed again
	NeedsExportRetry bool           `gorm:"not null;default:false"`
	Images           []ProductImage `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a product with required fields
func NewProduct(sku, name string) (*Product, error) {
	if strings.TrimSpace(sku) == "" {
		return nil, ErrProductInvalidSKU
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrProductInvalidName
	}
	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		SKU:        strings.ToUpper(strings.TrimSpace(sku)),
		Name:       strings.TrimSpace(name),
		Price:      decimal.Zero,
		Status:     ProductStatusActive,
	}, nil
}

// LastWriteAt returns the latest of the product's own write time, its
// template's write time and the last export time: the freshness bar a
// remote snapshot has to clear before an import touches the record
func (p *Product) LastWriteAt() time.Time {
	latest := p.UpdatedAt
	if p.TemplateUpdatedAt.After(latest) {
		latest = p.TemplateUpdatedAt
	}
	if p.LastExportedAt != nil && p.LastExportedAt.After(latest) {
		latest = *p.LastExportedAt
	}
	return latest
}

// MarkExported stamps a successful export and clears any retry flag
func (p *Product) MarkExported(at time.Time) {
	p.LastExportedAt = &at
	p.NeedsExportRetry = false
	p.UpdatedAt = at
}

// FlagExportRetry marks the product for automatic re-export
func (p *Product) FlagExportRetry() {
	p.NeedsExportRetry = true
	p.UpdatedAt = time.Now()
}

// ImageFingerprint returns image checksums in display order, used to decide
// whether remote media differs in count or order
func (p *Product) ImageFingerprint() []string {
	out := make([]string, len(p.Images))
	for i, img := range p.Images {
		out[i] = img.Checksum
	}
	return out
}

// ProductImage is one catalog image, ordered by Position
type ProductImage struct {
	shared.BaseEntity
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	URL       string    `gorm:"type:text;not null"`
	Alt       string    `gorm:"type:varchar(255)"`
	Position  int       `gorm:"not null;default:0"`
	// Checksum identifies image content independent of hosting URL
	Checksum string `gorm:"type:varchar(64);index"`
}

// TableName returns the table name for GORM
func (ProductImage) TableName() string {
	return "product_images"
}

// ParseSKUField splits the platform's composite "SKU - BIN" field. A value
// without the separator is all SKU.
func ParseSKUField(field string) (sku, bin string) {
	parts := strings.SplitN(field, " - ", 2)
	sku = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		bin = strings.TrimSpace(parts[1])
	}
	return sku, bin
}

// ComposeSKUField joins SKU and bin back into the platform's composite field
func ComposeSKUField(sku, bin string) string {
	if bin == "" {
		return sku
	}
	return sku + " - " + bin
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ProductRepository is the persistence interface for catalog products
type ProductRepository interface {
	// FindByID loads one product with images ordered by position
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindBySKU loads a product by its natural key
	FindBySKU(ctx context.Context, sku string) (*Product, error)

	// FindByIDs loads a batch of products
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)

	// FindNeedingExportRetry returns products flagged for re-export
	FindNeedingExportRetry(ctx context.Context, limit int) ([]Product, error)

	// FindChangedSince returns products written after the given instant
	FindChangedSince(ctx context.Context, since time.Time, limit int) ([]Product, error)

	// Save persists a new product with its images
	Save(ctx context.Context, product *Product) error

	// UpdateFields applies a changed-columns patch in a single write
	UpdateFields(ctx context.Context, id uuid.UUID, columns map[string]any) error

	// ReplaceImages swaps the image set preserving order
	ReplaceImages(ctx context.Context, productID uuid.UUID, images []ProductImage) error

	// Delete removes a product and its images
	Delete(ctx context.Context, id uuid.UUID) error
}
