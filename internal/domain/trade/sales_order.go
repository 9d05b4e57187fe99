package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storesync/backend/internal/domain/partner"
	"github.com/storesync/backend/internal/domain/shared"
)

// Trade errors
var (
	ErrOrderInvalidReference = errors.New("trade: order reference is required")
	ErrOrderNotFound         = errors.New("trade: order not found")
	ErrCarrierUnmapped       = errors.New("trade: carrier has no local mapping")
)

// LineKind classifies an order line
type LineKind string

const (
	// LineKindProduct is a sellable item line
	LineKindProduct LineKind = "product"
	// LineKindShipping is a shipping charge line
	LineKindShipping LineKind = "shipping"
	// LineKindDiscount is an order-level discount, stored as a negative line
	LineKindDiscount LineKind = "discount"
	// LineKindTax is a synthetic tax line when taxes are not item-embedded
	LineKindTax LineKind = "tax"
)

// IsValid returns true if the line kind is valid
func (k LineKind) IsValid() bool {
	switch k {
	case LineKindProduct, LineKindShipping, LineKindDiscount, LineKindTax:
		return true
	default:
		return false
	}
}

// OrderStatus follows the remote financial lifecycle
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDone      OrderStatus = "done"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid returns true if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusConfirmed, OrderStatusDone, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// SalesOrder is the local order aggregate built from a remote order pull
type SalesOrder struct {
	shared.BaseEntity
	Reference   string          `gorm:"type:varchar(50);uniqueIndex;not null"`
	CustomerID  *uuid.UUID      `gorm:"type:uuid;index"`
	ShipToID    *uuid.UUID      `gorm:"type:uuid"`
	Status      OrderStatus     `gorm:"type:varchar(20);not null;default:'draft'"`
	Currency    string          `gorm:"type:varchar(3);not null;default:'USD'"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	PlacedAt    time.Time       `gorm:"not null"`
	Note        string          `gorm:"type:text"`
	Lines       []OrderLine     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Shipments   []Shipment      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	Customer *partner.Contact `gorm:"foreignKey:CustomerID"`
}

// TableName returns the table name for GORM
func (SalesOrder) TableName() string {
	return "sales_orders"
}

// NewSalesOrder creates a sales order from a remote order pull
func NewSalesOrder(reference string, placedAt time.Time) (*SalesOrder, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, ErrOrderInvalidReference
	}
	return &SalesOrder{
		BaseEntity: shared.NewBaseEntity(),
		Reference:  strings.TrimSpace(reference),
		Status:     OrderStatusDraft,
		Currency:   "USD",
		PlacedAt:   placedAt,
	}, nil
}

// LineByRemoteID finds the line carrying the given remote line identity
func (o *SalesOrder) LineByRemoteID(remoteLineID string) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].RemoteLineID == remoteLineID {
			return &o.Lines[i]
		}
	}
	return nil
}

// RecomputeTotal sums line subtotals into TotalAmount
func (o *SalesOrder) RecomputeTotal() {
	total := decimal.Zero
	for i := range o.Lines {
		total = total.Add(o.Lines[i].Subtotal())
	}
	o.TotalAmount = total.Round(shared.DefaultDecimalPrecision)
}

// LatestShipment returns the most recently created shipment, or nil
func (o *SalesOrder) LatestShipment() *Shipment {
	if len(o.Shipments) == 0 {
		return nil
	}
	latest := &o.Shipments[0]
	for i := 1; i < len(o.Shipments); i++ {
		if o.Shipments[i].CreatedAt.After(latest.CreatedAt) {
			latest = &o.Shipments[i]
		}
	}
	return latest
}

// OrderLine is one line of a sales order. RemoteLineID carries the platform
// line identity so re-imports update in place instead of duplicating.
type OrderLine struct {
	shared.BaseEntity
	OrderID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	Kind         LineKind        `gorm:"type:varchar(20);not null;default:'product'"`
	ProductID    *uuid.UUID      `gorm:"type:uuid;index"`
	RemoteLineID string          `gorm:"type:varchar(100);index"`
	Description  string          `gorm:"type:varchar(255);not null"`
	SKU          string          `gorm:"type:varchar(64)"`
	Quantity     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:1"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	TaxAmount    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (OrderLine) TableName() string {
	return "order_lines"
}

// Subtotal returns quantity * unit price for the line
func (l *OrderLine) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(shared.DefaultDecimalPrecision)
}

// Shipment records delivery of an order. Tracking references merge into the
// latest shipment rather than creating one shipment per platform fulfillment.
type Shipment struct {
	shared.BaseEntity
	OrderID         uuid.UUID `gorm:"type:uuid;index;not null"`
	CarrierID       uuid.UUID `gorm:"type:uuid;not null"`
	TrackingNumbers string    `gorm:"type:text"`
	ShippedAt       *time.Time
}

// TableName returns the table name for GORM
func (Shipment) TableName() string {
	return "shipments"
}

// TrackingRefs returns the tracking numbers as a slice
func (s *Shipment) TrackingRefs() []string {
	if s.TrackingNumbers == "" {
		return nil
	}
	return strings.Split(s.TrackingNumbers, ",")
}

// MergeTrackingRefs adds the given numbers, skipping ones already present.
// Returns true if anything was added.
func (s *Shipment) MergeTrackingRefs(numbers []string) bool {
	existing := make(map[string]struct{})
	refs := s.TrackingRefs()
	for _, r := range refs {
		existing[r] = struct{}{}
	}
	added := false
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := existing[n]; ok {
			continue
		}
		existing[n] = struct{}{}
		refs = append(refs, n)
		added = true
	}
	if added {
		s.TrackingNumbers = strings.Join(refs, ",")
	}
	return added
}

// ---------------------------------------------------------------------------
// Carrier mapping
// ---------------------------------------------------------------------------

// Carrier is a locally configured delivery carrier
type Carrier struct {
	shared.BaseEntity
	Name   string `gorm:"type:varchar(100);not null"`
	Active bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Carrier) TableName() string {
	return "carriers"
}

// CarrierMapping binds a normalized platform carrier key to a local carrier
type CarrierMapping struct {
	shared.BaseEntity
	PlatformKey string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	CarrierID   uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (CarrierMapping) TableName() string {
	return "carrier_mappings"
}

// NormalizeCarrierKey reduces a platform carrier label to its mapping key
func NormalizeCarrierKey(title, identifier string) string {
	if strings.TrimSpace(identifier) != "" {
		return partner.NormalizeKey(identifier)
	}
	return partner.NormalizeKey(title)
}

// UnmappedCarrierError builds the hard error for an unknown carrier label
func UnmappedCarrierError(title, identifier string) error {
	return fmt.Errorf("%w: %q (key %q)", ErrCarrierUnmapped, title, NormalizeCarrierKey(title, identifier))
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// OrderRepository is the persistence interface for sales orders
type OrderRepository interface {
	// FindByID loads an order with lines and shipments
	FindByID(ctx context.Context, id uuid.UUID) (*SalesOrder, error)

	// FindByReference loads an order by its unique reference
	FindByReference(ctx context.Context, reference string) (*SalesOrder, error)

	// Save persists the order aggregate including lines and shipments
	Save(ctx context.Context, order *SalesOrder) error

	// UpdateFields applies a changed-columns patch to the order header
	UpdateFields(ctx context.Context, id uuid.UUID, columns map[string]any) error

	// SaveLine persists a single line
	SaveLine(ctx context.Context, line *OrderLine) error

	// UpdateLineFields applies a changed-columns patch to one line
	UpdateLineFields(ctx context.Context, lineID uuid.UUID, columns map[string]any) error

	// DeleteLines removes lines dropped by a re-import
	DeleteLines(ctx context.Context, lineIDs []uuid.UUID) error

	// SaveShipment persists a shipment
	SaveShipment(ctx context.Context, shipment *Shipment) error
}

// CarrierRepository resolves platform carrier labels to local carriers
type CarrierRepository interface {
	// ResolveCarrier returns the local carrier for a normalized platform key
	ResolveCarrier(ctx context.Context, platformKey string) (*Carrier, error)

	// SaveMapping persists a carrier mapping
	SaveMapping(ctx context.Context, mapping *CarrierMapping) error
}
