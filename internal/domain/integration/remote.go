package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Remote snapshots
// ---------------------------------------------------------------------------
//
// These are schema-validated, immutable snapshots of one platform response
// page. They are consumed once per reconciliation pass and never persisted;
// anything worth keeping flows through the entity reconcilers into local
// records and external-id mappings.

// RemoteProduct is one product node from the platform
type RemoteProduct struct {
	ID          string
	Title       string
	// SKUField carries the composite "SKU - BIN" value the platform stores
	// in a single field; the reconciler splits it into two local fields.
	SKUField    string
	Description string
	Vendor      string
	ProductType string
	Status      string
	Tags        []string
	UpdatedAt   time.Time
	Variants    []RemoteVariant
	Media       []RemoteMedia
}

// RemoteVariant is one product variant node
type RemoteVariant struct {
	ID        string
	SKU       string
	Barcode   string
	Price     decimal.Decimal
	Position  int
	UpdatedAt time.Time
}

// RemoteMedia is one media attachment node, ordered by Position
type RemoteMedia struct {
	ID       string
	URL      string
	Alt      string
	Position int
}

// MediaFingerprint reports whether two media sets match in count and order.
// Equality here is what lets an import skip an unchanged product and what
// verifies an export actually landed.
func MediaFingerprint(media []RemoteMedia) []string {
	ids := make([]string, len(media))
	for i, m := range media {
		ids[i] = m.ID
	}
	return ids
}

// MediaEqual compares two media sets by count and order of ids
func MediaEqual(a, b []RemoteMedia) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// RemoteOrder is one order node from the platform
type RemoteOrder struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Currency      string
	TotalPrice    decimal.Decimal
	TotalDiscount decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Customer      *RemoteCustomer
	LineItems     []RemoteLineItem
	ShippingLines []RemoteShippingLine
	Discounts     []RemoteDiscount
	TaxLines      []RemoteTaxLine
	Fulfillments  []RemoteFulfillment
}

// RemoteLineItem is one order line node
type RemoteLineItem struct {
	ID                  string
	VariantID           string
	SKU                 string
	Title               string
	Quantity            decimal.Decimal
	UnitPrice           decimal.Decimal
	DiscountAllocations []RemoteDiscount
	TaxLines            []RemoteTaxLine
}

// RemoteShippingLine is one shipping charge on an order
type RemoteShippingLine struct {
	ID                string
	Title             string
	CarrierIdentifier string
	Price             decimal.Decimal
}

// RemoteDiscount is a discount application, either order-global or
// allocated to a single line
type RemoteDiscount struct {
	Title  string
	Code   string
	Amount decimal.Decimal
}

// RemoteTaxLine is one tax charge
type RemoteTaxLine struct {
	Title  string
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// RemoteFulfillment is one fulfillment node carrying tracking numbers
type RemoteFulfillment struct {
	ID              string
	Status          string
	TrackingNumbers []string
	CreatedAt       time.Time
}

// RemoteCustomer is one customer node from the platform
type RemoteCustomer struct {
	ID             string
	Email          string
	Phone          string
	FirstName      string
	LastName       string
	Note           string
	// LegacyProfileID is the secondary-system profile id some migrated
	// customers still carry in platform metadata
	LegacyProfileID string
	UpdatedAt       time.Time
	DefaultAddress  *RemoteAddress
	Addresses       []RemoteAddress
}

// DisplayName joins the customer's name parts
func (c *RemoteCustomer) DisplayName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// RemoteAddress is one address node
type RemoteAddress struct {
	ID          string
	FirstName   string
	LastName    string
	Company     string
	Address1    string
	Address2    string
	City        string
	Province    string
	Zip         string
	CountryCode string
	Phone       string
}
