package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Page queries
// ---------------------------------------------------------------------------

// PageQuery is one cursor-paginated pull request. UpdatedSince, when set, is
// rendered into the platform's filter syntax by the adapter.
type PageQuery struct {
	// Cursor is the opaque continuation token from the previous page;
	// empty for the first page
	Cursor string
	// PageSize is the number of nodes to request
	PageSize int
	// UpdatedSince limits results to records changed after this instant
	UpdatedSince *time.Time
	// IDs, when non-empty, restricts the pull to explicit remote ids
	IDs []string
}

// ProductPage is one page of product nodes
type ProductPage struct {
	Nodes      []RemoteProduct
	EndCursor  string
	HasNext    bool
}

// OrderPage is one page of order nodes
type OrderPage struct {
	Nodes     []RemoteOrder
	EndCursor string
	HasNext   bool
}

// CustomerPage is one page of customer nodes
type CustomerPage struct {
	Nodes     []RemoteCustomer
	EndCursor string
	HasNext   bool
}

// ---------------------------------------------------------------------------
// Push payloads
// ---------------------------------------------------------------------------

// ProductPush is the outbound shape for a product upsert
type ProductPush struct {
	// ExternalID is the existing platform product id; empty creates
	ExternalID  string
	Title       string
	SKUField    string
	Description string
	Vendor      string
	ProductType string
	Tags        []string
	Status      string
	Variants    []VariantPush
	// MediaURLs are staged image URLs in desired display order
	MediaURLs []string
	// Publish lists the product on the storefront. Irreversible on a
	// production shop, so adapters refuse it unless the shop is a sandbox
	// or the caller owns the consequence.
	Publish bool
}

// VariantPush is the outbound shape for one variant
type VariantPush struct {
	ExternalID string
	SKU        string
	Barcode    string
	Price      decimal.Decimal
	Position   int
}

// ProductPushResult reports what the platform persisted, echoing the media
// set so the caller can verify count and order against what was sent
type ProductPushResult struct {
	ExternalID string
	VariantIDs []string
	Media      []RemoteMedia
}

// ---------------------------------------------------------------------------
// StorefrontPlatform port
// ---------------------------------------------------------------------------

// Location is the platform location used as the client bootstrap probe
type Location struct {
	ID   string
	Name string
}

// StorefrontPlatform is the port every reconciler talks through. Concrete
// adapters live in the infrastructure layer; one instance is constructed per
// job and threaded down the call chain; there is no process-global client.
type StorefrontPlatform interface {
	// PrimaryLocation returns the shop's primary location. Adapters call it
	// once at construction to fail fast on bad credentials.
	PrimaryLocation(ctx context.Context) (*Location, error)

	// ---------------------------------------------------------------------------
	// Product operations
	// ---------------------------------------------------------------------------

	// PullProducts fetches one page of products
	PullProducts(ctx context.Context, q PageQuery) (*ProductPage, error)

	// GetProduct fetches a single product by remote id
	GetProduct(ctx context.Context, externalID string) (*RemoteProduct, error)

	// UpsertProduct creates or updates a product, uploading media as needed
	UpsertProduct(ctx context.Context, push *ProductPush) (*ProductPushResult, error)

	// UpdateVariant updates a single variant in place
	UpdateVariant(ctx context.Context, productExternalID string, push *VariantPush) error

	// ReorderMedia rewrites media order without re-uploading, the cheap
	// export path when only image order drifted
	ReorderMedia(ctx context.Context, externalID string, mediaIDs []string) error

	// DeleteProduct removes a product from the platform
	DeleteProduct(ctx context.Context, externalID string) error

	// ---------------------------------------------------------------------------
	// Order operations
	// ---------------------------------------------------------------------------

	// PullOrders fetches one page of orders
	PullOrders(ctx context.Context, q PageQuery) (*OrderPage, error)

	// GetOrder fetches a single order by remote id
	GetOrder(ctx context.Context, externalID string) (*RemoteOrder, error)

	// ---------------------------------------------------------------------------
	// Customer operations
	// ---------------------------------------------------------------------------

	// PullCustomers fetches one page of customers
	PullCustomers(ctx context.Context, q PageQuery) (*CustomerPage, error)

	// GetCustomer fetches a single customer by remote id
	GetCustomer(ctx context.Context, externalID string) (*RemoteCustomer, error)
}
