package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/trade"
)

type orderFixture struct {
	platform *fakePlatform
	orders   *memOrders
	carriers *memCarriers
	products *memProducts
	extIDs   *memExtIDs
}

func newOrderFixture(carrierKeys ...string) *orderFixture {
	return &orderFixture{
		platform: &fakePlatform{},
		orders:   newMemOrders(),
		carriers: newMemCarriers(carrierKeys...),
		products: newMemProducts(),
		extIDs:   newMemExtIDs(),
	}
}

func newOrderReconcilerFor(fx *orderFixture) *OrderReconciler {
	return NewOrderReconciler(OrderReconcilerConfig{
		Platform:    fx.platform,
		Orders:      fx.orders,
		Carriers:    fx.carriers,
		Products:    fx.products,
		ExternalIDs: fx.extIDs,
		PageSize:    50,
		Logger:      zap.NewNop(),
	})
}

// remoteOrder1001 is an order with one mapped product line carrying a line
// discount, a global discount, an order tax line and one shipping charge
func remoteOrder1001() integration.RemoteOrder {
	return integration.RemoteOrder{
		ID:        "gid://shopify/Order/1001",
		Name:      "#1001",
		Currency:  "USD",
		CreatedAt: time.Now().Add(-time.Hour),
		Customer:  &integration.RemoteCustomer{ID: "gid://shopify/Customer/300"},
		LineItems: []integration.RemoteLineItem{{
			ID:        "gid://shopify/LineItem/10",
			VariantID: "gid://shopify/ProductVariant/200",
			SKU:       "WID-1 - A3",
			Title:     "Blue Widget",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.RequireFromString("10.00"),
			DiscountAllocations: []integration.RemoteDiscount{{
				Code: "SAVE2", Amount: decimal.RequireFromString("2.00"),
			}},
			TaxLines: []integration.RemoteTaxLine{{
				Title: "State Tax", Amount: decimal.RequireFromString("1.20"),
			}},
		}},
		Discounts: []integration.RemoteDiscount{{
			Title: "Loyalty", Amount: decimal.RequireFromString("1.00"),
		}},
		TaxLines: []integration.RemoteTaxLine{{
			Title: "State Tax", Amount: decimal.RequireFromString("1.50"),
		}},
		ShippingLines: []integration.RemoteShippingLine{{
			ID:                "gid://shopify/ShippingLine/20",
			Title:             "USPS Priority",
			CarrierIdentifier: "usps",
			Price:             decimal.RequireFromString("5.00"),
		}},
		Fulfillments: []integration.RemoteFulfillment{{
			ID:              "gid://shopify/Fulfillment/30",
			TrackingNumbers: []string{"9400-0001"},
			CreatedAt:       time.Now().Add(-30 * time.Minute),
		}},
	}
}

func seedOrderMappings(t *testing.T, fx *orderFixture) (productID, customerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	productID = uuid.New()
	customerID = uuid.New()
	_, err := fx.extIDs.Upsert(ctx, integration.EntityKindVariant, productID,
		integration.SystemCodeShopify, integration.ResourceKindVariant, "gid://shopify/ProductVariant/200")
	require.NoError(t, err)
	_, err = fx.extIDs.Upsert(ctx, integration.EntityKindCustomer, customerID,
		integration.SystemCodeShopify, integration.ResourceKindCustomer, "gid://shopify/Customer/300")
	require.NoError(t, err)
	return productID, customerID
}

func TestOrderImport_CreatesOrderWithFullLineSet(t *testing.T) {
	fx := newOrderFixture("usps")
	productID, customerID := seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()

	outcome, err := r.ImportOne(ctx, remoteOrder1001())
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome.Kind)

	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	assert.Equal(t, trade.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "USD", order.Currency)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, customerID, *order.CustomerID)

	// Product line, its discount, the global discount, the tax line and the
	// shipping charge.
	require.Len(t, order.Lines, 5)

	product := order.LineByRemoteID("gid://shopify/LineItem/10")
	require.NotNil(t, product)
	assert.Equal(t, trade.LineKindProduct, product.Kind)
	require.NotNil(t, product.ProductID)
	assert.Equal(t, productID, *product.ProductID)
	assert.True(t, product.TaxAmount.Equal(decimal.RequireFromString("1.20")))

	lineDiscount := order.LineByRemoteID("gid://shopify/LineItem/10/discount/0")
	require.NotNil(t, lineDiscount)
	assert.Equal(t, trade.LineKindDiscount, lineDiscount.Kind)
	assert.Equal(t, "Discount SAVE2", lineDiscount.Description)
	assert.True(t, lineDiscount.UnitPrice.Equal(decimal.RequireFromString("-2.00")))

	shipping := order.LineByRemoteID("gid://shopify/ShippingLine/20")
	require.NotNil(t, shipping)
	assert.Equal(t, trade.LineKindShipping, shipping.Kind)

	// 2*10.00 - 2.00 - 1.00 + 1.50 + 5.00
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("23.50")),
		"got total %s", order.TotalAmount)

	require.Len(t, order.Shipments, 1)
	assert.Equal(t, []string{"9400-0001"}, order.Shipments[0].TrackingRefs())
	assert.NotNil(t, order.Shipments[0].ShippedAt)

	mapping, err := fx.extIDs.FindByExternalID(ctx, integration.SystemCodeShopify, integration.ResourceKindOrder, "gid://shopify/Order/1001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, mapping.LocalID)
}

func TestOrderImport_SecondPassIsIdempotent(t *testing.T) {
	fx := newOrderFixture("usps")
	seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()
	node := remoteOrder1001()

	_, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	lines := len(order.Lines)

	outcome, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome.Kind)
	assert.Len(t, order.Lines, lines, "re-import must not duplicate lines")
	assert.Len(t, order.Shipments, 1)
}

func TestOrderImport_QuantityChangeUpdatesLineInPlace(t *testing.T) {
	fx := newOrderFixture("usps")
	seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()
	node := remoteOrder1001()

	_, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	lineID := order.LineByRemoteID("gid://shopify/LineItem/10").ID

	node.LineItems[0].Quantity = decimal.NewFromInt(3)
	outcome, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome.Kind)

	line := order.LineByRemoteID("gid://shopify/LineItem/10")
	require.NotNil(t, line)
	assert.Equal(t, lineID, line.ID, "line identity must survive the update")
	assert.True(t, line.Quantity.Equal(decimal.NewFromInt(3)))
	// 3*10.00 - 2.00 - 1.00 + 1.50 + 5.00
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("33.50")),
		"got total %s", order.TotalAmount)
}

func TestOrderImport_DroppedRemoteLineIsDeleted(t *testing.T) {
	fx := newOrderFixture("usps")
	seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()
	node := remoteOrder1001()

	_, err := r.ImportOne(ctx, node)
	require.NoError(t, err)

	node.Discounts = nil
	outcome, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome.Kind)

	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	require.Len(t, order.Lines, 4)
	assert.Nil(t, order.LineByRemoteID("gid://shopify/Order/1001/discount/0"))
}

func TestOrderImport_LocallyOwnedLinesAreNeverTouched(t *testing.T) {
	fx := newOrderFixture("usps")
	seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()
	node := remoteOrder1001()

	_, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)

	// An operator adds a manual adjustment with no remote identity.
	manual := newOrderLine(order.ID, desiredLine{
		kind:        trade.LineKindProduct,
		description: "Manual adjustment",
		quantity:    decimal.NewFromInt(1),
		unitPrice:   decimal.RequireFromString("0.50"),
	})
	manual.RemoteLineID = ""
	require.NoError(t, fx.orders.SaveLine(ctx, &manual))

	_, err = r.ImportOne(ctx, node)
	require.NoError(t, err)

	order, err = fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	found := false
	for i := range order.Lines {
		if order.Lines[i].Description == "Manual adjustment" {
			found = true
		}
	}
	assert.True(t, found, "locally owned line must survive reconciliation")
}

func TestOrderImport_UnmappedCarrierFailsTheRecord(t *testing.T) {
	fx := newOrderFixture() // no carriers mapped
	seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()

	outcome, err := r.ImportOne(ctx, remoteOrder1001())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, integration.ErrorKindLocalValidation, outcome.ErrorKind)
	assert.Contains(t, outcome.Reason, "usps")

	_, err = fx.orders.FindByReference(ctx, "#1001")
	assert.ErrorIs(t, err, trade.ErrOrderNotFound)
}

func TestOrderImport_NewTrackingMergesIntoLatestShipment(t *testing.T) {
	fx := newOrderFixture("usps")
	seedOrderMappings(t, fx)
	r := newOrderReconcilerFor(fx)
	ctx := context.Background()
	node := remoteOrder1001()

	_, err := r.ImportOne(ctx, node)
	require.NoError(t, err)

	node.Fulfillments = append(node.Fulfillments, integration.RemoteFulfillment{
		ID:              "gid://shopify/Fulfillment/31",
		TrackingNumbers: []string{"9400-0002", "9400-0001"},
		CreatedAt:       time.Now(),
	})
	outcome, err := r.ImportOne(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome.Kind)

	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	require.Len(t, order.Shipments, 1, "tracking merges, never a second shipment")
	assert.Equal(t, []string{"9400-0001", "9400-0002"}, order.Shipments[0].TrackingRefs())
}

func TestOrderImport_UnmappedProductLineStaysUnlinked(t *testing.T) {
	fx := newOrderFixture("usps")
	// Only the customer mapping exists; the variant is unknown and the SKU
	// resolves nothing.
	ctx := context.Background()
	_, err := fx.extIDs.Upsert(ctx, integration.EntityKindCustomer, uuid.New(),
		integration.SystemCodeShopify, integration.ResourceKindCustomer, "gid://shopify/Customer/300")
	require.NoError(t, err)
	r := newOrderReconcilerFor(fx)

	outcome, err := r.ImportOne(ctx, remoteOrder1001())
	require.NoError(t, err)
	assert.Equal(t, OutcomeImported, outcome.Kind)

	order, err := fx.orders.FindByReference(ctx, "#1001")
	require.NoError(t, err)
	line := order.LineByRemoteID("gid://shopify/LineItem/10")
	require.NotNil(t, line)
	assert.Nil(t, line.ProductID, "unresolvable product stays an unlinked line")
}
