package trade

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storesync/backend/internal/domain/shared"
)

func TestNewSalesOrder(t *testing.T) {
	placed := time.Now()

	o, err := NewSalesOrder(" SO-1001 ", placed)
	require.NoError(t, err)
	assert.Equal(t, "SO-1001", o.Reference)
	assert.Equal(t, OrderStatusDraft, o.Status)
	assert.Equal(t, placed, o.PlacedAt)

	_, err = NewSalesOrder("  ", placed)
	assert.ErrorIs(t, err, ErrOrderInvalidReference)
}

func TestSalesOrderRecomputeTotal(t *testing.T) {
	o, err := NewSalesOrder("SO-1002", time.Now())
	require.NoError(t, err)

	o.Lines = []OrderLine{
		{Kind: LineKindProduct, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromFloat(19.99)},
		{Kind: LineKindShipping, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(5.00)},
		{Kind: LineKindDiscount, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromFloat(-4.98)},
	}
	o.RecomputeTotal()
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromFloat(40.00)), "got %s", o.TotalAmount)
}

func TestSalesOrderLineByRemoteID(t *testing.T) {
	o := &SalesOrder{Lines: []OrderLine{
		{RemoteLineID: "gid://shopify/LineItem/1"},
		{RemoteLineID: "gid://shopify/LineItem/2"},
	}}
	assert.NotNil(t, o.LineByRemoteID("gid://shopify/LineItem/2"))
	assert.Nil(t, o.LineByRemoteID("gid://shopify/LineItem/9"))
}

func TestShipmentMergeTrackingRefs(t *testing.T) {
	s := &Shipment{TrackingNumbers: "1Z999,1Z000"}

	added := s.MergeTrackingRefs([]string{"1Z000", " 1Z111 ", ""})
	assert.True(t, added)
	assert.Equal(t, []string{"1Z999", "1Z000", "1Z111"}, s.TrackingRefs())

	added = s.MergeTrackingRefs([]string{"1Z111"})
	assert.False(t, added)
}

func TestLatestShipment(t *testing.T) {
	old := Shipment{BaseEntity: shared.NewBaseEntity()}
	old.CreatedAt = time.Now().Add(-time.Hour)
	recent := Shipment{BaseEntity: shared.NewBaseEntity()}
	recent.CreatedAt = time.Now()

	o := &SalesOrder{Shipments: []Shipment{old, recent}}
	assert.Equal(t, recent.ID, o.LatestShipment().ID)

	empty := &SalesOrder{}
	assert.Nil(t, empty.LatestShipment())
}

func TestNormalizeCarrierKey(t *testing.T) {
	// identifier wins over the display title when present
	assert.Equal(t, NormalizeCarrierKey("UPS Ground", "ups"), NormalizeCarrierKey("UPS Express", "UPS"))
	assert.Equal(t, NormalizeCarrierKey("U.S. Postal Service", ""), NormalizeCarrierKey("US Postal Service", ""))
	assert.NotEqual(t, NormalizeCarrierKey("FedEx", ""), NormalizeCarrierKey("UPS", ""))
}

func TestUnmappedCarrierError(t *testing.T) {
	err := UnmappedCarrierError("Custom Courier", "")
	assert.ErrorIs(t, err, ErrCarrierUnmapped)
	assert.Contains(t, err.Error(), "Custom Courier")
}
