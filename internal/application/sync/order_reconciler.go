package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/domain/trade"
)

// OrderReconcilerConfig wires an order reconciler for one job
type OrderReconcilerConfig struct {
	Platform    integration.StorefrontPlatform
	Orders      trade.OrderRepository
	Carriers    trade.CarrierRepository
	Products    catalog.ProductRepository
	ExternalIDs integration.ExternalIDRepository
	PageSize    int
	Since       *time.Time
	IDs         []string
	Logger      *zap.Logger
}

// OrderReconciler rebuilds local sales orders from remote order pulls.
// Lines carry the remote line identity so re-imports update in place;
// discounts and taxes become explicit lines; shipping charges resolve
// through the carrier mapping table, and an unmapped carrier is a hard
// failure the operator has to fix, never a silent default.
type OrderReconciler struct {
	platform integration.StorefrontPlatform
	orders   trade.OrderRepository
	carriers trade.CarrierRepository
	products catalog.ProductRepository
	extIDs   integration.ExternalIDRepository
	pageSize int
	since    *time.Time
	ids      []string
	logger   *zap.Logger
}

var _ PageImporter[integration.RemoteOrder] = (*OrderReconciler)(nil)

// NewOrderReconciler creates an order reconciler
func NewOrderReconciler(cfg OrderReconcilerConfig) *OrderReconciler {
	return &OrderReconciler{
		platform: cfg.Platform,
		orders:   cfg.Orders,
		carriers: cfg.Carriers,
		products: cfg.Products,
		extIDs:   cfg.ExternalIDs,
		pageSize: cfg.PageSize,
		since:    cfg.Since,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
	}
}

// FetchPage pulls one page of remote orders
func (r *OrderReconciler) FetchPage(ctx context.Context, cursor string) (*Page[integration.RemoteOrder], error) {
	page, err := r.platform.PullOrders(ctx, integration.PageQuery{
		Cursor:       cursor,
		PageSize:     r.pageSize,
		UpdatedSince: r.since,
		IDs:          r.ids,
	})
	if err != nil {
		return nil, err
	}
	return &Page[integration.RemoteOrder]{
		Nodes:     page.Nodes,
		EndCursor: page.EndCursor,
		HasNext:   page.HasNext,
	}, nil
}

// desiredLine is one line the remote snapshot says the order should carry
type desiredLine struct {
	remoteLineID string
	kind         trade.LineKind
	productID    *uuid.UUID
	description  string
	sku          string
	quantity     decimal.Decimal
	unitPrice    decimal.Decimal
	taxAmount    decimal.Decimal
}

// ImportOne reconciles one remote order into the local aggregate
func (r *OrderReconciler) ImportOne(ctx context.Context, node integration.RemoteOrder) (Outcome, error) {
	if node.Name == "" {
		return Skipped("order carries no reference"), nil
	}

	desired, carrierID, out, err := r.buildDesiredLines(ctx, node)
	if err != nil || out != nil {
		if out != nil {
			return *out, nil
		}
		return Outcome{}, err
	}

	customerID, err := r.resolveCustomer(ctx, node.Customer)
	if err != nil {
		return Outcome{}, err
	}

	order, err := r.orders.FindByReference(ctx, node.Name)
	if err != nil && !errors.Is(err, trade.ErrOrderNotFound) {
		return Outcome{}, err
	}

	if order == nil {
		return r.createOrder(ctx, node, desired, customerID, carrierID)
	}

	changed, err := r.syncLines(ctx, order, desired)
	if err != nil {
		return Outcome{}, err
	}

	headerChanged, err := r.syncHeader(ctx, order, node, desired, customerID)
	if err != nil {
		return Outcome{}, err
	}
	changed = changed || headerChanged

	shipChanged, err := r.syncTracking(ctx, order, node, carrierID)
	if err != nil {
		return Outcome{}, err
	}
	changed = changed || shipChanged

	if err := r.ensureMapping(ctx, order.ID, node.ID); err != nil {
		return Outcome{}, err
	}
	if !changed {
		return Skipped("no fields differed"), nil
	}
	return Imported(), nil
}

// buildDesiredLines translates the remote order into the local line set.
// Shipping lines are grouped by normalized carrier key so one carrier
// resolution covers all its charges; the first resolved carrier is also the
// one tracking references attach to.
func (r *OrderReconciler) buildDesiredLines(ctx context.Context, node integration.RemoteOrder) ([]desiredLine, *uuid.UUID, *Outcome, error) {
	var desired []desiredLine

	variantIDs := make([]string, 0, len(node.LineItems))
	for _, li := range node.LineItems {
		if li.VariantID != "" {
			variantIDs = append(variantIDs, li.VariantID)
		}
	}
	variantMap, err := r.extIDs.MapByExternalIDs(ctx, integration.SystemCodeShopify, integration.ResourceKindVariant, variantIDs)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, li := range node.LineItems {
		productID, err := r.resolveProduct(ctx, li, variantMap)
		if err != nil {
			return nil, nil, nil, err
		}

		taxTotal := decimal.Zero
		for _, tl := range li.TaxLines {
			taxTotal = taxTotal.Add(tl.Amount)
		}

		desired = append(desired, desiredLine{
			remoteLineID: li.ID,
			kind:         trade.LineKindProduct,
			productID:    productID,
			description:  li.Title,
			sku:          li.SKU,
			quantity:     li.Quantity,
			unitPrice:    li.UnitPrice,
			taxAmount:    taxTotal,
		})

		for i, da := range li.DiscountAllocations {
			desired = append(desired, desiredLine{
				remoteLineID: fmt.Sprintf("%s/discount/%d", li.ID, i),
				kind:         trade.LineKindDiscount,
				description:  discountLabel(da),
				quantity:     decimal.NewFromInt(1),
				unitPrice:    da.Amount.Neg(),
			})
		}
	}

	for i, d := range node.Discounts {
		desired = append(desired, desiredLine{
			remoteLineID: fmt.Sprintf("%s/discount/%d", node.ID, i),
			kind:         trade.LineKindDiscount,
			description:  discountLabel(d),
			quantity:     decimal.NewFromInt(1),
			unitPrice:    d.Amount.Neg(),
		})
	}

	for i, tl := range node.TaxLines {
		desired = append(desired, desiredLine{
			remoteLineID: fmt.Sprintf("%s/tax/%d", node.ID, i),
			kind:         trade.LineKindTax,
			description:  tl.Title,
			quantity:     decimal.NewFromInt(1),
			unitPrice:    tl.Amount,
		})
	}

	var carrierID *uuid.UUID
	resolved := make(map[string]*trade.Carrier)
	for _, sl := range node.ShippingLines {
		key := trade.NormalizeCarrierKey(sl.Title, sl.CarrierIdentifier)
		carrier, ok := resolved[key]
		if !ok {
			carrier, err = r.carriers.ResolveCarrier(ctx, key)
			if err != nil {
				if errors.Is(err, trade.ErrCarrierUnmapped) {
					out := Failed(integration.ErrorKindLocalValidation,
						trade.UnmappedCarrierError(sl.Title, sl.CarrierIdentifier).Error(), node)
					return nil, nil, &out, nil
				}
				return nil, nil, nil, err
			}
			resolved[key] = carrier
		}
		if carrierID == nil {
			id := carrier.ID
			carrierID = &id
		}

		desired = append(desired, desiredLine{
			remoteLineID: sl.ID,
			kind:         trade.LineKindShipping,
			description:  sl.Title,
			quantity:     decimal.NewFromInt(1),
			unitPrice:    sl.Price,
		})
	}

	return desired, carrierID, nil, nil
}

// resolveProduct maps a remote line to a local product: variant mapping
// first, SKU lookup second, unresolved stays nil
func (r *OrderReconciler) resolveProduct(ctx context.Context, li integration.RemoteLineItem, variantMap map[string]*integration.ExternalIDMapping) (*uuid.UUID, error) {
	if li.VariantID != "" {
		if mapping, ok := variantMap[li.VariantID]; ok {
			id := mapping.LocalID
			return &id, nil
		}
	}
	if li.SKU == "" {
		return nil, nil
	}
	sku, _ := catalog.ParseSKUField(li.SKU)
	product, err := r.products.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, nil
		}
		return nil, err
	}
	id := product.ID
	return &id, nil
}

func (r *OrderReconciler) resolveCustomer(ctx context.Context, customer *integration.RemoteCustomer) (*uuid.UUID, error) {
	if customer == nil {
		return nil, nil
	}
	mapping, err := r.extIDs.FindByExternalID(ctx, integration.SystemCodeShopify, integration.ResourceKindCustomer, customer.ID)
	if err != nil {
		if errors.Is(err, integration.ErrMappingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	id := mapping.LocalID
	return &id, nil
}

func (r *OrderReconciler) createOrder(ctx context.Context, node integration.RemoteOrder, desired []desiredLine, customerID, carrierID *uuid.UUID) (Outcome, error) {
	order, err := trade.NewSalesOrder(node.Name, node.CreatedAt)
	if err != nil {
		return Failed(integration.ErrorKindLocalValidation, err.Error(), node), nil
	}
	order.Status = trade.OrderStatusConfirmed
	if node.Currency != "" {
		order.Currency = node.Currency
	}
	order.CustomerID = customerID

	for _, d := range desired {
		order.Lines = append(order.Lines, newOrderLine(order.ID, d))
	}
	order.RecomputeTotal()

	if tracking := collectTracking(node.Fulfillments); len(tracking) > 0 && carrierID != nil {
		shipment := trade.Shipment{
			BaseEntity: shared.NewBaseEntity(),
			OrderID:    order.ID,
			CarrierID:  *carrierID,
		}
		shipment.MergeTrackingRefs(tracking)
		if at := latestFulfillmentTime(node.Fulfillments); at != nil {
			shipment.ShippedAt = at
		}
		order.Shipments = append(order.Shipments, shipment)
	}

	if err := r.orders.Save(ctx, order); err != nil {
		return Outcome{}, err
	}
	if err := r.ensureMapping(ctx, order.ID, node.ID); err != nil {
		return Outcome{}, err
	}
	return Imported(), nil
}

// syncLines updates lines by remote line id, inserts new ones and deletes
// lines the remote order no longer carries. Lines without a remote line id
// are locally owned and never touched.
func (r *OrderReconciler) syncLines(ctx context.Context, order *trade.SalesOrder, desired []desiredLine) (bool, error) {
	changed := false
	wanted := make(map[string]struct{}, len(desired))

	for _, d := range desired {
		wanted[d.remoteLineID] = struct{}{}

		existing := order.LineByRemoteID(d.remoteLineID)
		if existing == nil {
			line := newOrderLine(order.ID, d)
			if err := r.orders.SaveLine(ctx, &line); err != nil {
				return changed, err
			}
			order.Lines = append(order.Lines, line)
			changed = true
			continue
		}

		patch := shared.NewPatch().
			SetString("description", existing.Description, d.description).
			SetString("sku", existing.SKU, d.sku).
			SetDecimal("quantity", existing.Quantity, d.quantity, -1).
			SetDecimal("unit_price", existing.UnitPrice, d.unitPrice, -1).
			SetDecimal("tax_amount", existing.TaxAmount, d.taxAmount, -1).
			SetRef("product_id", existing.ProductID, d.productID)
		if !patch.Changed() {
			continue
		}
		if err := r.orders.UpdateLineFields(ctx, existing.ID, patch.Columns()); err != nil {
			return changed, err
		}
		existing.Description = d.description
		existing.SKU = d.sku
		existing.Quantity = d.quantity
		existing.UnitPrice = d.unitPrice
		existing.TaxAmount = d.taxAmount
		existing.ProductID = d.productID
		changed = true
	}

	var stale []uuid.UUID
	kept := order.Lines[:0]
	for i := range order.Lines {
		line := order.Lines[i]
		if line.RemoteLineID != "" {
			if _, ok := wanted[line.RemoteLineID]; !ok {
				stale = append(stale, line.ID)
				continue
			}
		}
		kept = append(kept, line)
	}
	if len(stale) > 0 {
		if err := r.orders.DeleteLines(ctx, stale); err != nil {
			return changed, err
		}
		order.Lines = kept
		changed = true
	}

	return changed, nil
}

func (r *OrderReconciler) syncHeader(ctx context.Context, order *trade.SalesOrder, node integration.RemoteOrder, desired []desiredLine, customerID *uuid.UUID) (bool, error) {
	previousTotal := order.TotalAmount
	order.RecomputeTotal()

	patch := shared.NewPatch().
		SetDecimal("total_amount", previousTotal, order.TotalAmount, -1).
		SetRef("customer_id", order.CustomerID, customerID)
	if node.Currency != "" {
		patch.SetString("currency", order.Currency, node.Currency)
	}

	if !patch.Changed() {
		return false, nil
	}
	if err := r.orders.UpdateFields(ctx, order.ID, patch.Columns()); err != nil {
		return false, err
	}
	order.CustomerID = customerID
	return true, nil
}

// syncTracking merges fulfillment tracking numbers into the latest
// shipment, creating one when the order has none and a carrier is known
func (r *OrderReconciler) syncTracking(ctx context.Context, order *trade.SalesOrder, node integration.RemoteOrder, carrierID *uuid.UUID) (bool, error) {
	tracking := collectTracking(node.Fulfillments)
	if len(tracking) == 0 {
		return false, nil
	}

	shipment := order.LatestShipment()
	if shipment == nil {
		if carrierID == nil {
			r.logger.Warn("order has tracking but no resolvable carrier, skipping shipment",
				zap.String("reference", order.Reference))
			return false, nil
		}
		created := trade.Shipment{
			BaseEntity: shared.NewBaseEntity(),
			OrderID:    order.ID,
			CarrierID:  *carrierID,
		}
		created.MergeTrackingRefs(tracking)
		if at := latestFulfillmentTime(node.Fulfillments); at != nil {
			created.ShippedAt = at
		}
		if err := r.orders.SaveShipment(ctx, &created); err != nil {
			return false, err
		}
		order.Shipments = append(order.Shipments, created)
		return true, nil
	}

	if !shipment.MergeTrackingRefs(tracking) {
		return false, nil
	}
	if err := r.orders.SaveShipment(ctx, shipment); err != nil {
		return false, err
	}
	return true, nil
}

func (r *OrderReconciler) ensureMapping(ctx context.Context, localID uuid.UUID, externalID string) error {
	action, err := r.extIDs.Upsert(ctx, integration.EntityKindOrder, localID,
		integration.SystemCodeShopify, integration.ResourceKindOrder, externalID)
	if err != nil {
		return err
	}
	if action == integration.UpsertSkipConflict {
		r.logger.Warn("order external id claimed by another record",
			zap.String("local_id", localID.String()),
			zap.String("external_id", externalID))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newOrderLine(orderID uuid.UUID, d desiredLine) trade.OrderLine {
	return trade.OrderLine{
		BaseEntity:   shared.NewBaseEntity(),
		OrderID:      orderID,
		Kind:         d.kind,
		ProductID:    d.productID,
		RemoteLineID: d.remoteLineID,
		Description:  d.description,
		SKU:          d.sku,
		Quantity:     d.quantity,
		UnitPrice:    d.unitPrice,
		TaxAmount:    d.taxAmount,
	}
}

func discountLabel(d integration.RemoteDiscount) string {
	switch {
	case d.Code != "":
		return "Discount " + d.Code
	case d.Title != "":
		return "Discount " + d.Title
	default:
		return "Discount"
	}
}

// collectTracking flattens and deduplicates tracking numbers across all
// fulfillments, preserving first-seen order
func collectTracking(fulfillments []integration.RemoteFulfillment) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range fulfillments {
		for _, n := range f.TrackingNumbers {
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

func latestFulfillmentTime(fulfillments []integration.RemoteFulfillment) *time.Time {
	var latest *time.Time
	for i := range fulfillments {
		t := fulfillments[i].CreatedAt
		if t.IsZero() {
			continue
		}
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest
}
