package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
)

// ErrPublishRefused indicates a publish request against a production shop.
// Publishing is irreversible there, so only sandbox shops accept it.
var ErrPublishRefused = errors.New("shopify: publish refused on non-sandbox shop")

// ErrNoActiveLocation indicates the shop reported no usable location during
// the construction probe.
var ErrNoActiveLocation = errors.New("shopify: shop has no active location")

// ---------------------------------------------------------------------------
// GraphQL documents
// ---------------------------------------------------------------------------

const productFields = `
	id
	title
	descriptionHtml
	vendor
	productType
	status
	tags
	updatedAt
	variants(first: 100) { nodes { id sku barcode price position updatedAt } }
	media(first: 100) { nodes { id alt ... on MediaImage { image { url } } } }
`

const customerFields = `
	id
	email
	phone
	firstName
	lastName
	note
	updatedAt
	legacyProfile: metafield(namespace: "migration", key: "profile_id") { value }
	defaultAddress { id firstName lastName company address1 address2 city province zip countryCodeV2 phone }
	addresses { id firstName lastName company address1 address2 city province zip countryCodeV2 phone }
`

const orderFields = `
	id
	name
	email
	phone
	currencyCode
	createdAt
	updatedAt
	totalPriceSet { shopMoney { amount currencyCode } }
	totalDiscountsSet { shopMoney { amount currencyCode } }
	customer {` + customerFields + `}
	lineItems(first: 100) { nodes {
		id sku title quantity
		variant { id }
		originalUnitPriceSet { shopMoney { amount currencyCode } }
		discountAllocations { allocatedAmountSet { shopMoney { amount currencyCode } } }
		taxLines { title rate priceSet { shopMoney { amount currencyCode } } }
	} }
	shippingLines(first: 20) { nodes {
		id title carrierIdentifier
		originalPriceSet { shopMoney { amount currencyCode } }
	} }
	taxLines { title rate priceSet { shopMoney { amount currencyCode } } }
	discountApplications(first: 20) { nodes {
		... on DiscountCodeApplication { title: code code }
		... on ManualDiscountApplication { title }
	} }
	fulfillments { id status createdAt trackingInfo { number } }
`

const primaryLocationQuery = `query PrimaryLocation {
	locations(first: 1, query: "active:true") {
		nodes { id name }
	}
}`

const productsQuery = `query Products($first: Int!, $after: String, $query: String) {
	products(first: $first, after: $after, query: $query) {
		nodes {` + productFields + `}
		pageInfo { hasNextPage endCursor }
	}
}`

const productQuery = `query Product($id: ID!) {
	product(id: $id) {` + productFields + `}
}`

const productCreateMutation = `mutation ProductCreate($input: ProductInput!, $media: [CreateMediaInput!]) {
	productCreate(input: $input, media: $media) {
		product {` + productFields + `}
		userErrors { field message }
	}
}`

const productUpdateMutation = `mutation ProductUpdate($input: ProductInput!, $media: [CreateMediaInput!]) {
	productUpdate(input: $input, media: $media) {
		product {` + productFields + `}
		userErrors { field message }
	}
}`

const variantUpdateMutation = `mutation ProductVariantsBulkUpdate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
	productVariantsBulkUpdate(productId: $productId, variants: $variants) {
		userErrors { field message }
	}
}`

const productDeleteMutation = `mutation ProductDelete($input: ProductDeleteInput!) {
	productDelete(input: $input) {
		deletedProductId
		userErrors { field message }
	}
}`

const productReorderMediaMutation = `mutation ProductReorderMedia($id: ID!, $moves: [MoveInput!]!) {
	productReorderMedia(id: $id, moves: $moves) {
		userErrors { field message }
	}
}`

const publishablePublishMutation = `mutation PublishablePublish($id: ID!) {
	publishablePublish(id: $id, input: []) {
		userErrors { field message }
	}
}`

const ordersQuery = `query Orders($first: Int!, $after: String, $query: String) {
	orders(first: $first, after: $after, query: $query) {
		nodes {` + orderFields + `}
		pageInfo { hasNextPage endCursor }
	}
}`

const orderQuery = `query Order($id: ID!) {
	order(id: $id) {` + orderFields + `}
}`

const customersQuery = `query Customers($first: Int!, $after: String, $query: String) {
	customers(first: $first, after: $after, query: $query) {
		nodes {` + customerFields + `}
		pageInfo { hasNextPage endCursor }
	}
}`

const customerQuery = `query Customer($id: ID!) {
	customer(id: $id) {` + customerFields + `}
}`

// ---------------------------------------------------------------------------
// Adapter
// ---------------------------------------------------------------------------

// Adapter implements integration.StorefrontPlatform against one shop. One
// adapter is constructed per job and discarded afterwards.
type Adapter struct {
	client   *Client
	config   *Config
	logger   *zap.Logger
	location *integration.Location
}

var _ integration.StorefrontPlatform = (*Adapter)(nil)

// NewAdapter creates an adapter and probes the shop's primary location so a
// bad token or domain fails here, before any sync work starts.
func NewAdapter(ctx context.Context, config *Config, metrics *telemetry.SyncMetrics, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewClient(config, metrics, logger)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		client: client,
		config: config,
		logger: logger,
	}

	location, err := a.PrimaryLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("shopify: connection probe failed: %w", err)
	}
	a.location = location

	logger.Info("storefront adapter connected",
		zap.String("shop_domain", config.ShopDomain),
		zap.String("location_id", location.ID),
		zap.Bool("sandbox", config.IsSandbox),
	)
	return a, nil
}

// PrimaryLocation returns the shop's primary active location.
func (a *Adapter) PrimaryLocation(ctx context.Context) (*integration.Location, error) {
	payload, err := a.client.Send(ctx, primaryLocationQuery, nil)
	if err != nil {
		return nil, err
	}
	var data locationsData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if len(data.Locations.Nodes) == 0 {
		return nil, ErrNoActiveLocation
	}
	node := data.Locations.Nodes[0]
	return &integration.Location{ID: node.ID, Name: node.Name}, nil
}

// searchFilter renders a PageQuery into the platform's search syntax.
// Explicit ids win over the updated-since filter.
func searchFilter(q integration.PageQuery) string {
	if len(q.IDs) > 0 {
		terms := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			terms[i] = "id:" + legacyID(id)
		}
		return strings.Join(terms, " OR ")
	}
	if q.UpdatedSince != nil {
		return "updated_at:>=" + q.UpdatedSince.UTC().Format(time.RFC3339)
	}
	return ""
}

// legacyID extracts the numeric tail of a global id like
// "gid://shopify/Product/42"; search filters use the numeric form.
func legacyID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func pageVariables(q integration.PageQuery) map[string]any {
	vars := map[string]any{
		"first": q.PageSize,
	}
	if q.Cursor != "" {
		vars["after"] = q.Cursor
	}
	if filter := searchFilter(q); filter != "" {
		vars["query"] = filter
	}
	return vars
}

// ---------------------------------------------------------------------------
// Product operations
// ---------------------------------------------------------------------------

// PullProducts fetches one page of products.
func (a *Adapter) PullProducts(ctx context.Context, q integration.PageQuery) (*integration.ProductPage, error) {
	payload, err := a.client.Send(ctx, productsQuery, pageVariables(q))
	if err != nil {
		return nil, err
	}
	var data productsData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}

	page := &integration.ProductPage{
		EndCursor: data.Products.PageInfo.EndCursor,
		HasNext:   data.Products.PageInfo.HasNextPage,
	}
	for i := range data.Products.Nodes {
		page.Nodes = append(page.Nodes, data.Products.Nodes[i].toRemote())
	}
	return page, nil
}

// GetProduct fetches a single product by remote id.
func (a *Adapter) GetProduct(ctx context.Context, externalID string) (*integration.RemoteProduct, error) {
	payload, err := a.client.Send(ctx, productQuery, map[string]any{"id": externalID})
	if err != nil {
		return nil, err
	}
	var data productData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if data.Product == nil {
		return nil, fmt.Errorf("%w: product %s", integration.ErrPlatformNotFound, externalID)
	}
	product := data.Product.toRemote()
	return &product, nil
}

// UpsertProduct creates or updates a product together with its variants and
// media. Publishing is gated on the sandbox flag because it cannot be undone
// on a production shop.
func (a *Adapter) UpsertProduct(ctx context.Context, push *integration.ProductPush) (*integration.ProductPushResult, error) {
	if push.Publish && !a.config.IsSandbox {
		return nil, ErrPublishRefused
	}

	input := map[string]any{
		"title":           push.Title,
		"descriptionHtml": push.Description,
		"vendor":          push.Vendor,
		"productType":     push.ProductType,
		"tags":            push.Tags,
	}
	if push.Status != "" {
		input["status"] = strings.ToUpper(push.Status)
	}

	variants := make([]map[string]any, 0, len(push.Variants))
	for _, v := range push.Variants {
		variant := map[string]any{
			"sku":   v.SKU,
			"price": v.Price.StringFixed(2),
		}
		if v.ExternalID != "" {
			variant["id"] = v.ExternalID
		}
		if v.Barcode != "" {
			variant["barcode"] = v.Barcode
		}
		variants = append(variants, variant)
	}
	if len(variants) > 0 {
		input["variants"] = variants
	}

	media := make([]map[string]any, 0, len(push.MediaURLs))
	for _, url := range push.MediaURLs {
		media = append(media, map[string]any{
			"originalSource":   url,
			"mediaContentType": "IMAGE",
		})
	}

	mutation := productCreateMutation
	if push.ExternalID != "" {
		mutation = productUpdateMutation
		input["id"] = push.ExternalID
	}

	payload, err := a.client.Send(ctx, mutation, map[string]any{
		"input": input,
		"media": media,
	})
	if err != nil {
		return nil, err
	}

	var node *productNode
	var userErrors []userError
	if push.ExternalID != "" {
		var data productUpdateData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
		}
		node, userErrors = data.ProductUpdate.Product, data.ProductUpdate.UserErrors
	} else {
		var data productCreateData
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
		}
		node, userErrors = data.ProductCreate.Product, data.ProductCreate.UserErrors
	}
	if err := firstUserError(userErrors); err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: mutation returned no product", integration.ErrPlatformInvalidResponse)
	}

	if push.Publish {
		if err := a.publish(ctx, node.ID); err != nil {
			return nil, err
		}
	}

	remote := node.toRemote()
	result := &integration.ProductPushResult{
		ExternalID: remote.ID,
		Media:      remote.Media,
	}
	for _, v := range remote.Variants {
		result.VariantIDs = append(result.VariantIDs, v.ID)
	}
	return result, nil
}

func (a *Adapter) publish(ctx context.Context, externalID string) error {
	payload, err := a.client.Send(ctx, publishablePublishMutation, map[string]any{"id": externalID})
	if err != nil {
		return err
	}
	var data publishablePublishData
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return firstUserError(data.PublishablePublish.UserErrors)
}

// UpdateVariant updates a single variant in place.
func (a *Adapter) UpdateVariant(ctx context.Context, productExternalID string, push *integration.VariantPush) error {
	variant := map[string]any{
		"id":    push.ExternalID,
		"price": push.Price.StringFixed(2),
	}
	if push.SKU != "" {
		variant["sku"] = push.SKU
	}
	if push.Barcode != "" {
		variant["barcode"] = push.Barcode
	}

	payload, err := a.client.Send(ctx, variantUpdateMutation, map[string]any{
		"productId": productExternalID,
		"variants":  []map[string]any{variant},
	})
	if err != nil {
		return err
	}
	var data variantUpdateData
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return firstUserError(data.ProductVariantsBulkUpdate.UserErrors)
}

// ReorderMedia rewrites the media order in place, the cheap export path when
// only image order drifted.
func (a *Adapter) ReorderMedia(ctx context.Context, externalID string, mediaIDs []string) error {
	moves := make([]map[string]any, 0, len(mediaIDs))
	for i, id := range mediaIDs {
		moves = append(moves, map[string]any{
			"id":          id,
			"newPosition": fmt.Sprintf("%d", i),
		})
	}

	payload, err := a.client.Send(ctx, productReorderMediaMutation, map[string]any{
		"id":    externalID,
		"moves": moves,
	})
	if err != nil {
		return err
	}
	var data productReorderMediaData
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return firstUserError(data.ProductReorderMedia.UserErrors)
}

// DeleteProduct removes a product from the platform. A product that is
// already gone counts as deleted.
func (a *Adapter) DeleteProduct(ctx context.Context, externalID string) error {
	payload, err := a.client.Send(ctx, productDeleteMutation, map[string]any{
		"input": map[string]any{"id": externalID},
	})
	if err != nil {
		return err
	}
	var data productDeleteData
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	for _, ue := range data.ProductDelete.UserErrors {
		if strings.Contains(strings.ToLower(ue.Message), "not exist") ||
			strings.Contains(strings.ToLower(ue.Message), "not found") {
			return nil
		}
	}
	return firstUserError(data.ProductDelete.UserErrors)
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// PullOrders fetches one page of orders.
func (a *Adapter) PullOrders(ctx context.Context, q integration.PageQuery) (*integration.OrderPage, error) {
	payload, err := a.client.Send(ctx, ordersQuery, pageVariables(q))
	if err != nil {
		return nil, err
	}
	var data ordersData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}

	page := &integration.OrderPage{
		EndCursor: data.Orders.PageInfo.EndCursor,
		HasNext:   data.Orders.PageInfo.HasNextPage,
	}
	for i := range data.Orders.Nodes {
		page.Nodes = append(page.Nodes, data.Orders.Nodes[i].toRemote())
	}
	return page, nil
}

// GetOrder fetches a single order by remote id.
func (a *Adapter) GetOrder(ctx context.Context, externalID string) (*integration.RemoteOrder, error) {
	payload, err := a.client.Send(ctx, orderQuery, map[string]any{"id": externalID})
	if err != nil {
		return nil, err
	}
	var data orderData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if data.Order == nil {
		return nil, fmt.Errorf("%w: order %s", integration.ErrPlatformNotFound, externalID)
	}
	order := data.Order.toRemote()
	return &order, nil
}

// ---------------------------------------------------------------------------
// Customer operations
// ---------------------------------------------------------------------------

// PullCustomers fetches one page of customers.
func (a *Adapter) PullCustomers(ctx context.Context, q integration.PageQuery) (*integration.CustomerPage, error) {
	payload, err := a.client.Send(ctx, customersQuery, pageVariables(q))
	if err != nil {
		return nil, err
	}
	var data customersData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}

	page := &integration.CustomerPage{
		EndCursor: data.Customers.PageInfo.EndCursor,
		HasNext:   data.Customers.PageInfo.HasNextPage,
	}
	for i := range data.Customers.Nodes {
		page.Nodes = append(page.Nodes, data.Customers.Nodes[i].toRemote())
	}
	return page, nil
}

// GetCustomer fetches a single customer by remote id.
func (a *Adapter) GetCustomer(ctx context.Context, externalID string) (*integration.RemoteCustomer, error) {
	payload, err := a.client.Send(ctx, customerQuery, map[string]any{"id": externalID})
	if err != nil {
		return nil, err
	}
	var data customerData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if data.Customer == nil {
		return nil, fmt.Errorf("%w: customer %s", integration.ErrPlatformNotFound, externalID)
	}
	customer := data.Customer.toRemote()
	return &customer, nil
}

func firstUserError(errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", integration.ErrPlatformRequestFailed, errs[0].Message)
}
