package shopify

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storesync/backend/internal/domain/integration"
)

// throttledCode is the extensions code the platform uses for
// application-level back-pressure, distinct from an HTTP 429.
const throttledCode = "THROTTLED"

// ---------------------------------------------------------------------------
// GraphQL envelope
// ---------------------------------------------------------------------------

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type throttleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphQLError  `json:"errors"`
	Extensions struct {
		Cost struct {
			RequestedQueryCost float64         `json:"requestedQueryCost"`
			ActualQueryCost    float64         `json:"actualQueryCost"`
			ThrottleStatus     *throttleStatus `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
}

// throttled reports whether any application-level error carries the
// throttle code.
func (r *graphQLResponse) throttled() bool {
	for _, e := range r.Errors {
		if e.Extensions.Code == throttledCode {
			return true
		}
	}
	return false
}

// userError is the payload-level validation error shape every mutation
// carries
type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// ---------------------------------------------------------------------------
// Shared response fragments
// ---------------------------------------------------------------------------

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type moneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type moneyBag struct {
	ShopMoney moneyV2 `json:"shopMoney"`
}

// parseAmount parses a platform money string, returning zero on malformed
// input rather than failing the whole page
func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ---------------------------------------------------------------------------
// Location
// ---------------------------------------------------------------------------

type locationNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type locationsData struct {
	Locations struct {
		Nodes []locationNode `json:"nodes"`
	} `json:"locations"`
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

type mediaNode struct {
	ID    string `json:"id"`
	Alt   string `json:"alt"`
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
}

type variantNode struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Barcode   string    `json:"barcode"`
	Price     string    `json:"price"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type productNode struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DescriptionHTML string    `json:"descriptionHtml"`
	Vendor          string    `json:"vendor"`
	ProductType     string    `json:"productType"`
	Status          string    `json:"status"`
	Tags            []string  `json:"tags"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Variants        struct {
		Nodes []variantNode `json:"nodes"`
	} `json:"variants"`
	Media struct {
		Nodes []mediaNode `json:"nodes"`
	} `json:"media"`
}

func (n *productNode) toRemote() integration.RemoteProduct {
	p := integration.RemoteProduct{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.DescriptionHTML,
		Vendor:      n.Vendor,
		ProductType: n.ProductType,
		Status:      n.Status,
		Tags:        n.Tags,
		UpdatedAt:   n.UpdatedAt,
	}
	for i, v := range n.Variants.Nodes {
		position := v.Position
		if position == 0 {
			position = i + 1
		}
		p.Variants = append(p.Variants, integration.RemoteVariant{
			ID:        v.ID,
			SKU:       v.SKU,
			Barcode:   v.Barcode,
			Price:     parseAmount(v.Price),
			Position:  position,
			UpdatedAt: v.UpdatedAt,
		})
	}
	// The platform stores the composite sku-and-bin value on the first
	// variant; the reconciler splits it locally.
	if len(p.Variants) > 0 {
		p.SKUField = p.Variants[0].SKU
	}
	for i, m := range n.Media.Nodes {
		p.Media = append(p.Media, integration.RemoteMedia{
			ID:       m.ID,
			URL:      m.Image.URL,
			Alt:      m.Alt,
			Position: i + 1,
		})
	}
	return p
}

type productsData struct {
	Products struct {
		Nodes    []productNode `json:"nodes"`
		PageInfo pageInfo      `json:"pageInfo"`
	} `json:"products"`
}

type productData struct {
	Product *productNode `json:"product"`
}

type productMutationPayload struct {
	Product    *productNode `json:"product"`
	UserErrors []userError  `json:"userErrors"`
}

type productCreateData struct {
	ProductCreate productMutationPayload `json:"productCreate"`
}

type productUpdateData struct {
	ProductUpdate productMutationPayload `json:"productUpdate"`
}

type variantUpdateData struct {
	ProductVariantsBulkUpdate struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"productVariantsBulkUpdate"`
}

type productDeleteData struct {
	ProductDelete struct {
		DeletedProductID string      `json:"deletedProductId"`
		UserErrors       []userError `json:"userErrors"`
	} `json:"productDelete"`
}

type productReorderMediaData struct {
	ProductReorderMedia struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"productReorderMedia"`
}

type publishablePublishData struct {
	PublishablePublish struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"publishablePublish"`
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

type addressNode struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Company     string `json:"company"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Zip         string `json:"zip"`
	CountryCode string `json:"countryCodeV2"`
	Phone       string `json:"phone"`
}

func (n *addressNode) toRemote() integration.RemoteAddress {
	return integration.RemoteAddress{
		ID:          n.ID,
		FirstName:   n.FirstName,
		LastName:    n.LastName,
		Company:     n.Company,
		Address1:    n.Address1,
		Address2:    n.Address2,
		City:        n.City,
		Province:    n.Province,
		Zip:         n.Zip,
		CountryCode: n.CountryCode,
		Phone:       n.Phone,
	}
}

type customerNode struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Note           string    `json:"note"`
	UpdatedAt      time.Time `json:"updatedAt"`
	DefaultAddress *addressNode `json:"defaultAddress"`
	Addresses      []addressNode `json:"addresses"`
	LegacyProfile  *struct {
		Value string `json:"value"`
	} `json:"legacyProfile"`
}

func (n *customerNode) toRemote() integration.RemoteCustomer {
	c := integration.RemoteCustomer{
		ID:        n.ID,
		Email:     n.Email,
		Phone:     n.Phone,
		FirstName: n.FirstName,
		LastName:  n.LastName,
		Note:      n.Note,
		UpdatedAt: n.UpdatedAt,
	}
	if n.LegacyProfile != nil {
		c.LegacyProfileID = n.LegacyProfile.Value
	}
	if n.DefaultAddress != nil {
		addr := n.DefaultAddress.toRemote()
		c.DefaultAddress = &addr
	}
	for i := range n.Addresses {
		c.Addresses = append(c.Addresses, n.Addresses[i].toRemote())
	}
	return c
}

type customersData struct {
	Customers struct {
		Nodes    []customerNode `json:"nodes"`
		PageInfo pageInfo       `json:"pageInfo"`
	} `json:"customers"`
}

type customerData struct {
	Customer *customerNode `json:"customer"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

type discountAllocationNode struct {
	AllocatedAmountSet moneyBag `json:"allocatedAmountSet"`
}

type taxLineNode struct {
	Title    string   `json:"title"`
	Rate     float64  `json:"rate"`
	PriceSet moneyBag `json:"priceSet"`
}

func (n *taxLineNode) toRemote() integration.RemoteTaxLine {
	return integration.RemoteTaxLine{
		Title:  n.Title,
		Rate:   decimal.NewFromFloat(n.Rate),
		Amount: parseAmount(n.PriceSet.ShopMoney.Amount),
	}
}

type lineItemNode struct {
	ID      string `json:"id"`
	SKU     string `json:"sku"`
	Title   string `json:"title"`
	Quantity int   `json:"quantity"`
	Variant *struct {
		ID string `json:"id"`
	} `json:"variant"`
	OriginalUnitPriceSet moneyBag                 `json:"originalUnitPriceSet"`
	DiscountAllocations  []discountAllocationNode `json:"discountAllocations"`
	TaxLines             []taxLineNode            `json:"taxLines"`
}

func (n *lineItemNode) toRemote() integration.RemoteLineItem {
	li := integration.RemoteLineItem{
		ID:        n.ID,
		SKU:       n.SKU,
		Title:     n.Title,
		Quantity:  decimal.NewFromInt(int64(n.Quantity)),
		UnitPrice: parseAmount(n.OriginalUnitPriceSet.ShopMoney.Amount),
	}
	if n.Variant != nil {
		li.VariantID = n.Variant.ID
	}
	for _, d := range n.DiscountAllocations {
		li.DiscountAllocations = append(li.DiscountAllocations, integration.RemoteDiscount{
			Amount: parseAmount(d.AllocatedAmountSet.ShopMoney.Amount),
		})
	}
	for i := range n.TaxLines {
		li.TaxLines = append(li.TaxLines, n.TaxLines[i].toRemote())
	}
	return li
}

type shippingLineNode struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	CarrierIdentifier string   `json:"carrierIdentifier"`
	PriceSet          moneyBag `json:"originalPriceSet"`
}

type fulfillmentNode struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	TrackingInfo []struct {
		Number string `json:"number"`
	} `json:"trackingInfo"`
}

type discountApplicationNode struct {
	Title string `json:"title"`
	Code  string `json:"code"`
	Value struct {
		Amount string `json:"amount"`
	} `json:"value"`
}

type orderNode struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	Phone                string    `json:"phone"`
	CurrencyCode         string    `json:"currencyCode"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	TotalPriceSet        moneyBag  `json:"totalPriceSet"`
	TotalDiscountsSet    moneyBag  `json:"totalDiscountsSet"`
	Customer             *customerNode `json:"customer"`
	LineItems            struct {
		Nodes []lineItemNode `json:"nodes"`
	} `json:"lineItems"`
	ShippingLines struct {
		Nodes []shippingLineNode `json:"nodes"`
	} `json:"shippingLines"`
	TaxLines             []taxLineNode             `json:"taxLines"`
	DiscountApplications struct {
		Nodes []discountApplicationNode `json:"nodes"`
	} `json:"discountApplications"`
	Fulfillments []fulfillmentNode `json:"fulfillments"`
}

func (n *orderNode) toRemote() integration.RemoteOrder {
	o := integration.RemoteOrder{
		ID:            n.ID,
		Name:          n.Name,
		Email:         n.Email,
		Phone:         n.Phone,
		Currency:      n.CurrencyCode,
		TotalPrice:    parseAmount(n.TotalPriceSet.ShopMoney.Amount),
		TotalDiscount: parseAmount(n.TotalDiscountsSet.ShopMoney.Amount),
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
	if n.Customer != nil {
		c := n.Customer.toRemote()
		o.Customer = &c
	}
	for i := range n.LineItems.Nodes {
		o.LineItems = append(o.LineItems, n.LineItems.Nodes[i].toRemote())
	}
	for _, s := range n.ShippingLines.Nodes {
		o.ShippingLines = append(o.ShippingLines, integration.RemoteShippingLine{
			ID:                s.ID,
			Title:             s.Title,
			CarrierIdentifier: s.CarrierIdentifier,
			Price:             parseAmount(s.PriceSet.ShopMoney.Amount),
		})
	}
	for i := range n.TaxLines {
		o.TaxLines = append(o.TaxLines, n.TaxLines[i].toRemote())
	}
	for _, d := range n.DiscountApplications.Nodes {
		o.Discounts = append(o.Discounts, integration.RemoteDiscount{
			Title:  d.Title,
			Code:   d.Code,
			Amount: parseAmount(d.Value.Amount),
		})
	}
	for _, f := range n.Fulfillments {
		rf := integration.RemoteFulfillment{
			ID:        f.ID,
			Status:    f.Status,
			CreatedAt: f.CreatedAt,
		}
		for _, ti := range f.TrackingInfo {
			if ti.Number != "" {
				rf.TrackingNumbers = append(rf.TrackingNumbers, ti.Number)
			}
		}
		o.Fulfillments = append(o.Fulfillments, rf)
	}
	return o
}

type ordersData struct {
	Orders struct {
		Nodes    []orderNode `json:"nodes"`
		PageInfo pageInfo    `json:"pageInfo"`
	} `json:"orders"`
}

type orderData struct {
	Order *orderNode `json:"order"`
}
