package sync

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/partner"
	"github.com/storesync/backend/internal/domain/shared"
	syncdomain "github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/domain/trade"
)

// ---------------------------------------------------------------------------
// Job repository
// ---------------------------------------------------------------------------

type memJobs struct {
	mu   gosync.Mutex
	rows map[uuid.UUID]*syncdomain.Job
}

var _ syncdomain.JobRepository = (*memJobs)(nil)

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[uuid.UUID]*syncdomain.Job)}
}

func (m *memJobs) EnqueueDeduped(_ context.Context, job *syncdomain.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.State == syncdomain.StateQueued && row.Mode == job.Mode && row.Selector.Key() == job.Selector.Key() {
			return false, nil
		}
	}
	copied := *job
	m.rows[job.ID] = &copied
	return true, nil
}

func (m *memJobs) ClaimNextQueued(_ context.Context) (*syncdomain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var queued []*syncdomain.Job
	for _, row := range m.rows {
		if row.State == syncdomain.StateRunning {
			// Only one job runs at a time, same rule the SQL claim enforces.
			return nil, nil
		}
		if row.State == syncdomain.StateQueued {
			queued = append(queued, row)
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].RetryAttempts != queued[j].RetryAttempts {
			return queued[i].RetryAttempts > queued[j].RetryAttempts
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	job := queued[0]
	if err := job.Start(); err != nil {
		return nil, err
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) ReclaimStale(_ context.Context, idleThreshold time.Duration, maxRetries int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	requeued, failed := 0, 0
	for _, row := range m.rows {
		if !row.Stale(idleThreshold, now) {
			continue
		}
		if row.RetryAttempts < maxRetries {
			row.State = syncdomain.StateQueued
			row.RetryAttempts++
			row.StartTime = nil
			row.HeartbeatAt = nil
			requeued++
		} else {
			row.State = syncdomain.StateFailed
			failed++
		}
	}
	return requeued, failed, nil
}

func (m *memJobs) Heartbeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Touch()
	}
	return nil
}

func (m *memJobs) SaveProgress(_ context.Context, job *syncdomain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[job.ID]; ok {
		row.TotalCount = job.TotalCount
		row.UpdatedCount = job.UpdatedCount
		row.Touch()
	}
	return nil
}

func (m *memJobs) Finish(_ context.Context, job *syncdomain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.rows[job.ID] = &copied
	return nil
}

func (m *memJobs) FindByID(_ context.Context, id uuid.UUID) (*syncdomain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, syncdomain.ErrJobNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *memJobs) List(_ context.Context, filter syncdomain.JobFilter) ([]syncdomain.Job, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []syncdomain.Job
	for _, row := range m.rows {
		if filter.Mode != nil && row.Mode != *filter.Mode {
			continue
		}
		if filter.State != nil && row.State != *filter.State {
			continue
		}
		out = append(out, *row)
	}
	return out, int64(len(out)), nil
}

func (m *memJobs) CountRunning(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, row := range m.rows {
		if row.State == syncdomain.StateRunning {
			count++
		}
	}
	return count, nil
}

func (m *memJobs) HasRecentActivity(_ context.Context, modes []syncdomain.Mode, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	since := time.Now().Add(-window)
	for _, row := range m.rows {
		match := false
		for _, mode := range modes {
			if row.Mode == mode {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		switch row.State {
		case syncdomain.StateQueued, syncdomain.StateRunning:
			return true, nil
		case syncdomain.StateSuccess:
			if row.EndTime != nil && row.EndTime.After(since) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memJobs) PruneOld(_ context.Context, _ time.Duration, _ int) (int64, error) {
	return 0, nil
}

func (m *memJobs) countState(state syncdomain.State) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.State == state {
			count++
		}
	}
	return count
}

// ---------------------------------------------------------------------------
// Watermark store
// ---------------------------------------------------------------------------

type memWatermarks struct {
	mu    gosync.Mutex
	marks map[integration.ResourceKind]time.Time
}

var _ syncdomain.WatermarkStore = (*memWatermarks)(nil)

func newMemWatermarks() *memWatermarks {
	return &memWatermarks{marks: make(map[integration.ResourceKind]time.Time)}
}

func (m *memWatermarks) Get(_ context.Context, resource integration.ResourceKind) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.marks[resource]; ok {
		copied := t
		return &copied, nil
	}
	return nil, nil
}

func (m *memWatermarks) Advance(_ context.Context, resource integration.ResourceKind, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.marks[resource]; ok && current.After(to) {
		return nil
	}
	m.marks[resource] = to
	return nil
}

// ---------------------------------------------------------------------------
// External id repository
// ---------------------------------------------------------------------------

type memExtIDs struct {
	mu       gosync.Mutex
	mappings []*integration.ExternalIDMapping
}

var _ integration.ExternalIDRepository = (*memExtIDs)(nil)

func newMemExtIDs() *memExtIDs {
	return &memExtIDs{}
}

func (m *memExtIDs) FindByLocal(_ context.Context, key integration.ExternalIDKey) (*integration.ExternalIDMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.Active && mp.EntityKind == key.EntityKind && mp.LocalID == key.LocalID &&
			mp.SystemCode == key.SystemCode && mp.ResourceKind == key.ResourceKind {
			return mp, nil
		}
	}
	return nil, integration.ErrMappingNotFound
}

func (m *memExtIDs) FindByExternalID(_ context.Context, system integration.SystemCode, resource integration.ResourceKind, externalID string) (*integration.ExternalIDMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mp := m.claimant(system, resource, externalID); mp != nil {
		return mp, nil
	}
	return nil, integration.ErrMappingNotFound
}

func (m *memExtIDs) MapByExternalIDs(_ context.Context, system integration.SystemCode, resource integration.ResourceKind, externalIDs []string) (map[string]*integration.ExternalIDMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*integration.ExternalIDMapping)
	for _, id := range externalIDs {
		if mp := m.claimant(system, resource, id); mp != nil {
			out[id] = mp
		}
	}
	return out, nil
}

func (m *memExtIDs) Upsert(_ context.Context, entityKind integration.EntityKind, localID uuid.UUID, system integration.SystemCode, resource integration.ResourceKind, externalID string) (integration.UpsertAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *integration.ExternalIDMapping
	for _, mp := range m.mappings {
		if mp.Active && mp.EntityKind == entityKind && mp.LocalID == localID &&
			mp.SystemCode == system && mp.ResourceKind == resource {
			current = mp
			break
		}
	}
	claimant := m.claimant(system, resource, externalID)

	action := integration.PlanUpsert(current, claimant, localID, externalID)
	switch action {
	case integration.UpsertInsert:
		mp, err := integration.NewExternalIDMapping(entityKind, localID, system, resource, externalID)
		if err != nil {
			return action, err
		}
		m.mappings = append(m.mappings, mp)
	case integration.UpsertUpdate:
		current.ExternalID = externalID
	}
	return action, nil
}

func (m *memExtIDs) Deactivate(_ context.Context, key integration.ExternalIDKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.Active && mp.EntityKind == key.EntityKind && mp.LocalID == key.LocalID &&
			mp.SystemCode == key.SystemCode && mp.ResourceKind == key.ResourceKind {
			mp.Deactivate()
			return nil
		}
	}
	return integration.ErrMappingNotFound
}

func (m *memExtIDs) claimant(system integration.SystemCode, resource integration.ResourceKind, externalID string) *integration.ExternalIDMapping {
	for _, mp := range m.mappings {
		if mp.Active && mp.SystemCode == system && mp.ResourceKind == resource && mp.ExternalID == externalID {
			return mp
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Product repository
// ---------------------------------------------------------------------------

type memProducts struct {
	mu   gosync.Mutex
	rows map[uuid.UUID]*catalog.Product

	updateCalls int
}

var _ catalog.ProductRepository = (*memProducts)(nil)

func newMemProducts() *memProducts {
	return &memProducts{rows: make(map[uuid.UUID]*catalog.Product)}
}

func (m *memProducts) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrProductNotFound
}

func (m *memProducts) FindBySKU(_ context.Context, sku string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.SKU == sku {
			return p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (m *memProducts) FindByIDs(_ context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.rows[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProducts) FindNeedingExportRetry(_ context.Context, limit int) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Product
	for _, p := range m.rows {
		if p.NeedsExportRetry && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProducts) FindChangedSince(_ context.Context, since time.Time, limit int) ([]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Product
	for _, p := range m.rows {
		if p.UpdatedAt.After(since) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProducts) Save(_ context.Context, product *catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[product.ID] = product
	return nil
}

func (m *memProducts) UpdateFields(_ context.Context, id uuid.UUID, columns map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	m.updateCalls++
	for col, val := range columns {
		switch col {
		case "name":
			p.Name = val.(string)
		case "bin":
			p.Bin = val.(string)
		case "description":
			p.Description = val.(string)
		case "vendor":
			p.Vendor = val.(string)
		case "product_type":
			p.ProductType = val.(string)
		case "tags":
			p.Tags = val.(string)
		case "status":
			p.Status = catalog.ProductStatus(val.(string))
		case "barcode":
			p.Barcode = val.(string)
		case "price":
			p.Price = val.(decimal.Decimal)
		case "last_exported_at":
			at := val.(time.Time)
			p.LastExportedAt = &at
		case "needs_export_retry":
			p.NeedsExportRetry = val.(bool)
		}
	}
	return nil
}

func (m *memProducts) ReplaceImages(_ context.Context, productID uuid.UUID, images []catalog.ProductImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.Images = images
	return nil
}

func (m *memProducts) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// ---------------------------------------------------------------------------
// Contact repository
// ---------------------------------------------------------------------------

type memContacts struct {
	mu   gosync.Mutex
	rows map[uuid.UUID]*partner.Contact
}

var _ partner.ContactRepository = (*memContacts)(nil)

func newMemContacts() *memContacts {
	return &memContacts{rows: make(map[uuid.UUID]*partner.Contact)}
}

func (m *memContacts) FindByID(_ context.Context, id uuid.UUID) (*partner.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[id]; ok {
		return c, nil
	}
	return nil, partner.ErrContactNotFound
}

func (m *memContacts) FindByEmail(_ context.Context, email string) (*partner.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.Type == partner.ContactTypePrimary && c.Active && c.Email == email {
			return c, nil
		}
	}
	return nil, partner.ErrContactNotFound
}

func (m *memContacts) FindByPhone(_ context.Context, phone string) (*partner.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.Type == partner.ContactTypePrimary && c.Active && c.Phone == phone {
			return c, nil
		}
	}
	return nil, partner.ErrContactNotFound
}

func (m *memContacts) FindChildren(_ context.Context, parentID uuid.UUID) ([]partner.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []partner.Contact
	for _, c := range m.rows {
		if c.ParentID != nil && *c.ParentID == parentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memContacts) Save(_ context.Context, contact *partner.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[contact.ID] = contact
	return nil
}

func (m *memContacts) UpdateFields(_ context.Context, id uuid.UUID, columns map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return partner.ErrContactNotFound
	}
	for col, val := range columns {
		switch col {
		case "name":
			c.Name = val.(string)
		case "company":
			c.Company = val.(string)
		case "email":
			c.Email = val.(string)
		case "phone":
			c.Phone = val.(string)
		case "street":
			c.Street = val.(string)
		case "street2":
			c.Street2 = val.(string)
		case "city":
			c.City = val.(string)
		case "province":
			c.Province = val.(string)
		case "zip":
			c.Zip = val.(string)
		case "country":
			c.Country = val.(string)
		case "note":
			c.Note = val.(string)
		}
	}
	return nil
}

func (m *memContacts) countChildren(parentID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.rows {
		if c.ParentID != nil && *c.ParentID == parentID {
			count++
		}
	}
	return count
}

// ---------------------------------------------------------------------------
// Order and carrier repositories
// ---------------------------------------------------------------------------

type memOrders struct {
	mu   gosync.Mutex
	rows map[uuid.UUID]*trade.SalesOrder
}

var _ trade.OrderRepository = (*memOrders)(nil)

func newMemOrders() *memOrders {
	return &memOrders{rows: make(map[uuid.UUID]*trade.SalesOrder)}
}

func (m *memOrders) FindByID(_ context.Context, id uuid.UUID) (*trade.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.rows[id]; ok {
		return o, nil
	}
	return nil, trade.ErrOrderNotFound
}

func (m *memOrders) FindByReference(_ context.Context, reference string) (*trade.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.Reference == reference {
			return o, nil
		}
	}
	return nil, trade.ErrOrderNotFound
}

func (m *memOrders) Save(_ context.Context, order *trade.SalesOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[order.ID] = order
	return nil
}

func (m *memOrders) UpdateFields(_ context.Context, id uuid.UUID, columns map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[id]
	if !ok {
		return trade.ErrOrderNotFound
	}
	for col, val := range columns {
		switch col {
		case "total_amount":
			o.TotalAmount = val.(decimal.Decimal)
		case "currency":
			o.Currency = val.(string)
		case "customer_id":
			o.CustomerID = val.(*uuid.UUID)
		}
	}
	return nil
}

func (m *memOrders) SaveLine(_ context.Context, line *trade.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[line.OrderID]
	if !ok {
		return trade.ErrOrderNotFound
	}
	for i := range o.Lines {
		if o.Lines[i].ID == line.ID {
			o.Lines[i] = *line
			return nil
		}
	}
	o.Lines = append(o.Lines, *line)
	return nil
}

func (m *memOrders) UpdateLineFields(_ context.Context, lineID uuid.UUID, columns map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		for i := range o.Lines {
			if o.Lines[i].ID != lineID {
				continue
			}
			line := &o.Lines[i]
			for col, val := range columns {
				switch col {
				case "description":
					line.Description = val.(string)
				case "sku":
					line.SKU = val.(string)
				case "quantity":
					line.Quantity = val.(decimal.Decimal)
				case "unit_price":
					line.UnitPrice = val.(decimal.Decimal)
				case "tax_amount":
					line.TaxAmount = val.(decimal.Decimal)
				case "product_id":
					line.ProductID = val.(*uuid.UUID)
				}
			}
			return nil
		}
	}
	return trade.ErrOrderNotFound
}

func (m *memOrders) DeleteLines(_ context.Context, lineIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[uuid.UUID]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = struct{}{}
	}
	for _, o := range m.rows {
		kept := o.Lines[:0]
		for _, line := range o.Lines {
			if _, ok := drop[line.ID]; !ok {
				kept = append(kept, line)
			}
		}
		o.Lines = kept
	}
	return nil
}

func (m *memOrders) SaveShipment(_ context.Context, shipment *trade.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[shipment.OrderID]
	if !ok {
		return trade.ErrOrderNotFound
	}
	for i := range o.Shipments {
		if o.Shipments[i].ID == shipment.ID {
			o.Shipments[i] = *shipment
			return nil
		}
	}
	o.Shipments = append(o.Shipments, *shipment)
	return nil
}

type memCarriers struct {
	byKey map[string]*trade.Carrier
}

var _ trade.CarrierRepository = (*memCarriers)(nil)

func newMemCarriers(keys ...string) *memCarriers {
	m := &memCarriers{byKey: make(map[string]*trade.Carrier)}
	for _, key := range keys {
		m.byKey[key] = &trade.Carrier{BaseEntity: shared.NewBaseEntity(), Name: key, Active: true}
	}
	return m
}

func (m *memCarriers) ResolveCarrier(_ context.Context, platformKey string) (*trade.Carrier, error) {
	if c, ok := m.byKey[platformKey]; ok {
		return c, nil
	}
	return nil, trade.ErrCarrierUnmapped
}

func (m *memCarriers) SaveMapping(_ context.Context, _ *trade.CarrierMapping) error {
	return nil
}

// ---------------------------------------------------------------------------
// Platform
// ---------------------------------------------------------------------------

type fakePlatform struct {
	pullProducts  func(ctx context.Context, q integration.PageQuery) (*integration.ProductPage, error)
	getProduct    func(ctx context.Context, externalID string) (*integration.RemoteProduct, error)
	upsertProduct func(ctx context.Context, push *integration.ProductPush) (*integration.ProductPushResult, error)
	updateVariant func(ctx context.Context, productExternalID string, push *integration.VariantPush) error
	reorderMedia  func(ctx context.Context, externalID string, mediaIDs []string) error
	deleteProduct func(ctx context.Context, externalID string) error
	pullOrders    func(ctx context.Context, q integration.PageQuery) (*integration.OrderPage, error)
	getOrder      func(ctx context.Context, externalID string) (*integration.RemoteOrder, error)
	pullCustomers func(ctx context.Context, q integration.PageQuery) (*integration.CustomerPage, error)
	getCustomer   func(ctx context.Context, externalID string) (*integration.RemoteCustomer, error)
}

var _ integration.StorefrontPlatform = (*fakePlatform)(nil)

func (f *fakePlatform) PrimaryLocation(context.Context) (*integration.Location, error) {
	return &integration.Location{ID: "gid://shopify/Location/1", Name: "Main"}, nil
}

func (f *fakePlatform) PullProducts(ctx context.Context, q integration.PageQuery) (*integration.ProductPage, error) {
	if f.pullProducts != nil {
		return f.pullProducts(ctx, q)
	}
	return &integration.ProductPage{}, nil
}

func (f *fakePlatform) GetProduct(ctx context.Context, externalID string) (*integration.RemoteProduct, error) {
	if f.getProduct != nil {
		return f.getProduct(ctx, externalID)
	}
	return nil, integration.ErrPlatformNotFound
}

func (f *fakePlatform) UpsertProduct(ctx context.Context, push *integration.ProductPush) (*integration.ProductPushResult, error) {
	if f.upsertProduct != nil {
		return f.upsertProduct(ctx, push)
	}
	return &integration.ProductPushResult{ExternalID: push.ExternalID}, nil
}

func (f *fakePlatform) UpdateVariant(ctx context.Context, productExternalID string, push *integration.VariantPush) error {
	if f.updateVariant != nil {
		return f.updateVariant(ctx, productExternalID, push)
	}
	return nil
}

func (f *fakePlatform) ReorderMedia(ctx context.Context, externalID string, mediaIDs []string) error {
	if f.reorderMedia != nil {
		return f.reorderMedia(ctx, externalID, mediaIDs)
	}
	return nil
}

func (f *fakePlatform) DeleteProduct(ctx context.Context, externalID string) error {
	if f.deleteProduct != nil {
		return f.deleteProduct(ctx, externalID)
	}
	return nil
}

func (f *fakePlatform) PullOrders(ctx context.Context, q integration.PageQuery) (*integration.OrderPage, error) {
	if f.pullOrders != nil {
		return f.pullOrders(ctx, q)
	}
	return &integration.OrderPage{}, nil
}

func (f *fakePlatform) GetOrder(ctx context.Context, externalID string) (*integration.RemoteOrder, error) {
	if f.getOrder != nil {
		return f.getOrder(ctx, externalID)
	}
	return nil, integration.ErrPlatformNotFound
}

func (f *fakePlatform) PullCustomers(ctx context.Context, q integration.PageQuery) (*integration.CustomerPage, error) {
	if f.pullCustomers != nil {
		return f.pullCustomers(ctx, q)
	}
	return &integration.CustomerPage{}, nil
}

func (f *fakePlatform) GetCustomer(ctx context.Context, externalID string) (*integration.RemoteCustomer, error) {
	if f.getCustomer != nil {
		return f.getCustomer(ctx, externalID)
	}
	return nil, integration.ErrPlatformNotFound
}

// ---------------------------------------------------------------------------
// Runner helpers
// ---------------------------------------------------------------------------

type progressRecorder struct {
	commits [][2]int
	touches int
}

var _ Progress = (*progressRecorder)(nil)

func (p *progressRecorder) Commit(_ context.Context, total, updated int) error {
	p.commits = append(p.commits, [2]int{total, updated})
	return nil
}

func (p *progressRecorder) Touch(context.Context) error {
	p.touches++
	return nil
}

type passthroughStager struct{}

func (passthroughStager) StageURL(_ context.Context, image *catalog.ProductImage) (string, error) {
	return image.URL, nil
}
