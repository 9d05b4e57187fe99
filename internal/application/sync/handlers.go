package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/partner"
	syncdomain "github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/domain/trade"
	"github.com/storesync/backend/internal/infrastructure/config"
)

// exportBatchLimit bounds how many products one export-changed job pushes
const exportBatchLimit = 500

// PlatformFactory builds a platform client for one job. The client is
// constructed per job, never shared process-wide: construction probes the
// shop's primary location, so a job started with revoked credentials fails
// fast instead of mid-page.
type PlatformFactory func(ctx context.Context) (integration.StorefrontPlatform, error)

// EngineConfig wires the sync engine's dependencies
type EngineConfig struct {
	Platform    PlatformFactory
	Products    catalog.ProductRepository
	Contacts    partner.ContactRepository
	Orders      trade.OrderRepository
	Carriers    trade.CarrierRepository
	ExternalIDs integration.ExternalIDRepository
	Jobs        syncdomain.JobRepository
	Watermarks  syncdomain.WatermarkStore
	Stager      MediaStager
	Sync        config.SyncConfig
	// RetryableConflict classifies database serialization conflicts for
	// page-level retries
	RetryableConflict func(error) bool
	Logger            *zap.Logger
}

// Engine builds the mode→handler dispatch table the scheduler runs. Every
// job mode has an explicit entry here; there is no reflective dispatch.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates the sync engine
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Handlers returns the complete dispatch table
func (e *Engine) Handlers() map[syncdomain.Mode]JobHandler {
	return map[syncdomain.Mode]JobHandler{
		syncdomain.ModeImportChangedProducts:  e.importProducts(true),
		syncdomain.ModeImportAllProducts:      e.importProducts(false),
		syncdomain.ModeImportOneProduct:       e.importOneProduct,
		syncdomain.ModeExportChangedProducts:  e.exportChangedProducts,
		syncdomain.ModeExportBatchProducts:    e.exportBatchProducts,
		syncdomain.ModeDeleteAllProducts:      e.deleteAllProducts,
		syncdomain.ModeImportChangedOrders:    e.importOrders,
		syncdomain.ModeImportOneOrder:         e.importOneOrder,
		syncdomain.ModeImportChangedCustomers: e.importCustomers,
		syncdomain.ModeImportOneCustomer:      e.importOneCustomer,
	}
}

func (e *Engine) runnerConfig() RunnerConfig {
	return RunnerConfig{
		CommitSize:        e.cfg.Sync.CommitSize,
		HeartbeatInterval: e.cfg.Sync.HeartbeatInterval,
		RetryableConflict: e.cfg.RetryableConflict,
	}
}

// since computes the "changed since" instant for a watermarked pull:
// the stored watermark minus the lookback skew, nil for a full import
func (e *Engine) since(ctx context.Context, resource integration.ResourceKind) (*time.Time, error) {
	stored, err := e.cfg.Watermarks.Get(ctx, resource)
	if err != nil {
		return nil, err
	}
	return syncdomain.SinceWatermark(stored, e.cfg.Sync.LookbackSkew), nil
}

// ---------------------------------------------------------------------------
// Product handlers
// ---------------------------------------------------------------------------

func (e *Engine) importProducts(incremental bool) JobHandler {
	return func(ctx context.Context, job *syncdomain.Job) (Totals, error) {
		var (
			since *time.Time
			err   error
		)
		if incremental {
			since, err = e.since(ctx, integration.ResourceKindProduct)
			if err != nil {
				return Totals{}, err
			}
		}
		platform, err := e.cfg.Platform(ctx)
		if err != nil {
			return Totals{}, err
		}
		rec := NewProductReconciler(ProductReconcilerConfig{
			Platform:    platform,
			Products:    e.cfg.Products,
			ExternalIDs: e.cfg.ExternalIDs,
			Stager:      e.cfg.Stager,
			PageSize:    e.cfg.Sync.PageSize,
			Since:       since,
			Logger:      e.cfg.Logger,
		})
		return RunImport[integration.RemoteProduct](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
	}
}

func (e *Engine) importOneProduct(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	if job.Selector.ExternalID == "" {
		return Totals{}, integration.NewLocalValidationError("import_one_product requires an external id selector", job.Selector, nil)
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewProductReconciler(ProductReconcilerConfig{
		Platform:    platform,
		Products:    e.cfg.Products,
		ExternalIDs: e.cfg.ExternalIDs,
		Stager:      e.cfg.Stager,
		PageSize:    e.cfg.Sync.PageSize,
		IDs:         []string{job.Selector.ExternalID},
		Logger:      e.cfg.Logger,
	})
	return RunImport[integration.RemoteProduct](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

// exportChangedProducts collects retry-flagged products plus everything
// written since the product watermark. Over-collection is fine: ExportOne
// skips records whose last export already covers the latest local write.
func (e *Engine) exportChangedProducts(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	batch, err := e.collectExportCandidates(ctx)
	if err != nil {
		return Totals{}, err
	}
	if len(batch) == 0 {
		return Totals{}, nil
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewProductReconciler(ProductReconcilerConfig{
		Platform:    platform,
		Products:    e.cfg.Products,
		ExternalIDs: e.cfg.ExternalIDs,
		Stager:      e.cfg.Stager,
		PageSize:    e.cfg.Sync.PageSize,
		Logger:      e.cfg.Logger,
	})
	return RunExport[catalog.Product](ctx, batch, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

func (e *Engine) collectExportCandidates(ctx context.Context) ([]catalog.Product, error) {
	flagged, err := e.cfg.Products.FindNeedingExportRetry(ctx, exportBatchLimit)
	if err != nil {
		return nil, err
	}

	since, err := e.since(ctx, integration.ResourceKindProduct)
	if err != nil {
		return nil, err
	}
	var changed []catalog.Product
	if since != nil {
		changed, err = e.cfg.Products.FindChangedSince(ctx, *since, exportBatchLimit)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(flagged)+len(changed))
	batch := make([]catalog.Product, 0, len(flagged)+len(changed))
	for _, p := range append(flagged, changed...) {
		if _, ok := seen[p.ID.String()]; ok {
			continue
		}
		seen[p.ID.String()] = struct{}{}
		batch = append(batch, p)
	}
	return batch, nil
}

// exportBatchProducts pushes an explicit local-id batch unconditionally
func (e *Engine) exportBatchProducts(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	if len(job.Selector.LocalIDs) == 0 {
		return Totals{}, integration.NewLocalValidationError("export_batch_products requires local id selectors", job.Selector, nil)
	}
	batch, err := e.cfg.Products.FindByIDs(ctx, job.Selector.LocalIDs)
	if err != nil {
		return Totals{}, err
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewProductReconciler(ProductReconcilerConfig{
		Platform:    platform,
		Products:    e.cfg.Products,
		ExternalIDs: e.cfg.ExternalIDs,
		Stager:      e.cfg.Stager,
		PageSize:    e.cfg.Sync.PageSize,
		ForceExport: true,
		Logger:      e.cfg.Logger,
	})
	return RunExport[catalog.Product](ctx, batch, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

func (e *Engine) deleteAllProducts(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewProductReconciler(ProductReconcilerConfig{
		Platform:    platform,
		Products:    e.cfg.Products,
		ExternalIDs: e.cfg.ExternalIDs,
		Stager:      e.cfg.Stager,
		PageSize:    e.cfg.Sync.PageSize,
		Logger:      e.cfg.Logger,
	})
	return RunDelete[integration.RemoteProduct](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

// ---------------------------------------------------------------------------
// Order handlers
// ---------------------------------------------------------------------------

func (e *Engine) importOrders(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	since, err := e.since(ctx, integration.ResourceKindOrder)
	if err != nil {
		return Totals{}, err
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewOrderReconciler(OrderReconcilerConfig{
		Platform:    platform,
		Orders:      e.cfg.Orders,
		Carriers:    e.cfg.Carriers,
		Products:    e.cfg.Products,
		ExternalIDs: e.cfg.ExternalIDs,
		PageSize:    e.cfg.Sync.PageSize,
		Since:       since,
		Logger:      e.cfg.Logger,
	})
	return RunImport[integration.RemoteOrder](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

func (e *Engine) importOneOrder(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	if job.Selector.ExternalID == "" {
		return Totals{}, integration.NewLocalValidationError("import_one_order requires an external id selector", job.Selector, nil)
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewOrderReconciler(OrderReconcilerConfig{
		Platform:    platform,
		Orders:      e.cfg.Orders,
		Carriers:    e.cfg.Carriers,
		Products:    e.cfg.Products,
		ExternalIDs: e.cfg.ExternalIDs,
		PageSize:    e.cfg.Sync.PageSize,
		IDs:         []string{job.Selector.ExternalID},
		Logger:      e.cfg.Logger,
	})
	return RunImport[integration.RemoteOrder](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

// ---------------------------------------------------------------------------
// Customer handlers
// ---------------------------------------------------------------------------

func (e *Engine) importCustomers(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	since, err := e.since(ctx, integration.ResourceKindCustomer)
	if err != nil {
		return Totals{}, err
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewCustomerReconciler(CustomerReconcilerConfig{
		Platform:    platform,
		Contacts:    e.cfg.Contacts,
		ExternalIDs: e.cfg.ExternalIDs,
		PageSize:    e.cfg.Sync.PageSize,
		Since:       since,
		Logger:      e.cfg.Logger,
	})
	return RunImport[integration.RemoteCustomer](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}

func (e *Engine) importOneCustomer(ctx context.Context, job *syncdomain.Job) (Totals, error) {
	if job.Selector.ExternalID == "" {
		return Totals{}, integration.NewLocalValidationError("import_one_customer requires an external id selector", job.Selector, nil)
	}
	platform, err := e.cfg.Platform(ctx)
	if err != nil {
		return Totals{}, err
	}
	rec := NewCustomerReconciler(CustomerReconcilerConfig{
		Platform:    platform,
		Contacts:    e.cfg.Contacts,
		ExternalIDs: e.cfg.ExternalIDs,
		PageSize:    e.cfg.Sync.PageSize,
		IDs:         []string{job.Selector.ExternalID},
		Logger:      e.cfg.Logger,
	})
	return RunImport[integration.RemoteCustomer](ctx, rec, e.runnerConfig(), NewJobProgress(e.cfg.Jobs, job), e.cfg.Logger)
}
