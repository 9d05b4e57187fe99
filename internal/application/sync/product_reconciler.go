package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
)

// ProductReconcilerConfig wires a product reconciler for one job
type ProductReconcilerConfig struct {
	Platform    integration.StorefrontPlatform
	Products    catalog.ProductRepository
	ExternalIDs integration.ExternalIDRepository
	Stager      MediaStager
	PageSize    int
	// Since limits pulls to records changed after this instant
	Since *time.Time
	// IDs restricts pulls to explicit remote ids
	IDs []string
	// ForceExport pushes even up-to-date products, for explicit batches
	ForceExport bool
	Logger      *zap.Logger
}

// ProductReconciler diffs remote products against the local catalog.
// It drives imports, exports and deletes for the product resource; one
// instance serves one job.
type ProductReconciler struct {
	platform integration.StorefrontPlatform
	products catalog.ProductRepository
	extIDs   integration.ExternalIDRepository
	stager   MediaStager
	pageSize int
	since    *time.Time
	ids      []string
	force    bool
	logger   *zap.Logger
}

var (
	_ PageImporter[integration.RemoteProduct] = (*ProductReconciler)(nil)
	_ BatchExporter[catalog.Product]          = (*ProductReconciler)(nil)
	_ BatchDeleter[integration.RemoteProduct] = (*ProductReconciler)(nil)
)

// NewProductReconciler creates a product reconciler
func NewProductReconciler(cfg ProductReconcilerConfig) *ProductReconciler {
	return &ProductReconciler{
		platform: cfg.Platform,
		products: cfg.Products,
		extIDs:   cfg.ExternalIDs,
		stager:   cfg.Stager,
		pageSize: cfg.PageSize,
		since:    cfg.Since,
		ids:      cfg.IDs,
		force:    cfg.ForceExport,
		logger:   cfg.Logger,
	}
}

// FetchPage pulls one page of remote products
func (r *ProductReconciler) FetchPage(ctx context.Context, cursor string) (*Page[integration.RemoteProduct], error) {
	page, err := r.platform.PullProducts(ctx, integration.PageQuery{
		Cursor:       cursor,
		PageSize:     r.pageSize,
		UpdatedSince: r.since,
		IDs:          r.ids,
	})
	if err != nil {
		return nil, err
	}
	return &Page[integration.RemoteProduct]{
		Nodes:     page.Nodes,
		EndCursor: page.EndCursor,
		HasNext:   page.HasNext,
	}, nil
}

// ImportOne reconciles one remote product. Matching is by external-id
// mapping first, then by the SKU parsed out of the composite remote field.
// A remote snapshot that is not newer than the latest local write and whose
// media is unchanged in count and order is skipped outright.
func (r *ProductReconciler) ImportOne(ctx context.Context, node integration.RemoteProduct) (Outcome, error) {
	sku, bin := catalog.ParseSKUField(node.SKUField)
	if sku == "" {
		return Skipped("product carries no SKU"), nil
	}
	if len(node.Variants) == 0 {
		return Skipped("product carries no variants"), nil
	}

	local, err := r.findLocal(ctx, node.ID, sku)
	if err != nil {
		return Outcome{}, err
	}

	if local == nil {
		return r.createFromRemote(ctx, node, sku, bin)
	}

	if !node.UpdatedAt.After(local.LastWriteAt()) && mediaUnchanged(local, node.Media) {
		if err := r.ensureMappings(ctx, local, node); err != nil {
			return Outcome{}, err
		}
		return Skipped("remote not newer and media unchanged"), nil
	}

	changed, err := r.applyRemote(ctx, local, node, sku, bin)
	if err != nil {
		return Outcome{}, err
	}
	if err := r.ensureMappings(ctx, local, node); err != nil {
		return Outcome{}, err
	}
	if !changed {
		return Skipped("no fields differed"), nil
	}
	return Imported(), nil
}

// findLocal resolves the local product by mapping, falling back to the SKU
// natural key
func (r *ProductReconciler) findLocal(ctx context.Context, externalID, sku string) (*catalog.Product, error) {
	mapping, err := r.extIDs.FindByExternalID(ctx, integration.SystemCodeShopify, integration.ResourceKindProduct, externalID)
	if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return nil, err
	}
	if mapping != nil {
		product, err := r.products.FindByID(ctx, mapping.LocalID)
		if err != nil && !errors.Is(err, catalog.ErrProductNotFound) {
			return nil, err
		}
		if product != nil {
			return product, nil
		}
	}

	product, err := r.products.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return product, nil
}

func (r *ProductReconciler) createFromRemote(ctx context.Context, node integration.RemoteProduct, sku, bin string) (Outcome, error) {
	product, err := catalog.NewProduct(sku, node.Title)
	if err != nil {
		return Failed(integration.ErrorKindLocalValidation, err.Error(), node), nil
	}
	product.Bin = bin
	product.Description = node.Description
	product.Vendor = node.Vendor
	product.ProductType = node.ProductType
	product.Tags = strings.Join(node.Tags, ",")
	product.Status = remoteProductStatus(node.Status)
	product.Price = node.Variants[0].Price
	product.Barcode = node.Variants[0].Barcode
	product.Images = imagesFromRemote(product, node.Media)

	if err := r.products.Save(ctx, product); err != nil {
		return Outcome{}, err
	}
	if err := r.ensureMappings(ctx, product, node); err != nil {
		return Outcome{}, err
	}
	return Imported(), nil
}

// applyRemote diffs the remote snapshot into the local record, issuing at
// most one header write and one image replacement
func (r *ProductReconciler) applyRemote(ctx context.Context, local *catalog.Product, node integration.RemoteProduct, sku, bin string) (bool, error) {
	patch := shared.NewPatch().
		SetString("name", local.Name, node.Title).
		SetString("bin", local.Bin, bin).
		SetString("description", local.Description, node.Description).
		SetString("vendor", local.Vendor, node.Vendor).
		SetString("product_type", local.ProductType, node.ProductType).
		SetString("tags", local.Tags, strings.Join(node.Tags, ",")).
		SetString("status", string(local.Status), string(remoteProductStatus(node.Status))).
		SetString("barcode", local.Barcode, node.Variants[0].Barcode).
		SetDecimal("price", local.Price, node.Variants[0].Price, -1)

	changed := false
	if patch.Changed() {
		if err := r.products.UpdateFields(ctx, local.ID, patch.Columns()); err != nil {
			return false, err
		}
		changed = true
	}

	if !mediaUnchanged(local, node.Media) {
		if err := r.products.ReplaceImages(ctx, local.ID, imagesFromRemote(local, node.Media)); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// ensureMappings upserts the product and lead-variant mappings. A skip due
// to a conflicting claim is logged, never escalated: the mapping is owned
// by whichever record claimed it first.
func (r *ProductReconciler) ensureMappings(ctx context.Context, local *catalog.Product, node integration.RemoteProduct) error {
	action, err := r.extIDs.Upsert(ctx, integration.EntityKindProduct, local.ID,
		integration.SystemCodeShopify, integration.ResourceKindProduct, node.ID)
	if err != nil {
		return err
	}
	if action == integration.UpsertSkipConflict {
		r.logger.Warn("product external id claimed by another record",
			zap.String("sku", local.SKU),
			zap.String("external_id", node.ID))
	}
	if len(node.Variants) == 0 {
		return nil
	}
	action, err = r.extIDs.Upsert(ctx, integration.EntityKindVariant, local.ID,
		integration.SystemCodeShopify, integration.ResourceKindVariant, node.Variants[0].ID)
	if err != nil {
		return err
	}
	if action == integration.UpsertSkipConflict {
		r.logger.Warn("variant external id claimed by another record",
			zap.String("sku", local.SKU),
			zap.String("external_id", node.Variants[0].ID))
	}
	return nil
}

// ExportOne pushes one local product to the platform. The cheap path, when
// only image order drifted, is a media reorder; everything else is a full
// upsert with staged media URLs. After a full upsert the returned media set
// is verified against what was sent; a mismatch flags the product for
// automatic re-export instead of being reported as success.
func (r *ProductReconciler) ExportOne(ctx context.Context, product catalog.Product) (Outcome, error) {
	externalID := ""
	mapping, err := r.extIDs.FindByLocal(ctx, integration.ExternalIDKey{
		EntityKind:   integration.EntityKindProduct,
		LocalID:      product.ID,
		SystemCode:   integration.SystemCodeShopify,
		ResourceKind: integration.ResourceKindProduct,
	})
	if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return Outcome{}, err
	}
	if mapping != nil {
		externalID = mapping.ExternalID
	}

	if !r.force && !product.NeedsExportRetry && externalID != "" &&
		product.LastExportedAt != nil && !product.LastWriteAt().After(*product.LastExportedAt) {
		return Skipped("already exported"), nil
	}

	if externalID != "" {
		reordered, err := r.tryReorderOnly(ctx, &product, externalID)
		if err != nil {
			return Outcome{}, err
		}
		if reordered {
			now := time.Now()
			if err := r.markExported(ctx, &product, now); err != nil {
				return Outcome{}, err
			}
			return Imported(), nil
		}
	}

	push, err := r.buildPush(ctx, &product, externalID)
	if err != nil {
		return Outcome{}, err
	}

	result, err := r.platform.UpsertProduct(ctx, push)
	if err != nil {
		if errors.Is(err, integration.ErrPlatformRequestFailed) {
			return Failed(integration.ErrorKindRemoteAPI, err.Error(), product), nil
		}
		return Outcome{}, err
	}

	if err := r.recordExportMappings(ctx, &product, result); err != nil {
		return Outcome{}, err
	}

	if len(result.Media) != len(push.MediaURLs) {
		r.logger.Warn("exported media count mismatch, flagging re-export",
			zap.String("sku", product.SKU),
			zap.Int("sent", len(push.MediaURLs)),
			zap.Int("landed", len(result.Media)))
		if err := r.products.UpdateFields(ctx, product.ID, map[string]any{
			"needs_export_retry": true,
		}); err != nil {
			return Outcome{}, err
		}
		return Failed(integration.ErrorKindRemoteAPI,
			fmt.Sprintf("media mismatch: sent %d, landed %d", len(push.MediaURLs), len(result.Media)),
			product), nil
	}

	// Re-check image identities against the platform-assigned media ids so
	// the next import fingerprint-matches instead of re-writing images.
	if err := r.adoptRemoteMedia(ctx, &product, result.Media); err != nil {
		return Outcome{}, err
	}
	if err := r.markExported(ctx, &product, time.Now()); err != nil {
		return Outcome{}, err
	}
	return Imported(), nil
}

// tryReorderOnly reports whether the export could be satisfied by a media
// reorder alone: the remote record matches field for field and carries the
// same media set in a different order
func (r *ProductReconciler) tryReorderOnly(ctx context.Context, product *catalog.Product, externalID string) (bool, error) {
	remote, err := r.platform.GetProduct(ctx, externalID)
	if err != nil {
		if errors.Is(err, integration.ErrPlatformNotFound) {
			return false, nil
		}
		return false, err
	}

	if !exportFieldsMatch(product, remote) {
		return false, nil
	}

	localIDs := product.ImageFingerprint()
	remoteIDs := integration.MediaFingerprint(remote.Media)
	if len(localIDs) != len(remoteIDs) || !sameIDSet(localIDs, remoteIDs) {
		return false, nil
	}
	if equalOrder(localIDs, remoteIDs) {
		// Nothing drifted at all; fields and media already match.
		return true, nil
	}

	if err := r.platform.ReorderMedia(ctx, externalID, localIDs); err != nil {
		return false, err
	}
	r.logger.Info("export satisfied by media reorder",
		zap.String("sku", product.SKU),
		zap.String("external_id", externalID))
	return true, nil
}

// buildPush assembles the outbound payload, staging image URLs through the
// media stager
func (r *ProductReconciler) buildPush(ctx context.Context, product *catalog.Product, externalID string) (*integration.ProductPush, error) {
	urls := make([]string, 0, len(product.Images))
	for i := range product.Images {
		staged, err := r.stager.StageURL(ctx, &product.Images[i])
		if err != nil {
			return nil, fmt.Errorf("staging image %d for %s: %w", i, product.SKU, err)
		}
		urls = append(urls, staged)
	}

	variantID := ""
	vm, err := r.extIDs.FindByLocal(ctx, integration.ExternalIDKey{
		EntityKind:   integration.EntityKindVariant,
		LocalID:      product.ID,
		SystemCode:   integration.SystemCodeShopify,
		ResourceKind: integration.ResourceKindVariant,
	})
	if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return nil, err
	}
	if vm != nil {
		variantID = vm.ExternalID
	}

	var tags []string
	if product.Tags != "" {
		tags = strings.Split(product.Tags, ",")
	}

	return &integration.ProductPush{
		ExternalID:  externalID,
		Title:       product.Name,
		SKUField:    catalog.ComposeSKUField(product.SKU, product.Bin),
		Description: product.Description,
		Vendor:      product.Vendor,
		ProductType: product.ProductType,
		Tags:        tags,
		Status:      string(product.Status),
		Variants: []integration.VariantPush{{
			ExternalID: variantID,
			SKU:        catalog.ComposeSKUField(product.SKU, product.Bin),
			Barcode:    product.Barcode,
			Price:      product.Price,
			Position:   1,
		}},
		MediaURLs: urls,
	}, nil
}

func (r *ProductReconciler) recordExportMappings(ctx context.Context, product *catalog.Product, result *integration.ProductPushResult) error {
	if result.ExternalID != "" {
		if _, err := r.extIDs.Upsert(ctx, integration.EntityKindProduct, product.ID,
			integration.SystemCodeShopify, integration.ResourceKindProduct, result.ExternalID); err != nil {
			return err
		}
	}
	if len(result.VariantIDs) > 0 {
		if _, err := r.extIDs.Upsert(ctx, integration.EntityKindVariant, product.ID,
			integration.SystemCodeShopify, integration.ResourceKindVariant, result.VariantIDs[0]); err != nil {
			return err
		}
	}
	return nil
}

// adoptRemoteMedia rewrites local image checksums to the platform-assigned
// media ids, keeping display order, so a later import of the exported
// snapshot compares equal
func (r *ProductReconciler) adoptRemoteMedia(ctx context.Context, product *catalog.Product, media []integration.RemoteMedia) error {
	if len(media) == 0 || len(media) != len(product.Images) {
		return nil
	}
	images := make([]catalog.ProductImage, len(product.Images))
	copy(images, product.Images)
	for i := range images {
		images[i].Checksum = media[i].ID
	}
	return r.products.ReplaceImages(ctx, product.ID, images)
}

func (r *ProductReconciler) markExported(ctx context.Context, product *catalog.Product, at time.Time) error {
	product.MarkExported(at)
	return r.products.UpdateFields(ctx, product.ID, map[string]any{
		"last_exported_at":   at,
		"needs_export_retry": false,
	})
}

// DeleteOne deletes one remote product and deactivates its mappings
func (r *ProductReconciler) DeleteOne(ctx context.Context, node integration.RemoteProduct) error {
	if err := r.platform.DeleteProduct(ctx, node.ID); err != nil {
		return err
	}

	mapping, err := r.extIDs.FindByExternalID(ctx, integration.SystemCodeShopify, integration.ResourceKindProduct, node.ID)
	if err != nil {
		if errors.Is(err, integration.ErrMappingNotFound) {
			return nil
		}
		return err
	}
	if err := r.extIDs.Deactivate(ctx, integration.ExternalIDKey{
		EntityKind:   integration.EntityKindProduct,
		LocalID:      mapping.LocalID,
		SystemCode:   integration.SystemCodeShopify,
		ResourceKind: integration.ResourceKindProduct,
	}); err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return err
	}
	// The variant mapping rides along with the product.
	if err := r.extIDs.Deactivate(ctx, integration.ExternalIDKey{
		EntityKind:   integration.EntityKindVariant,
		LocalID:      mapping.LocalID,
		SystemCode:   integration.SystemCodeShopify,
		ResourceKind: integration.ResourceKindVariant,
	}); err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func remoteProductStatus(status string) catalog.ProductStatus {
	s := catalog.ProductStatus(strings.ToLower(status))
	if !s.IsValid() {
		return catalog.ProductStatusDraft
	}
	return s
}

// mediaUnchanged compares local image checksums against remote media ids in
// count and order
func mediaUnchanged(local *catalog.Product, media []integration.RemoteMedia) bool {
	return equalOrder(local.ImageFingerprint(), integration.MediaFingerprint(media))
}

func imagesFromRemote(product *catalog.Product, media []integration.RemoteMedia) []catalog.ProductImage {
	images := make([]catalog.ProductImage, 0, len(media))
	for _, m := range media {
		img := catalog.ProductImage{
			BaseEntity: shared.NewBaseEntity(),
			ProductID:  product.ID,
			URL:        m.URL,
			Alt:        m.Alt,
			Position:   m.Position,
			Checksum:   m.ID,
		}
		images = append(images, img)
	}
	return images
}

// exportFieldsMatch reports whether the remote record already carries every
// exportable field value
func exportFieldsMatch(product *catalog.Product, remote *integration.RemoteProduct) bool {
	sku, bin := catalog.ParseSKUField(remote.SKUField)
	if sku != product.SKU || bin != product.Bin {
		return false
	}
	if remote.Title != product.Name ||
		remote.Description != product.Description ||
		remote.Vendor != product.Vendor ||
		remote.ProductType != product.ProductType ||
		strings.Join(remote.Tags, ",") != product.Tags {
		return false
	}
	if remoteProductStatus(remote.Status) != product.Status {
		return false
	}
	if len(remote.Variants) == 0 {
		return false
	}
	return remote.Variants[0].Price.Round(shared.DefaultDecimalPrecision).
		Equal(product.Price.Round(shared.DefaultDecimalPrecision))
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, id := range a {
		set[id]++
	}
	for _, id := range b {
		set[id]--
		if set[id] < 0 {
			return false
		}
	}
	return true
}
