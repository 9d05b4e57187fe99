// Package sync wires the job scheduler, the paginated runners and the
// entity reconcilers into the application's sync engine.
package sync

import (
	"context"

	"github.com/storesync/backend/internal/domain/catalog"
)

// MediaStager resolves a catalog image to a URL the storefront platform can
// fetch while ingesting an export. Images hosted on private object storage
// need a presigned URL; already-public URLs pass through.
type MediaStager interface {
	StageURL(ctx context.Context, image *catalog.ProductImage) (string, error)
}
