package storage

import (
	"context"
	"errors"

	syncapp "github.com/storesync/backend/internal/application/sync"
	"github.com/storesync/backend/internal/domain/catalog"
)

// PassthroughStager returns image URLs unchanged. Used when object storage
// is disabled and every catalog image is already publicly hosted.
type PassthroughStager struct{}

// NewPassthroughStager creates a passthrough media stager
func NewPassthroughStager() *PassthroughStager {
	return &PassthroughStager{}
}

var _ syncapp.MediaStager = (*PassthroughStager)(nil)

// StageURL returns the stored URL as-is.
func (s *PassthroughStager) StageURL(_ context.Context, image *catalog.ProductImage) (string, error) {
	if image == nil || image.URL == "" {
		return "", errors.New("image URL is required")
	}
	return image.URL, nil
}
