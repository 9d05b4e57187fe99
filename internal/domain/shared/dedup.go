package shared

import (
	"context"
	"time"
)

// DeliveryDedup suppresses duplicate webhook deliveries. The platform
// redelivers on any non-2xx response, so intake must tolerate seeing the
// same delivery id more than once.
type DeliveryDedup interface {
	// MarkSeen records a delivery id with a TTL. Returns true if the id was
	// newly recorded, false if it was already present.
	MarkSeen(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)

	// Seen reports whether a delivery id has already been recorded.
	Seen(ctx context.Context, deliveryID string) (bool, error)

	// Close releases store resources.
	Close() error
}
