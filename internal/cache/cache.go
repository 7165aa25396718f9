package cache

import (
	"context"
	"time"
)

// ReleaseCache records confirmed release dispatches for fast lookups by
// the read surface. Misses are harmless; the record store stays the
// source of truth.
type ReleaseCache interface {
	StoreReleased(ctx context.Context, checkinID, deliveryID string, releasedAt time.Time) error
}
