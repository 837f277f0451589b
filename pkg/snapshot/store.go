package snapshot

import (
	"context"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

// Store persists snapshot records. Implementations live in pkg/storage.
type Store interface {
	// LatestSnapshot returns the newest record whose ExpiresAt is after
	// now, or storage.ErrNotFound.
	LatestSnapshot(ctx context.Context, now time.Time) (*api.Snapshot, error)

	// SaveSnapshot inserts a new record.
	SaveSnapshot(ctx context.Context, snap *api.Snapshot) error
}
