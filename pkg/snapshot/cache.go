package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/storage"
)

// DefaultRefreshBefore is the remaining validity at or below which the
// cache provisions a new snapshot.
const DefaultRefreshBefore = 2 * 24 * time.Hour

// Creator produces a new snapshot. *Pipeline implements it.
type Creator interface {
	CreateSnapshot(ctx context.Context, existingSandboxID string) (*api.Snapshot, error)
}

// Cache decides whether the current snapshot can be reused.
type Cache struct {
	store         Store
	creator       Creator
	refreshBefore time.Duration
	now           func() time.Time
}

// NewCache returns a Cache. A zero refreshBefore means
// DefaultRefreshBefore; a nil now means time.Now.
func NewCache(store Store, creator Creator, refreshBefore time.Duration, now func() time.Time) *Cache {
	if refreshBefore == 0 {
		refreshBefore = DefaultRefreshBefore
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{store: store, creator: creator, refreshBefore: refreshBefore, now: now}
}

// GetOrRefresh returns the current snapshot if it remains valid for more
// than the refresh window, and otherwise provisions and returns a new one.
func (c *Cache) GetOrRefresh(ctx context.Context) (*api.Snapshot, error) {
	now := c.now()

	current, err := c.store.LatestSnapshot(ctx, now)
	switch {
	case err == nil:
		if current.Remaining(now) > c.refreshBefore {
			observability.SnapshotLookupsTotal.WithLabelValues("reused").Inc()
			return current, nil
		}
		slog.Info("snapshot close to expiry, refreshing",
			"snapshot_id", current.ID, "expires_at", current.ExpiresAt)
	case errors.Is(err, storage.ErrNotFound):
		slog.Info("no live snapshot, provisioning")
	default:
		return nil, api.NewPersistenceError("get snapshot", err)
	}

	observability.SnapshotLookupsTotal.WithLabelValues("refreshed").Inc()
	return c.creator.CreateSnapshot(ctx, "")
}
