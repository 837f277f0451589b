package storage

import (
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

// NewerSnapshot reports whether a should be preferred over b as the
// current snapshot: later CreatedAt wins, ties break on the larger ID.
func NewerSnapshot(a, b *api.Snapshot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// NewerGeneration reports whether a should be preferred over b as the
// latest generation: later CreatedAt wins, ties break on the larger ID.
func NewerGeneration(a, b *api.Generation) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Live reports whether s has not expired at now.
func Live(s *api.Snapshot, now time.Time) bool {
	return s.ExpiresAt.After(now)
}
