// Package memory provides an in-memory implementation of the snapshot and
// generation stores for testing and lightweight deployments. Records are
// lost when the process restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/storage"
)

// Store is an in-memory snapshot and generation store.
type Store struct {
	mu          sync.RWMutex
	snapshots   map[string]api.Snapshot
	generations map[int64]*api.Generation
	nextGenID   int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		snapshots:   make(map[string]api.Snapshot),
		generations: make(map[int64]*api.Generation),
	}
}

// LatestSnapshot returns the newest snapshot whose ExpiresAt is after now.
// Returns storage.ErrNotFound when every snapshot has expired.
func (s *Store) LatestSnapshot(_ context.Context, now time.Time) (*api.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *api.Snapshot
	for id := range s.snapshots {
		snap := s.snapshots[id]
		if !storage.Live(&snap, now) {
			continue
		}
		if best == nil || storage.NewerSnapshot(&snap, best) {
			best = &snap
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

// SaveSnapshot persists a snapshot record. Records are immutable: saving an
// existing ID returns storage.ErrConflict.
func (s *Store) SaveSnapshot(_ context.Context, snap *api.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapshots[snap.ID]; exists {
		return storage.ErrConflict
	}
	cp := *snap
	if snap.GitRevision != nil {
		cp.GitRevision = api.StringPtr(*snap.GitRevision)
	}
	s.snapshots[snap.ID] = cp
	return nil
}

// SaveGeneration inserts a generation, assigning an ID when gen.ID is zero.
// The core never creates generations; this seeds the store for tests and
// local runs.
func (s *Store) SaveGeneration(_ context.Context, gen *api.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen.ID == 0 {
		s.nextGenID++
		gen.ID = s.nextGenID
	} else if gen.ID > s.nextGenID {
		s.nextGenID = gen.ID
	}
	if _, exists := s.generations[gen.ID]; exists {
		return storage.ErrConflict
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now()
	}
	s.generations[gen.ID] = cloneGeneration(gen)
	return nil
}

// LatestGeneration returns the newest generation of exerciseID with the
// given status.
func (s *Store) LatestGeneration(_ context.Context, exerciseID int64, status api.GenerationStatus) (*api.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *api.Generation
	for _, g := range s.generations {
		if g.ExerciseID != exerciseID || g.Status != status {
			continue
		}
		if best == nil || storage.NewerGeneration(g, best) {
			best = g
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return cloneGeneration(best), nil
}

// SetGenerationSandbox records (or clears, with nil) the sandbox bound to a
// generation.
func (s *Store) SetGenerationSandbox(_ context.Context, generationID int64, sandboxID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.generations[generationID]
	if !ok {
		return storage.ErrNotFound
	}
	if sandboxID == nil {
		g.SandboxID = nil
	} else {
		g.SandboxID = api.StringPtr(*sandboxID)
	}
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneGeneration(g *api.Generation) *api.Generation {
	cp := *g
	if g.CodeBlobKey != nil {
		cp.CodeBlobKey = api.StringPtr(*g.CodeBlobKey)
	}
	if g.SandboxID != nil {
		cp.SandboxID = api.StringPtr(*g.SandboxID)
	}
	return &cp
}
