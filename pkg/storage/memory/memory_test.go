package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/storage"
)

var base = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func snap(id string, created time.Time) *api.Snapshot {
	return &api.Snapshot{
		ID:          id,
		SnapshotID:  "prov_" + id,
		GitRevision: api.StringPtr("main"),
		CreatedAt:   created,
		ExpiresAt:   created.Add(7 * 24 * time.Hour),
	}
}

func TestLatestSnapshotEmpty(t *testing.T) {
	s := New()
	_, err := s.LatestSnapshot(context.Background(), base)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestSnapshotPicksNewestLive(t *testing.T) {
	s := New()
	ctx := context.Background()

	old := snap("snap_1", base.Add(-8*24*time.Hour)) // expired
	mid := snap("snap_2", base.Add(-3*24*time.Hour))
	recent := snap("snap_3", base.Add(-1*24*time.Hour))
	for _, sn := range []*api.Snapshot{old, recent, mid} {
		if err := s.SaveSnapshot(ctx, sn); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	got, err := s.LatestSnapshot(ctx, base)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if got.ID != "snap_3" {
		t.Errorf("ID = %q, want snap_3", got.ID)
	}

	// Eight days later everything has expired.
	if _, err := s.LatestSnapshot(ctx, base.Add(8*24*time.Hour)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound once all expired, got %v", err)
	}
}

func TestSaveSnapshotIsImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()

	sn := snap("snap_1", base)
	if err := s.SaveSnapshot(ctx, sn); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot(ctx, sn); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Mutating the caller's copy does not change the stored record.
	*sn.GitRevision = "feature"
	sn.SnapshotID = "changed"
	got, _ := s.LatestSnapshot(ctx, base)
	if got.SnapshotID != "prov_snap_1" || *got.GitRevision != "main" {
		t.Errorf("stored record changed: %+v", got)
	}
}

func TestLatestGeneration(t *testing.T) {
	s := New()
	ctx := context.Background()

	seed := []*api.Generation{
		{ExerciseID: 5, Status: api.GenerationStatusCompleted, CodeBlobKey: api.StringPtr("a.zip"), CreatedAt: base},
		{ExerciseID: 5, Status: api.GenerationStatusCompleted, CodeBlobKey: api.StringPtr("b.zip"), CreatedAt: base.Add(time.Hour)},
		{ExerciseID: 5, Status: api.GenerationStatusFailed, CreatedAt: base.Add(2 * time.Hour)},
		{ExerciseID: 6, Status: api.GenerationStatusCompleted, CodeBlobKey: api.StringPtr("c.zip"), CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, g := range seed {
		if err := s.SaveGeneration(ctx, g); err != nil {
			t.Fatalf("SaveGeneration: %v", err)
		}
	}

	got, err := s.LatestGeneration(ctx, 5, api.GenerationStatusCompleted)
	if err != nil {
		t.Fatalf("LatestGeneration: %v", err)
	}
	if got.ID != seed[1].ID || *got.CodeBlobKey != "b.zip" {
		t.Errorf("got generation %d (%v), want %d", got.ID, *got.CodeBlobKey, seed[1].ID)
	}

	if _, err := s.LatestGeneration(ctx, 7, api.GenerationStatusCompleted); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetGenerationSandbox(t *testing.T) {
	s := New()
	ctx := context.Background()

	g := &api.Generation{ExerciseID: 5, Status: api.GenerationStatusCompleted, CreatedAt: base}
	if err := s.SaveGeneration(ctx, g); err != nil {
		t.Fatalf("SaveGeneration: %v", err)
	}

	if err := s.SetGenerationSandbox(ctx, g.ID, api.StringPtr("sbx-1")); err != nil {
		t.Fatalf("SetGenerationSandbox: %v", err)
	}
	got, _ := s.LatestGeneration(ctx, 5, api.GenerationStatusCompleted)
	if got.SandboxID == nil || *got.SandboxID != "sbx-1" {
		t.Errorf("SandboxID = %v, want sbx-1", got.SandboxID)
	}

	if err := s.SetGenerationSandbox(ctx, g.ID, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = s.LatestGeneration(ctx, 5, api.GenerationStatusCompleted)
	if got.SandboxID != nil {
		t.Errorf("SandboxID = %v, want nil", *got.SandboxID)
	}

	if err := s.SetGenerationSandbox(ctx, 999, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	g := &api.Generation{ExerciseID: 1, Status: api.GenerationStatusCompleted, CreatedAt: base}
	_ = s.SaveGeneration(ctx, g)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.SaveSnapshot(ctx, snap(api.NewSnapshotID(), base.Add(time.Duration(i)*time.Second)))
			_, _ = s.LatestSnapshot(ctx, base)
			_ = s.SetGenerationSandbox(ctx, g.ID, api.StringPtr("sbx"))
			_, _ = s.LatestGeneration(ctx, 1, api.GenerationStatusCompleted)
		}()
	}
	wg.Wait()

	if _, err := s.LatestSnapshot(ctx, base); err != nil {
		t.Errorf("LatestSnapshot after concurrent writes: %v", err)
	}
}
