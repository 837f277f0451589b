package storage

import (
	"testing"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/api"
)

func TestNewerSnapshot(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &api.Snapshot{ID: "snap_b", CreatedAt: base}
	newer := &api.Snapshot{ID: "snap_a", CreatedAt: base.Add(time.Second)}
	if !NewerSnapshot(newer, older) || NewerSnapshot(older, newer) {
		t.Error("later CreatedAt should win")
	}

	tieLow := &api.Snapshot{ID: "snap_a", CreatedAt: base}
	tieHigh := &api.Snapshot{ID: "snap_b", CreatedAt: base}
	if !NewerSnapshot(tieHigh, tieLow) {
		t.Error("ties should break on the larger ID")
	}
}

func TestNewerGeneration(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &api.Generation{ID: 1, CreatedAt: base}
	b := &api.Generation{ID: 2, CreatedAt: base}
	c := &api.Generation{ID: 0, CreatedAt: base.Add(time.Minute)}

	if !NewerGeneration(b, a) {
		t.Error("ties should break on the larger ID")
	}
	if !NewerGeneration(c, b) {
		t.Error("later CreatedAt should win")
	}
}

func TestLive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !Live(&api.Snapshot{ExpiresAt: now.Add(time.Nanosecond)}, now) {
		t.Error("future expiry should be live")
	}
	if Live(&api.Snapshot{ExpiresAt: now}, now) {
		t.Error("expiry equal to now should not be live")
	}
}
