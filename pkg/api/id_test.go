package api

import (
	"strings"
	"testing"
)

func TestNewSnapshotID(t *testing.T) {
	id := NewSnapshotID()

	if !strings.HasPrefix(id, "snap_") {
		t.Errorf("NewSnapshotID() = %q, want prefix snap_", id)
	}
	if len(id) != len("snap_")+27 {
		t.Errorf("len(NewSnapshotID()) = %d, want %d", len(id), len("snap_")+27)
	}
	if !ValidateSnapshotID(id) {
		t.Errorf("ValidateSnapshotID(%q) = false, want true", id)
	}
}

func TestNewSnapshotIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSnapshotID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateSnapshotID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"generated", NewSnapshotID(), true},
		{"missing prefix", "2SjbC9ePnVXRZ6dFuE2nq1yLnhK", false},
		{"wrong prefix", "resp_2SjbC9ePnVXRZ6dFuE2nq1yLnhK", false},
		{"too short", "snap_abc", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateSnapshotID(tt.id); got != tt.want {
				t.Errorf("ValidateSnapshotID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
