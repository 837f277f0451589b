package api

import (
	"testing"
	"time"
)

func TestSnapshotRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Snapshot{CreatedAt: now.Add(-24 * time.Hour), ExpiresAt: now.Add(6 * 24 * time.Hour)}

	if got := s.Remaining(now); got != 6*24*time.Hour {
		t.Errorf("Remaining() = %v, want 144h", got)
	}
	if got := s.Remaining(now.Add(7 * 24 * time.Hour)); got >= 0 {
		t.Errorf("Remaining() after expiry = %v, want negative", got)
	}
}

func TestGenerationHasCode(t *testing.T) {
	tests := []struct {
		name string
		key  *string
		want bool
	}{
		{"nil key", nil, false},
		{"empty key", StringPtr(""), false},
		{"set key", StringPtr("gen/abc.zip"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Generation{CodeBlobKey: tt.key}
			if got := g.HasCode(); got != tt.want {
				t.Errorf("HasCode() = %v, want %v", got, tt.want)
			}
		})
	}
}
