package api

import "time"

// Snapshot is an immutable reference to a frozen sandbox filesystem image.
// At most one snapshot is current: the newest one whose ExpiresAt is still
// in the future. Records are never mutated or deleted; expiry is logical.
type Snapshot struct {
	ID          string    `json:"id"`
	SnapshotID  string    `json:"snapshot_id"`
	GitRevision *string   `json:"git_revision,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Remaining returns how long the snapshot stays valid after now.
func (s *Snapshot) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// GenerationStatus is the lifecycle state of a code generation.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "PENDING"
	GenerationStatusGenerating GenerationStatus = "GENERATING"
	GenerationStatusCompleted  GenerationStatus = "COMPLETED"
	GenerationStatusFailed     GenerationStatus = "FAILED"
)

// Generation is one produced code artifact of an exercise. Only SandboxID
// is written by this core.
type Generation struct {
	ID          int64            `json:"id"`
	ExerciseID  int64            `json:"exercise_id"`
	Status      GenerationStatus `json:"status"`
	CodeBlobKey *string          `json:"code_blob_key,omitempty"`
	SandboxID   *string          `json:"sandbox_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// HasCode reports whether the generation points at a stored code archive.
func (g *Generation) HasCode() bool {
	return g.CodeBlobKey != nil && *g.CodeBlobKey != ""
}

// ExerciseSandbox is the result of connecting an exercise to its sandbox.
type ExerciseSandbox struct {
	SandboxID  string `json:"sandbox_id"`
	SandboxURL string `json:"sandbox_url"`
}

// AgentSandbox describes the sandbox handed to an agent conversation.
type AgentSandbox struct {
	SandboxID  string `json:"sandbox_id"`
	Status     string `json:"status"`
	SandboxURL string `json:"sandbox_url,omitempty"`
	Reused     bool   `json:"reused"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
