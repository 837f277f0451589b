package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotFound is returned when a sandbox id is unknown to the provider.
var ErrNotFound = errors.New("sandbox not found")

// Provider creates and locates sandboxes.
type Provider interface {
	// List returns sandboxes matching the filter. Metadata filtering may be
	// partial on the provider side; callers filter again client-side.
	List(ctx context.Context, filter ListFilter) ([]Info, error)

	// Get fetches a sandbox by id without changing its state.
	Get(ctx context.Context, id string) (Sandbox, error)

	// Create provisions a new sandbox and returns once it is running.
	Create(ctx context.Context, opts CreateOptions) (Sandbox, error)

	// Connect attaches to an existing sandbox, resuming it if the provider
	// supports paused sandboxes.
	Connect(ctx context.Context, id string) (Sandbox, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// Sandbox is a handle on one live remote sandbox.
type Sandbox interface {
	ID() string
	Status() Status
	Metadata() map[string]string

	// Host returns the public URL of an exposed port.
	Host(port int) (string, error)

	// RunCommand runs a command and blocks until it exits.
	RunCommand(ctx context.Context, cmd Command) (*CommandResult, error)

	// WriteFiles writes files into the sandbox, creating parent directories.
	WriteFiles(ctx context.Context, files []File) error

	// Snapshot freezes the filesystem and returns the provider snapshot id.
	// Providers may stop the sandbox as part of snapshotting.
	Snapshot(ctx context.Context) (string, error)

	// Kill stops the sandbox.
	Kill(ctx context.Context) error
}

// Info is the summary a provider returns when listing sandboxes.
type Info struct {
	ID        string
	Status    Status
	Metadata  map[string]string
	StartedAt time.Time
}

// ListFilter narrows List results.
type ListFilter struct {
	State    Status
	Metadata map[string]string
}

// CreateOptions describes a new sandbox.
type CreateOptions struct {
	Source   Source
	Runtime  string
	Ports    []int
	Timeout  time.Duration
	Env      map[string]string
	Metadata map[string]string
}

// Command is a process to run inside a sandbox.
type Command struct {
	Name string
	Args []string
	Cwd  string
	Env  map[string]string
}

// CommandResult is the outcome of a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with code 0.
func (r *CommandResult) Success() bool {
	return r.ExitCode == 0
}

// File is one file to write into a sandbox.
type File struct {
	Path    string
	Content []byte
}

// discardTimeout bounds the kill issued by Discard.
const discardTimeout = 30 * time.Second

// Discard kills a sandbox left half-prepared by a failed step. It runs even
// when ctx is already cancelled. A failed kill is logged and otherwise
// ignored; the sandbox then lives until its provider timeout.
func Discard(ctx context.Context, sb Sandbox, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()

	if err := sb.Kill(ctx); err != nil {
		slog.Warn("failed to discard sandbox",
			"sandbox_id", sb.ID(), "reason", reason, "error", err.Error())
		return
	}
	slog.Info("sandbox discarded", "sandbox_id", sb.ID(), "reason", reason)
}
